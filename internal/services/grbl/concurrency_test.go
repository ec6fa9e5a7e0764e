package grbl

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Команды клиентов и строки контроллера приходят из разных горутин.
// Каждая отправка должна помещаться в последнюю объявленную емкость буфера.
// Запускать с -race.
func TestConcurrentOperationsKeepBufferBound(t *testing.T) {
	const rxSize = 48

	f := newFixture(t, rxSize)
	f.upload(t, "a", strings.Repeat("G1 X1 Y2\n", 40))
	f.upload(t, "b", "G21\nG90\nG0 X10 Y10\nG1 X0 Y0 F500\n")

	var sends, violations atomic.Int64
	// Send вызывается под мьютексом контроллера, поэтому чтение учета Streamer здесь безопасно.
	f.link.onSend = func(line string) {
		sends.Add(1)
		if f.ctrl.streamer.Outstanding()+len(line)+1 > f.ctrl.streamer.Capacity() {
			violations.Add(1)
		}
	}

	incoming := []string{
		"ok", "ok", "ok", "ok", "ok", "ok",
		"error:20",
		"<Run|MPos:0.000,0.000,0.000|Bf:15,48>",
		"<Run|MPos:1.000,0.000,0.000|Bf:15,20>",
		"<Idle|MPos:0.000,0.000,0.000|Bf:15,7>",
		"<Hold:0|MPos:0.000,0.000,0.000|Bf:14,30>",
		"Grbl 1.1h ['$' for help]",
		"ALARM:2",
		"[MSG:Caution: Unlocked]",
	}

	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 400; i++ {
				switch rnd.Intn(10) {
				case 0:
					_ = f.ctrl.StartProgram([]string{"a", "b"}[rnd.Intn(2)])
				case 1:
					_ = f.ctrl.StopProgram()
				case 2:
					_ = f.ctrl.PauseProgram()
				case 3:
					_ = f.ctrl.ResumeProgram()
				case 4:
					_ = f.ctrl.AdjustFeedRate(10 + rnd.Intn(191))
				case 5:
					_ = f.ctrl.TerminalCommand(fmt.Sprintf("G4 P0.%d", rnd.Intn(10)))
				case 6:
					_ = f.ctrl.Status()
				default:
					f.ctrl.HandleLine(incoming[rnd.Intn(len(incoming))])
				}
			}
		}(int64(w + 1))
	}
	// Поток подтверждений, как от контроллера, который выполняет все присланное.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			f.ctrl.HandleLine("ok")
		}
	}()
	wg.Wait()

	assert.Positive(t, sends.Load())
	assert.Zero(t, violations.Load(), "отправка превысила объявленную емкость буфера")

	// После всех гонок автомат остается согласованным.
	status := f.ctrl.Status()
	if status.JobState == string(JobIdle) {
		assert.Nil(t, status.CurrentProgram)
	} else {
		require.NotNil(t, status.CurrentProgram)
		require.NotNil(t, status.Progress)
		assert.LessOrEqual(t, status.Progress.Acked, status.Progress.Sent)
	}
	assert.Positive(t, countKind(f.drain(), entities.EventStatusUpdate))
}
