package grbl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const square = "G21\nG90\nG0 X10 Y10\n"

func TestSquareProgramCompletes(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.drain()

	before := f.ctrl.Status()
	assert.True(t, before.Idle)
	assert.Nil(t, before.CurrentProgram)
	assert.Equal(t, "idle", before.JobState)
	assert.NotNil(t, before.Errors)

	require.NoError(t, f.ctrl.StartProgram("sq"))
	assert.Equal(t, []string{"G21", "G90", "G0 X10 Y10"}, f.link.Lines())

	during := f.ctrl.Status()
	assert.False(t, during.Idle)
	require.NotNil(t, during.CurrentProgram)
	assert.Equal(t, "sq", *during.CurrentProgram)
	assert.Equal(t, 3, during.Progress.Sent)

	for i := 0; i < 3; i++ {
		f.ctrl.HandleLine("ok")
	}

	events := f.drain()
	assert.Equal(t, 1, countKind(events, entities.EventProgramStarted))
	assert.Equal(t, 1, countKind(events, entities.EventProgramCompleted))
	completed, _ := findKind(events, entities.EventProgramCompleted)
	assert.Equal(t, "sq", completed.Data["name"])

	after := f.ctrl.Status()
	assert.True(t, after.Idle)
	assert.Nil(t, after.CurrentProgram)

	// Лишний ok не приводит к повторному завершению.
	f.ctrl.HandleLine("ok")
	assert.Zero(t, countKind(f.drain(), entities.EventProgramCompleted))
}

func TestStartWhileRunningLeavesJobUnchanged(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "a", "G0 X1\nG0 X2\n")
	f.upload(t, "b", "G0 Y1\n")

	require.NoError(t, f.ctrl.StartProgram("a"))
	f.ctrl.HandleLine("ok")
	before := f.ctrl.Status()

	err := f.ctrl.StartProgram("b")
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyRunning))
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	after := f.ctrl.Status()
	assert.Equal(t, *before.CurrentProgram, *after.CurrentProgram)
	assert.Equal(t, before.Progress, after.Progress)
	assert.Equal(t, []string{"G0 X1", "G0 X2"}, f.link.Lines())
}

func TestStartUnknownProgram(t *testing.T) {
	f := newFixture(t, 128)
	err := f.ctrl.StartProgram("missing")
	assert.True(t, errors.Is(err, apperrors.ErrProgramNotFound))
	assert.Equal(t, "idle", f.ctrl.Status().JobState)
}

func TestStartWithLinkDown(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.link.connected = false

	err := f.ctrl.StartProgram("sq")
	assert.True(t, errors.Is(err, apperrors.ErrLinkDown))
	assert.Equal(t, "idle", f.ctrl.Status().JobState)
}

func TestFeedRateBounds(t *testing.T) {
	f := newFixture(t, 128)

	for _, bad := range []int{9, 201, 0, -5} {
		err := f.ctrl.AdjustFeedRate(bad)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidRange), "%d", bad)
	}
	assert.Empty(t, f.link.Realtime())
	assert.Zero(t, countKind(f.drain(), entities.EventFeedRateChanged))

	for _, good := range []int{10, 200} {
		require.NoError(t, f.ctrl.AdjustFeedRate(good))
		events := f.drain()
		require.Equal(t, 1, countKind(events, entities.EventFeedRateChanged))
		evt, _ := findKind(events, entities.EventFeedRateChanged)
		assert.Equal(t, good, evt.Data["percentage"])
		assert.Equal(t, good, f.ctrl.Status().FeedOverride)
	}
	assert.Equal(t, RTFeedReset, f.link.Realtime()[0])
}

func TestControllerErrorAbortsJob(t *testing.T) {
	f := newFixture(t, 16)
	f.upload(t, "long", strings.Repeat("G1 X1\n", 10))
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("long"))
	require.Len(t, f.link.Lines(), 2)

	f.ctrl.HandleLine("error:22")

	events := f.drain()
	require.Equal(t, 1, countKind(events, entities.EventProgramError))
	evt, _ := findKind(events, entities.EventProgramError)
	assert.Equal(t, "long", evt.Data["name"])
	assert.Contains(t, evt.Data["error"], "error:22")

	// Подтверждение второй строки не возобновляет отправку.
	f.ctrl.HandleLine("ok")
	assert.Len(t, f.link.Lines(), 2)
	assert.Zero(t, countKind(f.drain(), entities.EventProgramError))

	status := f.ctrl.Status()
	assert.True(t, status.Idle)
	require.Len(t, status.Errors, 1)
	assert.Equal(t, 22, status.Errors[0].Code)
	assert.Equal(t, "G1 X1", status.Errors[0].Line)

	f.ctrl.ClearErrors()
	assert.Empty(t, f.ctrl.Status().Errors)
}

func TestStopResetsControllerAndIgnoresLateAcks(t *testing.T) {
	f := newFixture(t, 16)
	f.upload(t, "long", strings.Repeat("G1 X1\n", 10))
	f.upload(t, "short", "G0 Z5\n")
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("long"))
	require.Len(t, f.link.Lines(), 2)
	require.NoError(t, f.ctrl.StopProgram())
	assert.Equal(t, []byte{RTFeedHold, RTSoftReset}, f.link.Realtime())
	assert.Zero(t, f.ctrl.streamer.Outstanding())

	events := f.drain()
	require.Equal(t, 1, countKind(events, entities.EventProgramStopped))
	assert.True(t, errors.Is(f.ctrl.StopProgram(), apperrors.ErrNoActiveProgram))

	// До баннера после сброса новые строки не отправляются.
	require.NoError(t, f.ctrl.StartProgram("short"))
	assert.Len(t, f.link.Lines(), 2)

	// ok, отправленные контроллером до сброса, ни к чему не относятся.
	f.ctrl.HandleLine("ok")
	f.ctrl.HandleLine("ok")
	assert.Zero(t, countKind(f.drain(), entities.EventProgramCompleted))
	assert.Len(t, f.link.Lines(), 2)

	f.ctrl.HandleLine("Grbl 1.1h ['$' for help]")
	events = f.drain()
	assert.Zero(t, countKind(events, entities.EventProgramError), "баннер после остановки ожидаем")
	require.Len(t, f.link.Lines(), 3)
	assert.Equal(t, "G0 Z5", f.link.Lines()[2])

	f.ctrl.HandleLine("ok")
	assert.Equal(t, 1, countKind(f.drain(), entities.EventProgramCompleted))

	// Следующий баннер уже означает неожиданный сброс.
	require.NoError(t, f.ctrl.StartProgram("long"))
	f.ctrl.HandleLine("Grbl 1.1h ['$' for help]")
	evt, ok := findKind(f.drain(), entities.EventProgramError)
	require.True(t, ok)
	assert.Equal(t, "controller reset", evt.Data["error"])
}

func TestStopWhilePausedResetsHold(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("sq"))
	require.NoError(t, f.ctrl.PauseProgram())
	require.NoError(t, f.ctrl.StopProgram())
	assert.Equal(t, []byte{RTFeedHold, RTFeedHold, RTSoftReset}, f.link.Realtime())

	f.ctrl.HandleLine("Grbl 1.1h ['$' for help]")
	require.NoError(t, f.ctrl.StartProgram("sq"))
	assert.Len(t, f.link.Lines(), 6)
	for i := 0; i < 3; i++ {
		f.ctrl.HandleLine("ok")
	}
	assert.Equal(t, 1, countKind(f.drain(), entities.EventProgramCompleted))
}

func TestBannerAfterConnectDoesNotAbortJob(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.ctrl.HandleConnect()
	f.drain()

	// Плата перезагружается при открытии порта: до баннера строки не уходят.
	require.NoError(t, f.ctrl.StartProgram("sq"))
	assert.Empty(t, f.link.Lines())

	f.ctrl.HandleLine("Grbl 1.1h ['$' for help]")
	assert.Len(t, f.link.Lines(), 3)
	for i := 0; i < 3; i++ {
		f.ctrl.HandleLine("ok")
	}
	events := f.drain()
	assert.Zero(t, countKind(events, entities.EventProgramError))
	assert.Equal(t, 1, countKind(events, entities.EventProgramCompleted))
}

func TestStatusAfterConnectReleasesQueue(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.ctrl.HandleConnect()

	require.NoError(t, f.ctrl.TerminalCommand("$X"))
	assert.Empty(t, f.link.Lines())

	// Контроллер без перезагрузки при подключении: баннера не будет, готовность видна по статусу.
	f.ctrl.HandleLine("<Idle|MPos:0.000,0.000,0.000|Bf:15,128>")
	assert.Equal(t, []string{"$X"}, f.link.Lines())
	f.ctrl.HandleLine("ok")

	f.drain()
	require.NoError(t, f.ctrl.StartProgram("sq"))
	f.ctrl.HandleLine("Grbl 1.1h ['$' for help]")
	evt, ok := findKind(f.drain(), entities.EventProgramError)
	require.True(t, ok)
	assert.Equal(t, "controller reset", evt.Data["error"])
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, 16)
	f.upload(t, "p", "G1 X1\nG1 X2\nG1 X3\n")

	assert.True(t, errors.Is(f.ctrl.ResumeProgram(), apperrors.ErrNoActiveProgram))
	assert.True(t, errors.Is(f.ctrl.PauseProgram(), apperrors.ErrNoActiveProgram))

	require.NoError(t, f.ctrl.StartProgram("p"))
	require.NoError(t, f.ctrl.PauseProgram())
	assert.Equal(t, "paused", f.ctrl.Status().JobState)
	assert.True(t, errors.Is(f.ctrl.PauseProgram(), apperrors.ErrNoActiveProgram))

	f.ctrl.HandleLine("ok")
	f.ctrl.HandleLine("ok")
	assert.Len(t, f.link.Lines(), 2, "в паузе строки не отправляются")

	require.NoError(t, f.ctrl.ResumeProgram())
	assert.Len(t, f.link.Lines(), 3)
	f.ctrl.HandleLine("ok")

	assert.Equal(t, []byte{RTFeedHold, RTCycleStart}, f.link.Realtime())
	events := f.drain()
	assert.Equal(t, 1, countKind(events, entities.EventProgramPaused))
	assert.Equal(t, 1, countKind(events, entities.EventProgramResumed))
	assert.Equal(t, 1, countKind(events, entities.EventProgramCompleted))
}

func TestTerminalCommand(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)

	require.NoError(t, f.ctrl.TerminalCommand("$H"))
	assert.Equal(t, []string{"$H"}, f.link.Lines())
	f.ctrl.HandleLine("ok")

	require.NoError(t, f.ctrl.TerminalCommand("G0 X"))
	f.ctrl.HandleLine("error:2")

	require.NoError(t, f.ctrl.TerminalCommand("?"))
	assert.Equal(t, []byte{RTStatusQuery}, f.link.Realtime())

	events := f.drain()
	var results []entities.Event
	for _, e := range events {
		if e.Kind == entities.EventTerminalResult {
			results = append(results, e)
		}
	}
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].Data["ok"])
	assert.Equal(t, "$H", results[0].Data["gcode"])
	assert.Equal(t, false, results[1].Data["ok"])

	assert.True(t, errors.Is(f.ctrl.TerminalCommand("  "), apperrors.ErrMissingFields))
	assert.True(t, errors.Is(f.ctrl.TerminalCommand(strings.Repeat("G", 200)), apperrors.ErrInvalidCommand))

	require.NoError(t, f.ctrl.StartProgram("sq"))
	assert.True(t, errors.Is(f.ctrl.TerminalCommand("G0 X1"), apperrors.ErrBusy))
}

func TestStatusReportUpdatesCapacity(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "long", strings.Repeat("G1 X1\n", 10))
	f.drain()

	f.ctrl.HandleLine("<Idle|MPos:1.000,2.000,3.000|Bf:15,12|FS:0,0>")
	require.NoError(t, f.ctrl.StartProgram("long"))
	assert.Len(t, f.link.Lines(), 2)
	// Свободное место из отчета уже не учитывает строки в полете: учет остается консервативным.
	assert.LessOrEqual(t, f.ctrl.streamer.Outstanding(), 12)

	f.ctrl.HandleLine("<Run|MPos:1.000,2.000,3.000|Bf:15,128|FS:500,0>")
	assert.Len(t, f.link.Lines(), 10)

	status := f.ctrl.Status()
	assert.Equal(t, 1.0, status.Position.X)
	assert.Equal(t, "Run", status.MachineState)
	assert.False(t, status.Idle)

	events := f.drain()
	assert.Equal(t, 2, countKind(events, entities.EventStatusUpdate))
	evt, _ := findKind(events, entities.EventStatusUpdate)
	assert.Equal(t, "<Idle|MPos:1.000,2.000,3.000|Bf:15,12|FS:0,0>", evt.Data["raw_message"])

	// Некорректная строка отбрасывается без события.
	f.ctrl.HandleLine("<Run|MPos:x>")
	assert.Zero(t, countKind(f.drain(), entities.EventStatusUpdate))
}

func TestMachineMotionMeansNotIdle(t *testing.T) {
	f := newFixture(t, 128)
	f.ctrl.HandleLine("<Jog|MPos:0,0,0>")
	assert.False(t, f.ctrl.Status().Idle)
	f.ctrl.HandleLine("<Idle|MPos:0,0,0>")
	assert.True(t, f.ctrl.Status().Idle)
}

func TestDisconnectAbortsJob(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("sq"))
	f.ctrl.HandleDisconnect(errors.New("EOF"))

	events := f.drain()
	require.Equal(t, 1, countKind(events, entities.EventProgramError))
	evt, _ := findKind(events, entities.EventProgramError)
	assert.Contains(t, evt.Data["error"], "serial link down")
	link, ok := findKind(events, entities.EventLinkState)
	require.True(t, ok)
	assert.Equal(t, false, link.Data["connected"])
	assert.Equal(t, "idle", f.ctrl.Status().JobState)
}

func TestSendFailureAbortsJob(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.link.failSend = true
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("sq"))
	assert.Equal(t, 1, countKind(f.drain(), entities.EventProgramError))
	assert.Equal(t, "idle", f.ctrl.Status().JobState)
}

func TestAlarmAndResetAbortJob(t *testing.T) {
	f := newFixture(t, 128)
	f.upload(t, "sq", square)
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("sq"))
	f.ctrl.HandleLine("ALARM:1")
	events := f.drain()
	require.Equal(t, 1, countKind(events, entities.EventProgramError))
	assert.Equal(t, "alarm", f.ctrl.Status().Errors[0].Kind)

	require.NoError(t, f.ctrl.StartProgram("sq"))
	f.ctrl.HandleLine("Grbl 1.1h ['$' for help]")
	evt, ok := findKind(f.drain(), entities.EventProgramError)
	require.True(t, ok)
	assert.Equal(t, "controller reset", evt.Data["error"])

	// После сброса учет буфера начинается заново.
	require.NoError(t, f.ctrl.StartProgram("sq"))
	for i := 0; i < 3; i++ {
		f.ctrl.HandleLine("ok")
	}
	assert.Equal(t, 1, countKind(f.drain(), entities.EventProgramCompleted))
}

func TestLineTooLongFailsJob(t *testing.T) {
	f := newFixture(t, 16)
	f.upload(t, "wide", "G0 X1\nG1 X100.000 Y100.000 Z100.000\n")
	f.drain()

	require.NoError(t, f.ctrl.StartProgram("wide"))
	evt, ok := findKind(f.drain(), entities.EventProgramError)
	require.True(t, ok)
	assert.Equal(t, ErrLineTooLong.Error(), evt.Data["error"])
}

func TestProbeReport(t *testing.T) {
	f := newFixture(t, 128)
	f.ctrl.HandleLine("[PRB:1.000,2.000,-3.500:1]")
	probe := f.ctrl.MachineState().Probe
	require.NotNil(t, probe)
	assert.Equal(t, -3.5, probe.Z)
}

func TestStatusPolling(t *testing.T) {
	f := newFixture(t, 128)
	ctx, cancel := context.WithCancel(context.Background())
	done := f.ctrl.StartPolling(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(f.link.Realtime()) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for _, b := range f.link.Realtime() {
		assert.Equal(t, RTStatusQuery, b)
	}
}
