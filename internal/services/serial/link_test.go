package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iwtcode/grblService/internal/middleware/logging"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu          sync.Mutex
	lines       []string
	connects    int
	disconnects int
}

func (h *recordingHandler) HandleLine(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
}

func (h *recordingHandler) HandleConnect() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connects++
}

func (h *recordingHandler) HandleDisconnect(error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnects++
}

func (h *recordingHandler) snapshot() ([]string, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.lines...), h.connects, h.disconnects
}

func (h *recordingHandler) has(prefix string) bool {
	lines, _, _ := h.snapshot()
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func TestLinkWithSimulator(t *testing.T) {
	sim := NewSimulator(128)
	link := NewLink(sim.Open, 10*time.Millisecond, logging.NewDiscard())
	h := &recordingHandler{}
	link.SetHandler(h)

	assert.True(t, errors.Is(link.Send("G0 X1"), apperrors.ErrLinkDown))

	ctx, cancel := context.WithCancel(context.Background())
	done := link.Run(ctx)

	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.has("Grbl ") }, time.Second, 5*time.Millisecond)

	require.NoError(t, link.Send("G0 X10 Y5"))
	require.NoError(t, link.SendRealtime('?'))
	require.Eventually(t, func() bool { return h.has("ok") && h.has("<Idle|MPos:10.000,5.000,0.000") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"G0 X10 Y5"}, sim.Received())

	cancel()
	<-done
	assert.False(t, link.Connected())
	_, connects, disconnects := h.snapshot()
	assert.Equal(t, 1, connects)
	assert.Equal(t, 1, disconnects)
}

func (h *recordingHandler) count(line string) int {
	lines, _, _ := h.snapshot()
	n := 0
	for _, l := range lines {
		if l == line {
			n++
		}
	}
	return n
}

func runSimulator(t *testing.T) (*Link, *recordingHandler) {
	t.Helper()
	sim := NewSimulator(128)
	link := NewLink(sim.Open, 10*time.Millisecond, logging.NewDiscard())
	h := &recordingHandler{}
	link.SetHandler(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := link.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)
	return link, h
}

func TestSimulatorFeedHold(t *testing.T) {
	link, h := runSimulator(t)

	require.NoError(t, link.SendRealtime('!'))
	for i := 0; i < 17; i++ {
		require.NoError(t, link.Send("G1 X1 F100"))
	}
	require.NoError(t, link.SendRealtime('?'))
	require.Eventually(t, func() bool { return h.has("<Hold:0") }, time.Second, 5*time.Millisecond)

	// Планировщик принимает 15 блоков, две строки ждут в приемном буфере без ok.
	assert.Equal(t, plannerDepth, h.count("ok"))
	assert.True(t, h.has("<Hold:0|MPos:0.000,0.000,0.000|Bf:0,106|"))

	require.NoError(t, link.SendRealtime('~'))
	require.Eventually(t, func() bool { return h.count("ok") == 17 }, time.Second, 5*time.Millisecond)
	require.NoError(t, link.SendRealtime('?'))
	require.Eventually(t, func() bool {
		return h.has("<Idle|MPos:1.000,0.000,0.000|Bf:15,128|")
	}, time.Second, 5*time.Millisecond)
}

func TestSimulatorSoftResetFlushesPlanner(t *testing.T) {
	link, h := runSimulator(t)
	require.Eventually(t, func() bool { return h.count(simBanner) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, link.SendRealtime('!'))
	for i := 0; i < 16; i++ {
		require.NoError(t, link.Send("G1 X7"))
	}
	require.NoError(t, link.SendRealtime(0x18))
	require.Eventually(t, func() bool { return h.count(simBanner) == 2 }, time.Second, 5*time.Millisecond)

	// Сброшенные блоки не выполняются, hold снят.
	require.NoError(t, link.SendRealtime('?'))
	require.Eventually(t, func() bool {
		return h.has("<Idle|MPos:0.000,0.000,0.000|Bf:15,128|")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, plannerDepth, h.count("ok"))
}

func TestSimulatorAcceptsLowercase(t *testing.T) {
	link, h := runSimulator(t)

	require.NoError(t, link.Send("g0 x5 y2"))
	require.NoError(t, link.Send("$$"))
	require.NoError(t, link.Send("5 x"))
	require.NoError(t, link.SendRealtime('?'))
	require.Eventually(t, func() bool { return h.has("<Idle") }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, h.count("ok"))
	assert.Equal(t, 1, h.count("error:1"))
	assert.True(t, h.has("<Idle|MPos:5.000,2.000,0.000|"))
}

func TestLinkReconnects(t *testing.T) {
	var attempts atomic.Int32
	var mu sync.Mutex
	var devices []net.Conn

	open := func() (io.ReadWriteCloser, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("no such device")
		}
		client, device := net.Pipe()
		mu.Lock()
		devices = append(devices, device)
		mu.Unlock()
		go func() { _, _ = io.Copy(io.Discard, device) }()
		return client, nil
	}

	link := NewLink(open, time.Millisecond, logging.NewDiscard())
	h := &recordingHandler{}
	link.SetHandler(h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	link.Run(ctx)

	require.Eventually(t, link.Connected, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, attempts.Load(), int32(3))

	// Обрыв со стороны устройства приводит к переподключению.
	mu.Lock()
	_ = devices[0].Close()
	mu.Unlock()

	require.Eventually(t, func() bool {
		_, connects, disconnects := h.snapshot()
		return connects == 2 && disconnects == 1
	}, time.Second, time.Millisecond)
}
