package grbl

import (
	"sync"
	"testing"
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"
	"github.com/iwtcode/grblService/internal/services/programs"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeLink записывает отправленные строки и real-time байты.
type fakeLink struct {
	mu        sync.Mutex
	lines     []string
	realtime  []byte
	connected bool
	failSend  bool
	handler   interfaces.LinkHandler
	// onSend вызывается до записи строки, в той же горутине, что и Send.
	onSend func(line string)
}

func newFakeLink() *fakeLink {
	return &fakeLink{connected: true}
}

func (f *fakeLink) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.failSend {
		return apperrors.ErrLinkDown
	}
	if f.onSend != nil {
		f.onSend(line)
	}
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeLink) SendRealtime(b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return apperrors.ErrLinkDown
	}
	f.realtime = append(f.realtime, b)
	return nil
}

func (f *fakeLink) SetHandler(h interfaces.LinkHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeLink) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeLink) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeLink) Realtime() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.realtime...)
}

type fixture struct {
	link   *fakeLink
	store  *programs.Store
	ctrl   *Controller
	events *broadcast.Subscription
}

func newFixture(t *testing.T, rxSize int) *fixture {
	t.Helper()
	logger := logging.NewDiscard()
	b := broadcast.New(logger, nil)
	link := newFakeLink()
	store := programs.NewStore(b, logger)
	ctrl := NewController(link, store, b, logger, nil, rxSize)
	sub := b.Subscribe("test", broadcast.WithBuffer(4096))
	return &fixture{link: link, store: store, ctrl: ctrl, events: sub}
}

func (f *fixture) upload(t *testing.T, name, content string) {
	t.Helper()
	_, err := f.store.Upload(name, content)
	require.NoError(t, err)
}

// drain возвращает все накопленные события без ожидания.
func (f *fixture) drain() []entities.Event {
	var out []entities.Event
	for {
		select {
		case evt := <-f.events.Events:
			out = append(out, evt)
		case <-time.After(10 * time.Millisecond):
			return out
		}
	}
}

func countKind(events []entities.Event, kind entities.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func findKind(events []entities.Event, kind entities.EventKind) (entities.Event, bool) {
	for _, e := range events {
		if e.Kind == kind {
			return e, true
		}
	}
	return entities.Event{}, false
}
