package broadcast

import (
	"sync"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/metrics"
	"github.com/iwtcode/grblService/internal/middleware/logging"
)

const defaultBuffer = 256

// Subscription - очередь событий одного подписчика.
// Канал Events закрывается при отписке или при переполнении очереди.
type Subscription struct {
	ID         string
	Events     <-chan entities.Event
	ch         chan entities.Event
	skipRemote bool
}

// Option настраивает подписку.
type Option func(*Subscription, *int)

// WithBuffer задает размер очереди подписчика.
func WithBuffer(n int) Option {
	return func(_ *Subscription, size *int) {
		if n > 0 {
			*size = n
		}
	}
}

// SkipRemote исключает события, пришедшие из внешних транспортов.
func SkipRemote() Option {
	return func(s *Subscription, _ *int) {
		s.skipRemote = true
	}
}

// Broadcaster рассылает события всем подписчикам в едином порядке.
// Publish никогда не блокируется: медленный подписчик с переполненной очередью отключается.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	logger  *logging.Logger
	metrics *metrics.Metrics
}

func New(logger *logging.Logger, m *metrics.Metrics) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[string]*Subscription),
		logger:  logger.WithPrefix("BROADCAST"),
		metrics: m,
	}
}

// Subscribe регистрирует подписчика. Повторная подписка с тем же id заменяет прежнюю.
func (b *Broadcaster) Subscribe(id string, opts ...Option) *Subscription {
	sub := &Subscription{ID: id}
	size := defaultBuffer
	for _, opt := range opts {
		opt(sub, &size)
	}
	sub.ch = make(chan entities.Event, size)
	sub.Events = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, exists := b.subs[id]; exists {
		close(old.ch)
	}
	b.subs[id] = sub
	b.logger.Debug("Subscriber added", "id", id, "subscribers", len(b.subs))
	return sub
}

// Unsubscribe удаляет подписчика и закрывает его канал.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeUnsafe(id)
}

func (b *Broadcaster) removeUnsafe(id string) {
	sub, exists := b.subs[id]
	if !exists {
		return
	}
	close(sub.ch)
	delete(b.subs, id)
}

// Publish доставляет событие в очередь каждого подписчика.
func (b *Broadcaster) Publish(evt entities.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if evt.RemoteOrigin && sub.skipRemote {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			b.logger.Warn("Subscriber queue overflow, dropping subscriber", "id", id, "event", evt.Kind)
			b.removeUnsafe(id)
		}
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(string(evt.Kind)).Inc()
	}
}

// Emit создает событие и публикует его.
func (b *Broadcaster) Emit(kind entities.EventKind, data map[string]interface{}) {
	b.Publish(entities.NewEvent(kind, data))
}

// Count возвращает число подписчиков.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
