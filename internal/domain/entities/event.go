package entities

import "time"

// EventKind - тип доменного события. Набор значений закрыт.
type EventKind string

const (
	EventProgramUploaded  EventKind = "program_uploaded"
	EventProgramDeleted   EventKind = "program_deleted"
	EventProgramStarted   EventKind = "program_started"
	EventProgramPaused    EventKind = "program_paused"
	EventProgramResumed   EventKind = "program_resumed"
	EventProgramStopped   EventKind = "program_stopped"
	EventProgramCompleted EventKind = "program_completed"
	EventProgramError     EventKind = "program_error"
	EventFeedRateChanged  EventKind = "feed_rate_changed"
	EventStatusUpdate     EventKind = "status_update"
	EventTerminalResult   EventKind = "terminal_result"
	EventLinkState        EventKind = "link_state"
)

// Event - неизменяемое событие, рассылаемое всем подписчикам один раз.
type Event struct {
	Kind      EventKind
	Data      map[string]interface{}
	Timestamp time.Time
	// RemoteOrigin помечает события, пришедшие из внешнего транспорта.
	// Такие события не отправляются обратно во внешние транспорты.
	RemoteOrigin bool
}

// NewEvent создает событие с текущим временем.
func NewEvent(kind EventKind, data map[string]interface{}) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{Kind: kind, Data: data, Timestamp: time.Now()}
}

// IsLifecycle сообщает, относится ли событие к жизненному циклу задания.
func (e Event) IsLifecycle() bool {
	switch e.Kind {
	case EventProgramStarted, EventProgramPaused, EventProgramResumed,
		EventProgramStopped, EventProgramCompleted, EventProgramError:
		return true
	}
	return false
}
