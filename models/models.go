package models

import (
	"encoding/json"
	"time"
)

// Команды протокола
const (
	CmdSendProgram    = "send_program"
	CmdStartProgram   = "start_program"
	CmdStopProgram    = "stop_program"
	CmdPauseProgram   = "pause_program"
	CmdResumeProgram  = "resume_program"
	CmdAdjustFeedRate = "adjust_feed_rate"
	CmdGetStatus      = "get_status"
	CmdTerminal       = "terminal_command"
	CmdListPrograms   = "list_programs"
	CmdGetProgram     = "get_program"
	CmdDeleteProgram  = "delete_program"
	CmdClearErrors    = "clear_errors"
)

// Request - запрос клиента. Поля, не относящиеся к команде, игнорируются.
type Request struct {
	Command    string   `json:"command"`
	Name       string   `json:"name,omitempty"`
	Content    string   `json:"content,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	GCode      string   `json:"gcode,omitempty"`
}

// Position содержит машинные координаты
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ControllerError содержит информацию об одной ошибке или тревоге контроллера
type ControllerError struct {
	Code      int     `json:"code"`
	Kind      string  `json:"kind"` // error / alarm
	Message   string  `json:"message"`
	Line      string  `json:"line,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

// Progress содержит ход выполнения текущей программы
type Progress struct {
	Sent  int `json:"sent"`
	Acked int `json:"acked"`
	Total int `json:"total"`
}

// Status содержит ответ на get_status
type Status struct {
	Connected      bool                 `json:"connected"`
	Position       Position             `json:"position"`
	State          map[string][]float64 `json:"state"`
	MachineState   string               `json:"machine_state"`
	Idle           bool                 `json:"idle"`
	CurrentProgram *string              `json:"current_program"`
	JobState       string               `json:"job_state"`
	FeedOverride   int                  `json:"feed_override"`
	Progress       *Progress            `json:"progress,omitempty"`
	Errors         []ControllerError    `json:"errors"`
}

// EventEnvelope - формат рассылаемого события
type EventEnvelope struct {
	Type      string                 `json:"type"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp float64                `json:"timestamp"`
}

// NewEventEnvelope оборачивает событие. Время передается в секундах Unix с дробной частью.
func NewEventEnvelope(event string, data map[string]interface{}, ts time.Time) EventEnvelope {
	if data == nil {
		data = map[string]interface{}{}
	}
	return EventEnvelope{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: float64(ts.UnixNano()) / float64(time.Second),
	}
}

// ProgramInfo содержит ответ на get_program
type ProgramInfo struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Lines   int    `json:"lines"`
}

// Reply - входящее сообщение на стороне клиента: ответ или событие.
type Reply struct {
	Type    string          `json:"type,omitempty"`
	Event   string          `json:"event,omitempty"`
	Success bool            `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// IsEvent сообщает, является ли сообщение рассылкой.
func (r *Reply) IsEvent() bool {
	return r.Type == "event"
}
