package interfaces

import (
	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/models"
)

// EventPublisher - получатель доменных событий.
type EventPublisher interface {
	Publish(evt entities.Event)
	Emit(kind entities.EventKind, data map[string]interface{})
}

// LinkHandler получает строки контроллера и изменения состояния канала.
type LinkHandler interface {
	HandleLine(line string)
	HandleConnect()
	HandleDisconnect(err error)
}

// SerialLink - дуплексный построчный канал к контроллеру.
type SerialLink interface {
	Send(line string) error
	SendRealtime(b byte) error
	SetHandler(h LinkHandler)
	Connected() bool
}

// ProgramStore определяет контракт хранилища программ.
type ProgramStore interface {
	Upload(name, content string) (*entities.Program, error)
	Get(name string) (*entities.Program, error)
	Delete(name string) error
	List() []string
}

// JobController определяет контракт управления заданием.
type JobController interface {
	StartProgram(name string) error
	StopProgram() error
	PauseProgram() error
	ResumeProgram() error
	AdjustFeedRate(percentage int) error
	TerminalCommand(gcode string) error
	ClearErrors()
	Status() models.Status
}
