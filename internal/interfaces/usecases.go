package interfaces

import (
	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/models"
)

// Usecases - это агрегирующий интерфейс для всех use cases (TCP и HTTP)
type Usecases interface {
	UploadProgram(name, content string) error
	ListPrograms() []string
	GetProgram(name string) (*entities.Program, error)
	DeleteProgram(name string) error
	StartProgram(name string) error
	StopProgram() error
	PauseProgram() error
	ResumeProgram() error
	AdjustFeedRate(percentage float64) error
	TerminalCommand(gcode string) error
	ClearErrors()
	GetStatus() models.Status
	RecentJobs(limit int) ([]entities.JobRecord, error)
}
