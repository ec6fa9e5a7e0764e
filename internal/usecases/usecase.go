package usecases

import (
	"fmt"
	"math"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/models"
	apperrors "github.com/iwtcode/grblService/pkg/errors"
)

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 500
)

type Usecase struct {
	store      interfaces.ProgramStore
	controller interfaces.JobController
	history    interfaces.JobHistoryRepository
}

func NewUsecase(
	store interfaces.ProgramStore,
	controller interfaces.JobController,
	history interfaces.JobHistoryRepository,
) interfaces.Usecases {
	return &Usecase{
		store:      store,
		controller: controller,
		history:    history,
	}
}

func (u *Usecase) UploadProgram(name, content string) error {
	_, err := u.store.Upload(name, content)
	return err
}

func (u *Usecase) ListPrograms() []string {
	return u.store.List()
}

func (u *Usecase) GetProgram(name string) (*entities.Program, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", apperrors.ErrMissingFields)
	}
	return u.store.Get(name)
}

func (u *Usecase) DeleteProgram(name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", apperrors.ErrMissingFields)
	}
	return u.store.Delete(name)
}

func (u *Usecase) StartProgram(name string) error {
	return u.controller.StartProgram(name)
}

func (u *Usecase) StopProgram() error {
	return u.controller.StopProgram()
}

func (u *Usecase) PauseProgram() error {
	return u.controller.PauseProgram()
}

func (u *Usecase) ResumeProgram() error {
	return u.controller.ResumeProgram()
}

// AdjustFeedRate принимает процент из JSON (число) и допускает только целые значения.
func (u *Usecase) AdjustFeedRate(percentage float64) error {
	if math.IsNaN(percentage) || percentage != math.Trunc(percentage) {
		return fmt.Errorf("percentage must be an integer, got %v: %w", percentage, apperrors.ErrInvalidRange)
	}
	if percentage < 10 || percentage > 200 {
		return fmt.Errorf("percentage %v must be within [10, 200]: %w", percentage, apperrors.ErrInvalidRange)
	}
	return u.controller.AdjustFeedRate(int(percentage))
}

func (u *Usecase) TerminalCommand(gcode string) error {
	return u.controller.TerminalCommand(gcode)
}

func (u *Usecase) ClearErrors() {
	u.controller.ClearErrors()
}

func (u *Usecase) GetStatus() models.Status {
	return u.controller.Status()
}

func (u *Usecase) RecentJobs(limit int) ([]entities.JobRecord, error) {
	if limit <= 0 {
		limit = defaultJobsLimit
	}
	if limit > maxJobsLimit {
		limit = maxJobsLimit
	}
	return u.history.GetRecent(limit)
}
