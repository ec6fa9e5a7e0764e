package usecases

import "github.com/iwtcode/grblService/internal/interfaces"

// UseCases - агрегатор всех use case интерфейсов
type UseCases struct {
	interfaces.Usecases
}

// NewUsecases - конструктор для UseCases
func NewUsecases(
	store interfaces.ProgramStore,
	controller interfaces.JobController,
	history interfaces.JobHistoryRepository,
) interfaces.Usecases {
	return NewUsecase(store, controller, history)
}
