package interfaces

import (
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
)

// JobHistoryRepository определяет контракт для хранения истории запусков
type JobHistoryRepository interface {
	Create(record *entities.JobRecord) error
	Finish(id, outcome, errMsg string, finishedAt time.Time) error
	GetRecent(limit int) ([]entities.JobRecord, error)
}
