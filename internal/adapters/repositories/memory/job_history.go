package memory

import (
	"sync"
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"gorm.io/gorm"
)

// JobHistory хранит последние записи запусков в памяти, когда БД отключена.
type JobHistory struct {
	mu       sync.RWMutex
	capacity int
	records  []entities.JobRecord
}

var _ interfaces.JobHistoryRepository = (*JobHistory)(nil)

func NewJobHistory(capacity int) *JobHistory {
	if capacity <= 0 {
		capacity = 100
	}
	return &JobHistory{capacity: capacity}
}

func (h *JobHistory) Create(record *entities.JobRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, *record)
	if len(h.records) > h.capacity {
		h.records = h.records[len(h.records)-h.capacity:]
	}
	return nil
}

// Finish возвращает gorm.ErrRecordNotFound, как и репозиторий Postgres.
func (h *JobHistory) Finish(id, outcome, errMsg string, finishedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.records {
		if h.records[i].ID == id {
			h.records[i].Outcome = outcome
			h.records[i].Error = errMsg
			finished := finishedAt
			h.records[i].FinishedAt = &finished
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// GetRecent возвращает последние запуски, новые первыми.
func (h *JobHistory) GetRecent(limit int) ([]entities.JobRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.records) {
		limit = len(h.records)
	}
	out := make([]entities.JobRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out, nil
}
