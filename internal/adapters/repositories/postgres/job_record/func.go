package job_record

import (
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"gorm.io/gorm"
)

func (r *JobRecordRepositoryImpl) Create(record *entities.JobRecord) error {
	return r.db.Create(record).Error
}

// Finish фиксирует исход задания
func (r *JobRecordRepositoryImpl) Finish(id, outcome, errMsg string, finishedAt time.Time) error {
	updates := map[string]interface{}{
		"outcome":     outcome,
		"error":       errMsg,
		"finished_at": finishedAt,
	}
	result := r.db.Model(&entities.JobRecord{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetRecent возвращает последние запуски, новые первыми
func (r *JobRecordRepositoryImpl) GetRecent(limit int) ([]entities.JobRecord, error) {
	var records []entities.JobRecord
	if err := r.db.Order("started_at desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
