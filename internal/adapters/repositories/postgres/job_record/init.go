package job_record

import (
	"github.com/iwtcode/grblService/internal/interfaces"
	"gorm.io/gorm"
)

type JobRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewJobRecordRepository(db *gorm.DB) interfaces.JobHistoryRepository {
	return &JobRecordRepositoryImpl{db: db}
}
