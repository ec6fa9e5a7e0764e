package entities

import "time"

const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeError     = "error"
)

// JobRecord - запись истории запусков программ.
type JobRecord struct {
	ID          string     `gorm:"primaryKey;not null" json:"id"`
	ProgramName string     `gorm:"not null;index" json:"program_name"`
	LinesTotal  int        `json:"lines_total"`
	Outcome     string     `gorm:"not null" json:"outcome"` // running / completed / stopped / error
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `gorm:"index" json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
