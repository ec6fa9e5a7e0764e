package history

import (
	"context"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"
)

const recorderID = "job-history"

// Recorder ведет историю запусков по событиям жизненного цикла задания.
type Recorder struct {
	repo        interfaces.JobHistoryRepository
	broadcaster *broadcast.Broadcaster
	logger      *logging.Logger
}

func NewRecorder(repo interfaces.JobHistoryRepository, b *broadcast.Broadcaster, logger *logging.Logger) *Recorder {
	return &Recorder{
		repo:        repo,
		broadcaster: b,
		logger:      logger.WithPrefix("HISTORY"),
	}
}

// Run обрабатывает события до отмены ctx. Возвращает канал, закрываемый после остановки.
func (r *Recorder) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	sub := r.broadcaster.Subscribe(recorderID, broadcast.WithBuffer(1024))

	go func() {
		defer close(done)
		defer r.broadcaster.Unsubscribe(recorderID)

		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					r.logger.Warn("History subscription dropped, resubscribing")
					sub = r.broadcaster.Subscribe(recorderID, broadcast.WithBuffer(1024))
					continue
				}
				if evt.IsLifecycle() {
					r.record(evt)
				}
			}
		}
	}()
	return done
}

func (r *Recorder) record(evt entities.Event) {
	id, _ := evt.Data["job_id"].(string)
	if id == "" {
		return
	}

	var err error
	switch evt.Kind {
	case entities.EventProgramStarted:
		name, _ := evt.Data["name"].(string)
		lines, _ := evt.Data["lines"].(int)
		err = r.repo.Create(&entities.JobRecord{
			ID:          id,
			ProgramName: name,
			LinesTotal:  lines,
			Outcome:     entities.OutcomeRunning,
			StartedAt:   evt.Timestamp,
		})
	case entities.EventProgramCompleted:
		err = r.repo.Finish(id, entities.OutcomeCompleted, "", evt.Timestamp)
	case entities.EventProgramStopped:
		err = r.repo.Finish(id, entities.OutcomeStopped, "", evt.Timestamp)
	case entities.EventProgramError:
		msg, _ := evt.Data["error"].(string)
		err = r.repo.Finish(id, entities.OutcomeError, msg, evt.Timestamp)
	default:
		return
	}

	if err != nil {
		r.logger.Error("Failed to record job history", "event", evt.Kind, "job_id", id, "error", err)
	}
}
