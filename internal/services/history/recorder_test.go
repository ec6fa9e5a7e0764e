package history

import (
	"context"
	"testing"
	"time"

	"github.com/iwtcode/grblService/internal/adapters/repositories/memory"
	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderTracksLifecycle(t *testing.T) {
	b := broadcast.New(logging.NewDiscard(), nil)
	repo := memory.NewJobHistory(10)
	recorder := NewRecorder(repo, b, logging.NewDiscard())

	ctx, cancel := context.WithCancel(context.Background())
	done := recorder.Run(ctx)

	b.Emit(entities.EventProgramStarted, map[string]interface{}{"name": "sq", "job_id": "j1", "lines": 3})
	b.Emit(entities.EventStatusUpdate, map[string]interface{}{"raw_message": "<Idle>"})
	b.Emit(entities.EventProgramCompleted, map[string]interface{}{"name": "sq", "job_id": "j1"})
	b.Emit(entities.EventProgramStarted, map[string]interface{}{"name": "cut", "job_id": "j2", "lines": 10})
	b.Emit(entities.EventProgramError, map[string]interface{}{"name": "cut", "job_id": "j2", "error": "error:22"})

	require.Eventually(t, func() bool {
		records, _ := repo.GetRecent(10)
		return len(records) == 2 && records[0].Outcome == entities.OutcomeError
	}, time.Second, 5*time.Millisecond)

	records, _ := repo.GetRecent(10)
	assert.Equal(t, "cut", records[0].ProgramName)
	assert.Equal(t, "error:22", records[0].Error)
	assert.Equal(t, 10, records[0].LinesTotal)
	assert.Equal(t, entities.OutcomeCompleted, records[1].Outcome)
	assert.NotNil(t, records[1].FinishedAt)

	cancel()
	<-done
}
