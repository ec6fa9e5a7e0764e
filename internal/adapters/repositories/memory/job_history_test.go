package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestJobHistoryRing(t *testing.T) {
	h := NewJobHistory(2)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.Create(&entities.JobRecord{ID: id, Outcome: entities.OutcomeRunning}))
	}

	records, err := h.GetRecent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)

	require.NoError(t, h.Finish("b", entities.OutcomeError, "error:22", time.Now()))
	records, _ = h.GetRecent(0)
	assert.Equal(t, entities.OutcomeError, records[1].Outcome)
	assert.NotNil(t, records[1].FinishedAt)

	assert.True(t, errors.Is(h.Finish("a", entities.OutcomeCompleted, "", time.Now()), gorm.ErrRecordNotFound))
}
