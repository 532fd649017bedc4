package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpTurn, 100*time.Millisecond)
	c.RecordTiming(OpTurn, 300*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(2), snap.Turn.Count)
	assert.Equal(t, int64(400), snap.Turn.TotalTimeMs)
	assert.Equal(t, float64(200), snap.Turn.AvgTimeMs)
	assert.Equal(t, int64(100), snap.Turn.MinTimeMs)
	assert.Equal(t, int64(300), snap.Turn.MaxTimeMs)

	assert.Nil(t, snap.Auth, "untouched operations stay nil in the snapshot")
	assert.Greater(t, snap.UptimeSeconds, float64(0))
}

func TestCollectorOutcomes(t *testing.T) {
	c := NewCollector()

	c.RecordOutcome(OutcomeOK)
	c.RecordOutcome(OutcomeOK)
	c.RecordOutcome("admission_rejected")

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Outcomes[OutcomeOK])
	assert.Equal(t, int64(1), snap.Outcomes["admission_rejected"])
}

func TestCollectorConcurrentAccess(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordTiming(OpTurn, time.Millisecond)
			c.RecordOutcome(OutcomeOK)
			_ = c.Snapshot()
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.NotNil(t, snap.Turn)
	assert.Equal(t, int64(20), snap.Turn.Count)
	assert.Equal(t, int64(20), snap.Outcomes[OutcomeOK])
}
