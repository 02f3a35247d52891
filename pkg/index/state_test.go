package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexState_AdvanceSeeds(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var s IndexState

	next := s.Advance(0.04, 0.9, at, 10)

	assert.True(t, next.Initialized)
	assert.Equal(t, 0.04, next.Smoothed)
	assert.InDelta(t, 20.0, next.Value, 1e-9)
	assert.Equal(t, uint64(1), next.Cycles)
	assert.Equal(t, at, next.UpdatedAt)

	p, ok := next.Latest()
	require.True(t, ok)
	assert.Equal(t, 0.04, p.Raw)
	assert.Equal(t, next.Value, p.Value)
}

func TestIndexState_AdvanceSmooths(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := IndexState{}.Advance(0.04, 0.5, at, 10)

	s = s.Advance(0.08, 0.5, at.Add(time.Minute), 10)

	assert.InDelta(t, 0.06, s.Smoothed, 1e-12)
	assert.Equal(t, uint64(2), s.Cycles)
	assert.Len(t, s.History, 2)
}

func TestIndexState_AdvanceDoesNotMutate(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	base := IndexState{}.Advance(0.04, 0.5, at, 3)
	snapshot := base.History[0]

	a := base.Advance(0.09, 0.5, at.Add(time.Minute), 3)
	b := base.Advance(0.01, 0.5, at.Add(time.Minute), 3)

	assert.Len(t, base.History, 1)
	assert.Equal(t, snapshot, base.History[0])
	assert.NotEqual(t, a.Smoothed, b.Smoothed)
	assert.Equal(t, 0.09, a.History[1].Raw)
	assert.Equal(t, 0.01, b.History[1].Raw)
}

func TestIndexState_HistoryBounded(t *testing.T) {
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var s IndexState
	for i := 0; i < 10; i++ {
		s = s.Advance(float64(i+1)/100, 0.5, at.Add(time.Duration(i)*time.Minute), 4)
	}

	require.Len(t, s.History, 4)
	assert.Equal(t, 0.07, s.History[0].Raw)
	assert.Equal(t, 0.10, s.History[3].Raw)
	assert.Equal(t, uint64(10), s.Cycles)
}

func TestIndexState_LatestEmpty(t *testing.T) {
	_, ok := IndexState{}.Latest()
	assert.False(t, ok)
}
