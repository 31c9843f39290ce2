package historydb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func createTestDB(t *testing.T) *HistoryDB {
	return createTestDBAt(t, filepath.Join(t.TempDir(), "history.sqlite"))
}

func createTestDBAt(t *testing.T, filename string) *HistoryDB {
	h, err := NewHistoryDB(logs.NewTestingLog(t), filename, 0)
	require.NoError(t, err)
	return h
}

func TestEventRoundTrip(t *testing.T) {
	h := createTestDB(t)
	defer h.Close()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h.RecordEvent(1, true, base)
	h.RecordEvent(2, true, base.Add(time.Minute))
	h.RecordEvent(1, false, base.Add(2*time.Minute))
	h.flush()

	events, err := h.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, int64(1), events[0].ZID)
	require.True(t, events[0].Occupied)
	require.Equal(t, base.UnixMilli(), events[0].At.Get().UnixMilli())
	require.Equal(t, int64(1), events[2].ZID)
	require.False(t, events[2].Occupied)

	// limit keeps the newest, still oldest first
	events, err = h.RecentEvents(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, int64(2), events[0].ZID)
	require.Equal(t, int64(1), events[1].ZID)

	events, err = h.EventsForZone(1, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.True(t, events[0].Occupied)
	require.False(t, events[1].Occupied)

	events, err = h.EventsForZone(99, 10)
	require.NoError(t, err)
	require.Len(t, events, 0)
}

func TestSamples(t *testing.T) {
	h := createTestDB(t)
	defer h.Close()

	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	h.RecordSample(base, 3, 7, 10)
	h.RecordSample(base.Add(time.Hour), 5, 5, 10)
	h.RecordSample(base.Add(2*time.Hour), 9, 1, 10)
	h.flush()

	// The range is half-open
	samples, err := h.Samples(base, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, 3, samples[0].OccupiedCount)
	require.Equal(t, 7, samples[0].FreeCount)
	require.Equal(t, 10, samples[0].TotalValid)
	require.Equal(t, 5, samples[1].OccupiedCount)

	samples, err = h.Samples(base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 3)

	samples, err = h.Samples(base.Add(-time.Hour), base)
	require.NoError(t, err)
	require.Len(t, samples, 0)
}

func TestPrune(t *testing.T) {
	h := createTestDB(t)
	defer h.Close()

	now := time.Now()
	h.RecordEvent(1, true, now.Add(-100*24*time.Hour))
	h.RecordEvent(1, false, now.Add(-time.Hour))
	h.RecordSample(now.Add(-100*24*time.Hour), 1, 0, 1)
	h.RecordSample(now.Add(-time.Hour), 0, 1, 1)
	h.flush()

	nEvents, nSamples, err := h.PruneBefore(now.Add(-90 * 24 * time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), nEvents)
	require.Equal(t, int64(1), nSamples)

	events, err := h.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	samples, err := h.Samples(now.Add(-200*24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, samples, 1)
}

func TestCloseFlushes(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "history.sqlite")
	h := createTestDBAt(t, filename)
	h.RecordEvent(4, true, time.Now())
	h.RecordSample(time.Now(), 1, 3, 4)
	// No explicit flush. Close must drain the buffer.
	h.Close()

	h2 := createTestDBAt(t, filename)
	defer h2.Close()
	events, err := h2.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int64(4), events[0].ZID)
	samples, err := h2.Samples(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 1)
}
