package trends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpikeStats(t *testing.T) {
	counts := []float64{2, 2, 3, 2, 1, 2, 2}

	mean, stdev, z := spikeStats(counts, 6)

	assert.InDelta(t, 2.0, mean, 1e-9)
	assert.InDelta(t, 0.5774, stdev, 1e-4)
	assert.InDelta(t, 6.928, z, 1e-3)
	assert.Greater(t, z, 2.0)
}

func TestSpikeStatsZeroStdev(t *testing.T) {
	mean, stdev, z := spikeStats([]float64{3, 3, 3}, 9)

	assert.InDelta(t, 3.0, mean, 1e-9)
	assert.Zero(t, stdev)
	assert.Zero(t, z)
}

func TestSpikeStatsSingleWindow(t *testing.T) {
	_, stdev, z := spikeStats([]float64{5}, 10)

	assert.Zero(t, stdev)
	assert.Zero(t, z)
}

// dailyTimestamps returns one timestamp per day at midnight for the given
// number of days ending today.
func dailyTimestamps(now time.Time, days int) []time.Time {
	midnight := now.Truncate(24 * time.Hour)

	out := make([]time.Time, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, midnight.AddDate(0, 0, -i))
	}

	return out
}

func TestDetectSpikeRanksFirst(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	burst := dailyTimestamps(now, 7)
	for i := 0; i < 6; i++ {
		burst = append(burst, now.Add(-30*time.Minute))
	}

	entities := []Entity{
		{ID: "steady", Title: "steady", Timestamps: dailyTimestamps(now, 7), ChannelCount: 5},
		{ID: "burst", Title: "burst", Timestamps: burst, ChannelCount: 2},
	}

	trends := Detect(entities, now, cfg)
	require.Len(t, trends, 2)

	assert.Equal(t, "burst", trends[0].EntityID)
	assert.True(t, trends[0].IsSpike)
	assert.Greater(t, trends[0].ZScore, cfg.ZThreshold)
	assert.Equal(t, 6, trends[0].RecentMessages)
	assert.Equal(t, 13, trends[0].TotalMessages)

	assert.Equal(t, "steady", trends[1].EntityID)
	assert.False(t, trends[1].IsSpike)
	assert.Zero(t, trends[1].ZScore)
	assert.Zero(t, trends[1].RecentMessages)
}

func TestDetectSkipsSparseEntities(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	entities := []Entity{
		{ID: "two-messages", Timestamps: []time.Time{now.Add(-time.Hour), now.Add(-2 * time.Hour)}},
		{ID: "stale", Timestamps: []time.Time{
			now.AddDate(0, 0, -9),
			now.AddDate(0, 0, -10),
			now.AddDate(0, 0, -11),
		}},
	}

	trends := Detect(entities, now, DefaultConfig())

	// Two messages fail the message minimum; messages entirely outside the
	// analysis period produce no windows at all.
	assert.Empty(t, trends)
}

func TestDetectSortsQuietEntitiesByPopularity(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	entities := []Entity{
		{ID: "small", Timestamps: dailyTimestamps(now, 5), ChannelCount: 1},
		{ID: "big", Timestamps: dailyTimestamps(now, 7), ChannelCount: 10},
	}

	trends := Detect(entities, now, DefaultConfig())
	require.Len(t, trends, 2)

	assert.Equal(t, "big", trends[0].EntityID)
	assert.Greater(t, trends[0].PopularityScore, trends[1].PopularityScore)
}

func TestDetectLimit(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()
	cfg.Limit = 2

	var entities []Entity
	for i := 0; i < 5; i++ {
		entities = append(entities, Entity{
			ID:           string(rune('a' + i)),
			Timestamps:   dailyTimestamps(now, 7),
			ChannelCount: i,
		})
	}

	trends := Detect(entities, now, cfg)
	assert.Len(t, trends, 2)
}

func TestWindowCounts(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	start := now.Add(-24 * time.Hour)

	// One message visible from six overlapping hourly windows.
	counts := windowCounts([]time.Time{now.Add(-12 * time.Hour)}, start, now, 6*time.Hour)

	assert.Len(t, counts, 6)
	for _, c := range counts {
		assert.Equal(t, 1.0, c)
	}
}
