package trends

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/lueurxax/telegram-event-radar/internal/storage"
)

type mockStore struct {
	clusterActivity []db.EntityActivity
	topicActivity   []db.EntityActivity
	clusterReach    map[string]db.EntityReach
	topicReach      map[string]db.EntityReach
	periodStats     []db.ClusterPeriodStats

	activitySince time.Time
	reachSince    time.Time
	periodFrom    time.Time
	periodPrev    time.Time
}

func (m *mockStore) ClusterActivity(_ context.Context, since time.Time) ([]db.EntityActivity, error) {
	m.activitySince = since
	return m.clusterActivity, nil
}

func (m *mockStore) TopicActivity(_ context.Context, since time.Time) ([]db.EntityActivity, error) {
	m.activitySince = since
	return m.topicActivity, nil
}

func (m *mockStore) ClusterReach(_ context.Context, since time.Time) (map[string]db.EntityReach, error) {
	m.reachSince = since
	return m.clusterReach, nil
}

func (m *mockStore) TopicReach(_ context.Context, since time.Time) (map[string]db.EntityReach, error) {
	m.reachSince = since
	return m.topicReach, nil
}

func (m *mockStore) GetClusterPeriodStats(
	_ context.Context, from, prevFrom time.Time, _ int,
) ([]db.ClusterPeriodStats, error) {
	m.periodFrom = from
	m.periodPrev = prevFrom

	return m.periodStats, nil
}

func newTestDetector(store Store) *Detector {
	logger := zerolog.Nop()
	d := NewDetector(store, DefaultConfig(), &logger)
	d.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }

	return d
}

func TestTrendingClusters(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	burst := dailyTimestamps(now, 7)
	for i := 0; i < 6; i++ {
		burst = append(burst, now.Add(-30*time.Minute))
	}

	store := &mockStore{
		clusterActivity: []db.EntityActivity{
			{EntityID: "c1", Title: "quiet", Timestamps: dailyTimestamps(now, 7)},
			{EntityID: "c2", Title: "bursting", Timestamps: burst},
		},
		clusterReach: map[string]db.EntityReach{
			"c2": {ChannelCount: 4, TotalViews: 12000},
		},
	}

	trends, err := newTestDetector(store).TrendingClusters(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 2)

	assert.Equal(t, "c2", trends[0].EntityID)
	assert.True(t, trends[0].IsSpike)
	assert.Equal(t, 4, trends[0].ChannelCount)
	assert.Equal(t, int64(12000), trends[0].TotalViews)

	// Reach is missing for the quiet cluster so it falls back to zero values.
	assert.Zero(t, trends[1].ChannelCount)

	assert.Equal(t, now.AddDate(0, 0, -7), store.activitySince)
	assert.Equal(t, now.Add(-6*time.Hour), store.reachSince)
}

func TestTrendingTopics(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	topicID := int64(3)

	store := &mockStore{
		topicActivity: []db.EntityActivity{
			{EntityID: "3", Title: "economy", TopicID: &topicID, Timestamps: dailyTimestamps(now, 7)},
		},
		topicReach: map[string]db.EntityReach{
			"3": {ChannelCount: 2, TotalViews: 500},
		},
	}

	trends, err := newTestDetector(store).TrendingTopics(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 1)

	assert.Equal(t, "3", trends[0].EntityID)
	require.NotNil(t, trends[0].TopicID)
	assert.Equal(t, int64(3), *trends[0].TopicID)
	assert.Equal(t, 2, trends[0].ChannelCount)
}

func TestPeriodOverPeriod(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	store := &mockStore{
		periodStats: []db.ClusterPeriodStats{
			{
				ClusterID:        "grew",
				MessageCount:     30,
				PrevMessageCount: 20,
				ChannelCount:     4,
				TotalViews:       50000,
				AvgSimilarity:    0.8,
			},
			{
				ClusterID:        "fresh",
				MessageCount:     10,
				PrevMessageCount: 0,
			},
			{
				ClusterID:        "fading",
				MessageCount:     8,
				PrevMessageCount: 16,
			},
			{
				ClusterID:        "flat",
				MessageCount:     21,
				PrevMessageCount: 20,
			},
		},
	}

	trends, err := newTestDetector(store).PeriodOverPeriod(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 4)

	grew := trends[0]
	assert.InDelta(t, 50.0, grew.GrowthPercent, 1e-9)
	assert.Equal(t, DirectionUp, grew.Direction)
	// 30*0.5 + (50000/10000)*0.3 + 4*2*0.15 + 0.8*100*0.05
	assert.InDelta(t, 21.7, grew.PopularityScore, 1e-9)

	assert.InDelta(t, 100.0, trends[1].GrowthPercent, 1e-9)
	assert.Equal(t, DirectionUp, trends[1].Direction)

	assert.InDelta(t, -50.0, trends[2].GrowthPercent, 1e-9)
	assert.Equal(t, DirectionDown, trends[2].Direction)

	assert.InDelta(t, 5.0, trends[3].GrowthPercent, 1e-9)
	assert.Equal(t, DirectionStable, trends[3].Direction)

	assert.Equal(t, now.AddDate(0, 0, -7), store.periodFrom)
	assert.Equal(t, now.AddDate(0, 0, -14), store.periodPrev)
}

func TestPeriodOverPeriodViewsCap(t *testing.T) {
	store := &mockStore{
		periodStats: []db.ClusterPeriodStats{
			{ClusterID: "viral", MessageCount: 10, PrevMessageCount: 10, TotalViews: 5_000_000},
		},
	}

	trends, err := newTestDetector(store).PeriodOverPeriod(context.Background())
	require.NoError(t, err)
	require.Len(t, trends, 1)

	// Views contribution saturates at 100 scaled units.
	assert.InDelta(t, 10*0.5+100*0.3, trends[0].PopularityScore, 1e-9)
}
