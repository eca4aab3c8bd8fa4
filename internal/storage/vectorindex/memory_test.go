package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexSearchFilters(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, 1, 10, now, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, 2, 20, now.Add(-time.Hour), []float32{0.9, 0.4359, 0}))
	require.NoError(t, idx.Upsert(ctx, 3, 10, now.Add(48*time.Hour), []float32{0.99, 0.141, 0}))
	require.NoError(t, idx.Upsert(ctx, 4, 10, now.AddDate(0, 0, -10), []float32{0.95, 0.3122, 0}))

	query := []float32{1, 0, 0}

	tests := []struct {
		name   string
		filter SearchFilter
		want   []int64
	}{
		{
			name:   "no filter returns all by score",
			filter: SearchFilter{},
			want:   []int64{1, 3, 4, 2},
		},
		{
			name:   "published after drops old entries",
			filter: SearchFilter{PublishedAfter: now.AddDate(0, 0, -7)},
			want:   []int64{1, 3, 2},
		},
		{
			name:   "published before drops future entries",
			filter: SearchFilter{PublishedBefore: now},
			want:   []int64{1, 4, 2},
		},
		{
			name:   "channel filter keeps one channel",
			filter: SearchFilter{ChannelID: 20},
			want:   []int64{2},
		},
		{
			name:   "exclude drops the query message",
			filter: SearchFilter{ExcludeMessageID: 1},
			want:   []int64{3, 4, 2},
		},
		{
			name: "combined assignment filter",
			filter: SearchFilter{
				PublishedAfter:   now.AddDate(0, 0, -7),
				PublishedBefore:  now,
				ExcludeMessageID: 1,
			},
			want: []int64{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			neighbors, err := idx.Search(ctx, query, 10, tt.filter)
			require.NoError(t, err)

			got := make([]int64, 0, len(neighbors))
			for _, n := range neighbors {
				got = append(got, n.MessageID)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryIndexSearchLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, 1, 10, now, []float32{1, 0, 0}))
	require.NoError(t, idx.Upsert(ctx, 2, 10, now, []float32{0.9, 0.4359, 0}))
	require.NoError(t, idx.Upsert(ctx, 3, 10, now, []float32{0, 1, 0}))

	neighbors, err := idx.Search(ctx, []float32{1, 0, 0}, 2, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, int64(1), neighbors[0].MessageID)
	assert.Equal(t, int64(2), neighbors[1].MessageID)
}

func TestMemoryIndexClusterLifecycle(t *testing.T) {
	ctx := context.Background()

	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, 1, 10, time.Now(), []float32{1, 0, 0}))
	require.NoError(t, idx.SetCluster(ctx, 1, "c1"))

	neighbors, err := idx.Search(ctx, []float32{1, 0, 0}, 1, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "c1", neighbors[0].ClusterID)

	require.NoError(t, idx.ClearClusters(ctx))

	neighbors, err = idx.Search(ctx, []float32{1, 0, 0}, 1, SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, neighbors[0].ClusterID)
}
