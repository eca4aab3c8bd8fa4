package topics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/lueurxax/telegram-event-radar/internal/storage"
)

type stubScores struct {
	rows []db.TopicScore
	err  error
}

func (s *stubScores) TopicScoresForMessage(context.Context, int64) ([]db.TopicScore, error) {
	return s.rows, s.err
}

func TestStoreClassifier(t *testing.T) {
	store := &stubScores{rows: []db.TopicScore{
		{TopicID: 7, Score: 0.9},
		{TopicID: 3, Score: 0.4},
	}}

	scores, err := NewStoreClassifier(store).Scores(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	assert.Equal(t, int64(7), scores[0].TopicID)
	assert.Equal(t, int64(7), *Top(scores))
}

func TestStoreClassifierError(t *testing.T) {
	store := &stubScores{err: errors.New("down")}

	_, err := NewStoreClassifier(store).Scores(context.Background(), 1)
	assert.Error(t, err)
}

func TestTopEmpty(t *testing.T) {
	assert.Nil(t, Top(nil))
}

type stubEmbeddings struct {
	vectors map[int64][]float32
}

func (s *stubEmbeddings) Embeddings(_ context.Context, ids []int64) (map[int64][]float32, error) {
	out := make(map[int64][]float32)

	for _, id := range ids {
		if v, ok := s.vectors[id]; ok {
			out[id] = v
		}
	}

	return out, nil
}

func TestVectorClassifier(t *testing.T) {
	cache := NewRefCache(func(context.Context) (map[int64][]float32, error) {
		return map[int64][]float32{
			1: {1, 0, 0},
			2: {0, 1, 0},
			3: {0, 0, 1},
		}, nil
	}, time.Minute)

	embeddings := &stubEmbeddings{vectors: map[int64][]float32{
		10: {0.9, 0.435889894, 0},
	}}

	classifier := NewVectorClassifier(cache, embeddings, 0.3)

	scores, err := classifier.Scores(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// Topic 3 is orthogonal and falls below the floor.
	assert.Equal(t, int64(1), scores[0].TopicID)
	assert.InDelta(t, 0.9, scores[0].Score, 1e-6)
	assert.Equal(t, int64(2), scores[1].TopicID)
}

func TestVectorClassifierUnknownMessage(t *testing.T) {
	cache := NewRefCache(func(context.Context) (map[int64][]float32, error) {
		return map[int64][]float32{1: {1, 0}}, nil
	}, time.Minute)

	classifier := NewVectorClassifier(cache, &stubEmbeddings{}, 0)

	scores, err := classifier.Scores(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, scores)
}

func TestRefCacheTTL(t *testing.T) {
	loads := 0
	cache := NewRefCache(func(context.Context) (map[int64][]float32, error) {
		loads++
		return map[int64][]float32{1: {1}}, nil
	}, 10*time.Minute)

	current := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	_, err := cache.Vectors(context.Background())
	require.NoError(t, err)
	_, err = cache.Vectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	current = current.Add(11 * time.Minute)

	_, err = cache.Vectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestRefCacheInvalidate(t *testing.T) {
	loads := 0
	cache := NewRefCache(func(context.Context) (map[int64][]float32, error) {
		loads++
		return map[int64][]float32{1: {1}}, nil
	}, time.Hour)

	_, err := cache.Vectors(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	_, err = cache.Vectors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestRefCacheLoaderError(t *testing.T) {
	fail := true
	cache := NewRefCache(func(context.Context) (map[int64][]float32, error) {
		if fail {
			return nil, errors.New("db down")
		}

		return map[int64][]float32{1: {1}}, nil
	}, time.Hour)

	_, err := cache.Vectors(context.Background())
	require.Error(t, err)

	fail = false

	vectors, err := cache.Vectors(context.Background())
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
}
