package batch

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
)

type mockStore struct {
	clusters    map[string]*domain.Cluster
	memberships map[int64]domain.Membership
	messages    []domain.Message
	lockHeld    bool
	lockBusy    bool
	wiped       int
}

func newMockStore() *mockStore {
	return &mockStore{
		clusters:    make(map[string]*domain.Cluster),
		memberships: make(map[int64]domain.Membership),
	}
}

func (s *mockStore) CreateCluster(_ context.Context, c *domain.Cluster) error {
	cp := *c
	s.clusters[c.ID] = &cp

	return nil
}

func (s *mockStore) InsertMembership(_ context.Context, m domain.Membership) (bool, error) {
	if _, ok := s.memberships[m.MessageID]; ok {
		return false, nil
	}

	s.memberships[m.MessageID] = m

	return true, nil
}

func (s *mockStore) SetPrimaryTopic(_ context.Context, clusterID string, topicID int64) error {
	s.clusters[clusterID].PrimaryTopicID = &topicID

	return nil
}

func (s *mockStore) TopTopicForMessage(_ context.Context, _ int64) (*int64, error) {
	return nil, nil
}

func (s *mockStore) TryAcquireAdvisoryLock(_ context.Context, _ int64) (bool, error) {
	if s.lockBusy {
		return false, nil
	}

	s.lockHeld = true

	return true, nil
}

func (s *mockStore) ReleaseAdvisoryLock(_ context.Context, _ int64) error {
	s.lockHeld = false

	return nil
}

func (s *mockStore) WipeClusters(_ context.Context) error {
	s.wiped++
	s.clusters = make(map[string]*domain.Cluster)
	s.memberships = make(map[int64]domain.Membership)

	return nil
}

func (s *mockStore) GetMessagesWithEmbeddings(_ context.Context, _ time.Time, limit int) ([]domain.Message, error) {
	if len(s.messages) > limit {
		return s.messages[:limit], nil
	}

	return s.messages, nil
}

// blob generates points tightly jittered around a per-blob center so every
// dimension carries between-blob variance.
func blob(rng *rand.Rand, dims, axis, count int) [][]float32 {
	out := make([][]float32, count)

	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(axis+1) + float32(rng.NormFloat64())*0.01
		}

		out[i] = v
	}

	return out
}

func seedRun(t *testing.T, store *mockStore, index vectorindex.Index, perBlob int) {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	now := time.Now()

	var id int64

	for axis := 0; axis < 3; axis++ {
		for _, vec := range blob(rng, 16, axis, perBlob) {
			id++

			msg := domain.Message{
				ID:          id,
				ChannelID:   id % 4,
				Text:        "message text long enough",
				PublishedAt: now.Add(-time.Duration(id) * time.Minute),
			}
			store.messages = append(store.messages, msg)

			require.NoError(t, index.Upsert(context.Background(), id, msg.ChannelID, msg.PublishedAt, vec))
		}
	}
}

func newRunner(store *mockStore, index vectorindex.Index, cfg Config) *Runner {
	logger := zerolog.Nop()

	return New(store, index, cfg, &logger)
}

func TestRunThreeBlobs(t *testing.T) {
	store := newMockStore()
	index := vectorindex.NewMemoryIndex()
	seedRun(t, store, index, 10)

	cfg := DefaultConfig()
	cfg.DisablePCA = true

	runner := newRunner(store, index, cfg)

	result, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.ClustersCreated)
	assert.Equal(t, 30, result.MessagesProcessed)
	assert.Equal(t, 0, result.NoiseMessages)
	assert.Equal(t, strategyDensity, result.Metrics.Strategy)
	assert.Len(t, store.clusters, 3)
	assert.Len(t, store.memberships, 30)
	assert.False(t, store.lockHeld)
	assert.Equal(t, 1, store.wiped)

	require.NotNil(t, result.Metrics.SilhouetteScore)
	assert.Greater(t, *result.Metrics.SilhouetteScore, 0.5)

	for _, stats := range result.Metrics.PerCluster {
		assert.InDelta(t, 1.0, stats.Max, 1e-9)
		assert.Greater(t, stats.Min, 0.9)
	}
}

func TestRunBusy(t *testing.T) {
	store := newMockStore()
	store.lockBusy = true

	runner := newRunner(store, vectorindex.NewMemoryIndex(), DefaultConfig())

	_, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, coreerrors.ErrMaintenanceBusy)
}

func TestRunInsufficientData(t *testing.T) {
	store := newMockStore()
	index := vectorindex.NewMemoryIndex()

	now := time.Now()
	store.messages = []domain.Message{{ID: 1, ChannelID: 1, Text: "just one message", PublishedAt: now}}
	require.NoError(t, index.Upsert(context.Background(), 1, 1, now, []float32{1, 0}))

	runner := newRunner(store, index, DefaultConfig())

	_, err := runner.Run(context.Background())
	assert.ErrorIs(t, err, coreerrors.ErrInsufficientData)
	assert.False(t, store.lockHeld)
}

func TestDBSCAN(t *testing.T) {
	points := [][]float64{
		{0, 0}, {0.1, 0}, {0, 0.1},
		{5, 5}, {5.1, 5}, {5, 5.1},
		{100, 100},
	}

	labels := dbscan(points, 0.5, 3)
	clusters, noise := countClusters(labels)

	assert.Equal(t, 2, clusters)
	assert.Equal(t, 1, noise)
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])
	assert.NotEqual(t, labels[0], labels[3])
	assert.Equal(t, noiseLabel, labels[6])
}

func TestKNNPercentileEps(t *testing.T) {
	points := [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {10, 10}}

	eps := kNNPercentileEps(points, 2, 0.1)
	assert.Greater(t, eps, 0.0)
	assert.Less(t, eps, 2.0)
}

func TestBestKMeansFindsTwoBlobs(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	var points [][]float64

	for i := 0; i < 20; i++ {
		points = append(points, []float64{rng.NormFloat64() * 0.1, rng.NormFloat64() * 0.1})
	}

	for i := 0; i < 20; i++ {
		points = append(points, []float64{10 + rng.NormFloat64()*0.1, 10 + rng.NormFloat64()*0.1})
	}

	labels := bestKMeans(points)
	require.NotNil(t, labels)

	distinct := make(map[int]struct{})
	for _, l := range labels {
		distinct[l] = struct{}{}
	}

	assert.Len(t, distinct, 2)
	assert.Equal(t, labels[0], labels[19])
	assert.Equal(t, labels[20], labels[39])
	assert.NotEqual(t, labels[0], labels[20])
}

func TestClusterizeSingletonFallback(t *testing.T) {
	runner := newRunner(newMockStore(), vectorindex.NewMemoryIndex(), DefaultConfig())

	// Two distant points can never satisfy a minimum cluster size of three.
	points := [][]float64{{0, 0}, {100, 100}}

	labels, strategy, _ := runner.clusterize(points, len(points))
	assert.Equal(t, strategySingleton, strategy)
	assert.Equal(t, []int{0, 1}, labels)
}

func TestStandardize(t *testing.T) {
	m := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	out := standardize(m)

	for j := 0; j < 2; j++ {
		var sum, sumSq float64

		for i := 0; i < 4; i++ {
			v := out.At(i, j)
			sum += v
			sumSq += v * v
		}

		assert.InDelta(t, 0, sum/4, 1e-9)
		assert.InDelta(t, 1, sumSq/4, 1e-9)
	}
}

func TestReducePCA(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	m := mat.NewDense(40, 8, nil)

	for i := 0; i < 40; i++ {
		// Two informative dimensions, six of pure noise.
		a, b := rng.NormFloat64()*5, rng.NormFloat64()*3

		row := []float64{a, b}
		for j := 0; j < 6; j++ {
			row = append(row, rng.NormFloat64()*0.01)
		}

		m.SetRow(i, row)
	}

	reduced, explained, err := reducePCA(m, 2)
	require.NoError(t, err)

	_, cols := reduced.Dims()
	assert.Equal(t, 2, cols)
	assert.Greater(t, explained, 0.99)
	assert.LessOrEqual(t, explained, 1.0)
}

func TestSummarizeScores(t *testing.T) {
	stats := summarizeScores([]float64{1.0, 0.8, 0.9, 0.7})

	assert.InDelta(t, 0.7, stats.Min, 1e-9)
	assert.InDelta(t, 1.0, stats.Max, 1e-9)
	assert.InDelta(t, 0.85, stats.Mean, 1e-9)
}
