package incremental

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
)

type mockStore struct {
	clusters    map[string]*domain.Cluster
	memberships map[int64]domain.Membership
	messages    map[int64]domain.Message
	topics      map[int64]int64
}

func newMockStore() *mockStore {
	return &mockStore{
		clusters:    make(map[string]*domain.Cluster),
		memberships: make(map[int64]domain.Membership),
		messages:    make(map[int64]domain.Message),
		topics:      make(map[int64]int64),
	}
}

func (s *mockStore) ClusterIDForMessage(_ context.Context, messageID int64) (string, error) {
	if m, ok := s.memberships[messageID]; ok {
		return m.ClusterID, nil
	}

	return "", nil
}

func (s *mockStore) CreateCluster(_ context.Context, c *domain.Cluster) error {
	cp := *c
	s.clusters[c.ID] = &cp

	return nil
}

func (s *mockStore) GetCluster(_ context.Context, clusterID string) (*domain.Cluster, error) {
	c, ok := s.clusters[clusterID]
	if !ok {
		return nil, coreerrors.ErrClusterNotFound
	}

	cp := *c

	return &cp, nil
}

func (s *mockStore) InsertMembership(_ context.Context, m domain.Membership) (bool, error) {
	if _, ok := s.memberships[m.MessageID]; ok {
		return false, nil
	}

	s.memberships[m.MessageID] = m

	return true, nil
}

func (s *mockStore) DeleteCluster(_ context.Context, clusterID string) error {
	delete(s.clusters, clusterID)

	return nil
}

func (s *mockStore) UpdateClusterStats(_ context.Context, clusterID string, stats domain.ClusterStats) error {
	s.clusters[clusterID].Stats = stats

	return nil
}

func (s *mockStore) UpdateClusterTitle(_ context.Context, clusterID, newTitle string) error {
	s.clusters[clusterID].Title = newTitle

	return nil
}

func (s *mockStore) SetPrimaryTopic(_ context.Context, clusterID string, topicID int64) error {
	s.clusters[clusterID].PrimaryTopicID = &topicID

	return nil
}

func (s *mockStore) DistinctChannels(_ context.Context, clusterID string) ([]int64, error) {
	seen := make(map[int64]struct{})

	var channels []int64

	for id, m := range s.memberships {
		if m.ClusterID != clusterID {
			continue
		}

		ch := s.messages[id].ChannelID
		if _, ok := seen[ch]; !ok {
			seen[ch] = struct{}{}
			channels = append(channels, ch)
		}
	}

	return channels, nil
}

func (s *mockStore) GetClusterTexts(_ context.Context, clusterID string) ([]string, error) {
	var texts []string

	for id, m := range s.memberships {
		if m.ClusterID == clusterID {
			texts = append(texts, s.messages[id].Text)
		}
	}

	return texts, nil
}

func (s *mockStore) TopTopicForMessage(_ context.Context, messageID int64) (*int64, error) {
	if t, ok := s.topics[messageID]; ok {
		return &t, nil
	}

	return nil, nil
}

type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	return s.vectors[text], nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }

func newEngine(store *mockStore, embedder *stubEmbedder, cfg Config) *Engine {
	logger := zerolog.Nop()

	return New(store, vectorindex.NewMemoryIndex(), embedder, cfg, &logger)
}

func TestAssignScenario(t *testing.T) {
	// Unit vectors with cos(A,B)=0.82, cos(A,C)=0.60, cos(B,C)=0.49.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"event first report":  {1, 0, 0},
		"event second report": {0.82, 0.5724, 0},
		"unrelated story":     {0.60, 0, 0.80},
	}}

	store := newMockStore()
	engine := newEngine(store, embedder, DefaultConfig())

	now := time.Now()

	msgA := domain.Message{ID: 1, ChannelID: 10, Text: "event first report", PublishedAt: now}
	msgB := domain.Message{ID: 2, ChannelID: 20, Text: "event second report", PublishedAt: now.Add(time.Hour)}
	msgC := domain.Message{ID: 3, ChannelID: 10, Text: "unrelated story", PublishedAt: now.Add(2 * time.Hour)}

	for id, m := range map[int64]domain.Message{1: msgA, 2: msgB, 3: msgC} {
		store.messages[id] = m
	}

	ctx := context.Background()

	resA, err := engine.Assign(ctx, msgA)
	require.NoError(t, err)
	assert.True(t, resA.Created)

	resB, err := engine.Assign(ctx, msgB)
	require.NoError(t, err)
	assert.False(t, resB.Created)
	assert.Equal(t, resA.ClusterID, resB.ClusterID)
	assert.InDelta(t, 0.82, resB.Similarity, 0.001)

	resC, err := engine.Assign(ctx, msgC)
	require.NoError(t, err)
	assert.True(t, resC.Created)
	assert.NotEqual(t, resA.ClusterID, resC.ClusterID)

	joint := store.clusters[resA.ClusterID]
	assert.Equal(t, 2, joint.Stats.MessageCount)
	assert.Equal(t, 2, joint.Stats.ChannelCount)
}

func TestAssignIgnoresLaterNeighbors(t *testing.T) {
	// Out-of-order ingestion: the closest neighbor was published after the
	// message being assigned, so it must not pull the message into its cluster.
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"event first report":  {1, 0, 0},
		"event second report": {0.82, 0.5724, 0},
	}}

	store := newMockStore()
	engine := newEngine(store, embedder, DefaultConfig())

	now := time.Now()

	msgA := domain.Message{ID: 1, ChannelID: 10, Text: "event first report", PublishedAt: now}
	msgB := domain.Message{ID: 2, ChannelID: 20, Text: "event second report", PublishedAt: now.Add(48 * time.Hour)}
	store.messages[1] = msgA
	store.messages[2] = msgB

	ctx := context.Background()

	resB, err := engine.Assign(ctx, msgB)
	require.NoError(t, err)
	require.True(t, resB.Created)

	resA, err := engine.Assign(ctx, msgA)
	require.NoError(t, err)
	assert.True(t, resA.Created)
	assert.NotEqual(t, resB.ClusterID, resA.ClusterID)
}

// racingStore simulates another writer inserting the same message's membership
// between the engine's early lookup and its seed insert.
type racingStore struct {
	*mockStore
	winnerClusterID string
	raced           bool
}

func (s *racingStore) InsertMembership(ctx context.Context, m domain.Membership) (bool, error) {
	if !s.raced {
		s.raced = true
		s.memberships[m.MessageID] = domain.Membership{ClusterID: s.winnerClusterID, MessageID: m.MessageID}

		return false, nil
	}

	return s.mockStore.InsertMembership(ctx, m)
}

func TestCreateClusterDropsOrphanOnSeedRace(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{"raced": {1, 0, 0}}}

	store := &racingStore{mockStore: newMockStore(), winnerClusterID: "winner"}
	store.clusters["winner"] = &domain.Cluster{ID: "winner"}

	logger := zerolog.Nop()
	engine := New(store, vectorindex.NewMemoryIndex(), embedder, DefaultConfig(), &logger)

	msg := domain.Message{ID: 1, ChannelID: 10, Text: "raced", PublishedAt: time.Now()}
	store.messages[1] = msg

	res, err := engine.Assign(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "winner", res.ClusterID)

	// The losing cluster row must not linger with zero members.
	assert.Len(t, store.clusters, 1)
	assert.Contains(t, store.clusters, "winner")
}

func TestAssignIdempotent(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{"solo": {1, 0, 0}}}
	store := newMockStore()
	engine := newEngine(store, embedder, DefaultConfig())

	msg := domain.Message{ID: 1, ChannelID: 10, Text: "solo", PublishedAt: time.Now()}
	store.messages[1] = msg

	first, err := engine.Assign(context.Background(), msg)
	require.NoError(t, err)

	second, err := engine.Assign(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, first.ClusterID, second.ClusterID)
	assert.False(t, second.Created)
	assert.Len(t, store.memberships, 1)
	assert.Len(t, store.clusters, 1)
}

func TestAssignSizeCap(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"seed": {1, 0, 0},
		"next": {0.999, 0.0447, 0},
	}}

	store := newMockStore()
	engine := newEngine(store, embedder, DefaultConfig())

	ctx := context.Background()

	seed := domain.Message{ID: 1, ChannelID: 10, Text: "seed", PublishedAt: time.Now()}
	store.messages[1] = seed

	res, err := engine.Assign(ctx, seed)
	require.NoError(t, err)
	require.True(t, res.Created)

	// Simulate a cluster already grown past the cap.
	store.clusters[res.ClusterID].Stats.MessageCount = 51

	next := domain.Message{ID: 2, ChannelID: 10, Text: "next", PublishedAt: time.Now()}
	store.messages[2] = next

	capped, err := engine.Assign(ctx, next)
	require.NoError(t, err)
	assert.True(t, capped.Created)
	assert.NotEqual(t, res.ClusterID, capped.ClusterID)
}

func TestAssignBelowCapAppends(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"seed": {1, 0, 0},
		"next": {0.999, 0.0447, 0},
	}}

	store := newMockStore()
	engine := newEngine(store, embedder, DefaultConfig())

	ctx := context.Background()

	seed := domain.Message{ID: 1, ChannelID: 10, Text: "seed", PublishedAt: time.Now()}
	store.messages[1] = seed

	res, err := engine.Assign(ctx, seed)
	require.NoError(t, err)

	store.clusters[res.ClusterID].Stats.MessageCount = 50

	next := domain.Message{ID: 2, ChannelID: 10, Text: "next", PublishedAt: time.Now()}
	store.messages[2] = next

	appended, err := engine.Assign(ctx, next)
	require.NoError(t, err)
	assert.False(t, appended.Created)
	assert.Equal(t, res.ClusterID, appended.ClusterID)
}

func TestAssignCopiesTopic(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{"scored": {1, 0, 0}}}
	store := newMockStore()
	store.topics[1] = 42

	engine := newEngine(store, embedder, DefaultConfig())

	msg := domain.Message{ID: 1, ChannelID: 10, Text: "scored", PublishedAt: time.Now()}
	store.messages[1] = msg

	res, err := engine.Assign(context.Background(), msg)
	require.NoError(t, err)

	cluster := store.clusters[res.ClusterID]
	require.NotNil(t, cluster.PrimaryTopicID)
	assert.Equal(t, int64(42), *cluster.PrimaryTopicID)
}

func TestRefineByRetrievalDensity(t *testing.T) {
	n := func(score float64) domain.Neighbor { return domain.Neighbor{Score: score} }

	tests := []struct {
		name      string
		neighbors []domain.Neighbor
		want      int
	}{
		{
			name:      "fewer than three neighbors untouched",
			neighbors: []domain.Neighbor{n(0.9), n(0.5)},
			want:      2,
		},
		{
			name:      "dense region untouched",
			neighbors: []domain.Neighbor{n(0.9), n(0.85), n(0.8), n(0.4)},
			want:      4,
		},
		{
			name:      "sparse region refiltered to near-top scores",
			neighbors: []domain.Neighbor{n(0.9), n(0.88), n(0.6), n(0.5)},
			want:      2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := refineByRetrievalDensity(tt.neighbors, 0.15, 0.95)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestEffectiveThreshold(t *testing.T) {
	n := func(score float64) domain.Neighbor { return domain.Neighbor{Score: score} }

	tests := []struct {
		name      string
		neighbors []domain.Neighbor
		want      float64
	}{
		{
			name:      "single neighbor keeps base",
			neighbors: []domain.Neighbor{n(0.9)},
			want:      0.75,
		},
		{
			name:      "clear gap keeps base",
			neighbors: []domain.Neighbor{n(0.9), n(0.7)},
			want:      0.75,
		},
		{
			name:      "dense tie raises threshold",
			neighbors: []domain.Neighbor{n(0.9), n(0.88)},
			want:      0.882,
		},
		{
			name:      "tie below base keeps base",
			neighbors: []domain.Neighbor{n(0.7), n(0.69)},
			want:      0.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := effectiveThreshold(tt.neighbors, 0.75, 0.05, 0.98)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// Raising the base threshold can only reduce the set of accepted appends.
func TestThresholdMonotonicity(t *testing.T) {
	n := func(score float64) domain.Neighbor { return domain.Neighbor{Score: score} }

	neighbors := []domain.Neighbor{n(0.8), n(0.6)}

	prev := -1.0

	for _, base := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		got := effectiveThreshold(neighbors, base, 0.05, 0.98)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}
