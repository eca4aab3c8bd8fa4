package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
)

type memoryEntry struct {
	messageID   int64
	channelID   int64
	publishedAt time.Time
	embedding   []float32
	clusterID   string
}

// MemoryIndex is an in-memory Index with exact cosine search. It backs tests
// and local runs without Postgres.
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[int64]*memoryEntry
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[int64]*memoryEntry)}
}

func (m *MemoryIndex) Upsert(_ context.Context, messageID int64, channelID int64, publishedAt time.Time, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	entry, ok := m.entries[messageID]
	if !ok {
		entry = &memoryEntry{messageID: messageID}
		m.entries[messageID] = entry
	}

	entry.channelID = channelID
	entry.publishedAt = publishedAt
	entry.embedding = vec

	return nil
}

func (m *MemoryIndex) Search(_ context.Context, embedding []float32, limit int, filter SearchFilter) ([]domain.Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var neighbors []domain.Neighbor

	for _, entry := range m.entries {
		if filter.ExcludeMessageID != 0 && entry.messageID == filter.ExcludeMessageID {
			continue
		}

		if !filter.PublishedAfter.IsZero() && entry.publishedAt.Before(filter.PublishedAfter) {
			continue
		}

		if !filter.PublishedBefore.IsZero() && entry.publishedAt.After(filter.PublishedBefore) {
			continue
		}

		if filter.ChannelID != 0 && entry.channelID != filter.ChannelID {
			continue
		}

		neighbors = append(neighbors, domain.Neighbor{
			MessageID:   entry.messageID,
			Score:       cosineSimilarity(embedding, entry.embedding),
			ChannelID:   entry.channelID,
			PublishedAt: entry.publishedAt,
			ClusterID:   entry.clusterID,
		})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}

		return neighbors[i].MessageID < neighbors[j].MessageID
	})

	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}

	return neighbors, nil
}

func (m *MemoryIndex) SetCluster(_ context.Context, messageID int64, clusterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[messageID]; ok {
		entry.clusterID = clusterID
	}

	return nil
}

func (m *MemoryIndex) ClearClusters(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.entries {
		entry.clusterID = ""
	}

	return nil
}

func (m *MemoryIndex) Embeddings(_ context.Context, messageIDs []int64) (map[int64][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[int64][]float32, len(messageIDs))

	for _, id := range messageIDs {
		if entry, ok := m.entries[id]; ok {
			vec := make([]float32, len(entry.embedding))
			copy(vec, entry.embedding)
			result[id] = vec
		}
	}

	return result, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
