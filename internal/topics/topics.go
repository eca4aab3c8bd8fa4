// Package topics is the read-only boundary to the external topic
// classifier. The clustering core only consumes ranked labels; it never
// assigns topics itself.
package topics

import (
	"context"
	"fmt"
	"math"
	"sort"

	db "github.com/lueurxax/telegram-event-radar/internal/storage"
)

// Score is one ranked topic label.
type Score struct {
	TopicID int64
	Score   float64
}

// Classifier returns ranked topic labels for a message, best first. An empty
// slice means the message has no labels yet.
type Classifier interface {
	Scores(ctx context.Context, messageID int64) ([]Score, error)
}

type scoreSource interface {
	TopicScoresForMessage(ctx context.Context, messageID int64) ([]db.TopicScore, error)
}

// StoreClassifier reads labels the external classifier already persisted.
type StoreClassifier struct {
	store scoreSource
}

// NewStoreClassifier returns a classifier over persisted labels.
func NewStoreClassifier(store scoreSource) *StoreClassifier {
	return &StoreClassifier{store: store}
}

func (c *StoreClassifier) Scores(ctx context.Context, messageID int64) ([]Score, error) {
	rows, err := c.store.TopicScoresForMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load topic scores: %w", err)
	}

	scores := make([]Score, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, Score{TopicID: row.TopicID, Score: row.Score})
	}

	return scores, nil
}

type embeddingSource interface {
	Embeddings(ctx context.Context, messageIDs []int64) (map[int64][]float32, error)
}

// VectorClassifier ranks topics by cosine similarity between a message's
// embedding and cached topic reference vectors. It backs deployments where
// the external classifier has not labeled a message yet.
type VectorClassifier struct {
	cache      *RefCache
	embeddings embeddingSource
	minScore   float64
}

// NewVectorClassifier returns a similarity-based classifier. Labels scoring
// below minScore are dropped.
func NewVectorClassifier(cache *RefCache, embeddings embeddingSource, minScore float64) *VectorClassifier {
	return &VectorClassifier{cache: cache, embeddings: embeddings, minScore: minScore}
}

func (c *VectorClassifier) Scores(ctx context.Context, messageID int64) ([]Score, error) {
	vectors, err := c.embeddings.Embeddings(ctx, []int64{messageID})
	if err != nil {
		return nil, fmt.Errorf("load message embedding: %w", err)
	}

	embedding, ok := vectors[messageID]
	if !ok {
		return nil, nil
	}

	return c.ScoreEmbedding(ctx, embedding)
}

// ScoreEmbedding ranks topics for an embedding that is already in hand.
func (c *VectorClassifier) ScoreEmbedding(ctx context.Context, embedding []float32) ([]Score, error) {
	refs, err := c.cache.Vectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load reference vectors: %w", err)
	}

	var scores []Score

	for topicID, ref := range refs {
		sim := cosine(embedding, ref)
		if sim < c.minScore {
			continue
		}

		scores = append(scores, Score{TopicID: topicID, Score: sim})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}

		return scores[i].TopicID < scores[j].TopicID
	})

	return scores, nil
}

// Top returns the best label from a ranked score list, or nil when empty.
func Top(scores []Score) *int64 {
	if len(scores) == 0 {
		return nil
	}

	id := scores[0].TopicID

	return &id
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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
