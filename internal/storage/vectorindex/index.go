// Package vectorindex stores message embeddings and answers nearest-neighbor
// queries over them. The production implementation lives on pgvector; an
// in-memory variant backs tests.
package vectorindex

import (
	"context"
	"time"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
)

// SearchFilter narrows a nearest-neighbor query. Zero values mean "no filter".
type SearchFilter struct {
	// PublishedAfter drops candidates older than this time.
	PublishedAfter time.Time
	// PublishedBefore drops candidates newer than this time. The engine
	// sets it to the query message's own publication time so out-of-order
	// ingestion cannot attach a message to a later neighbor's cluster.
	PublishedBefore time.Time
	// ChannelID restricts candidates to one channel when non-zero.
	ChannelID int64
	// ExcludeMessageID drops the query message itself from results.
	ExcludeMessageID int64
}

// Index is the embedding store consumed by the clustering engine.
type Index interface {
	// Upsert stores or replaces the embedding for a message.
	Upsert(ctx context.Context, messageID int64, channelID int64, publishedAt time.Time, embedding []float32) error
	// Search returns up to limit nearest neighbors by cosine similarity,
	// most similar first.
	Search(ctx context.Context, embedding []float32, limit int, filter SearchFilter) ([]domain.Neighbor, error)
	// SetCluster records which cluster a message belongs to, so search
	// results can carry cluster assignments.
	SetCluster(ctx context.Context, messageID int64, clusterID string) error
	// ClearClusters drops every stored embedding's cluster assignment.
	ClearClusters(ctx context.Context) error
	// Embeddings returns stored embeddings for the given message ids,
	// keyed by message id. Missing ids are absent from the map.
	Embeddings(ctx context.Context, messageIDs []int64) (map[int64][]float32, error)
}
