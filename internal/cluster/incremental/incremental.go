// Package incremental assigns single messages to event clusters as they
// arrive. A message joins the nearest existing cluster when its similarity
// clears an adaptively tightened threshold, otherwise it seeds a new one.
package incremental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-event-radar/internal/cluster/title"
	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	"github.com/lueurxax/telegram-event-radar/internal/core/embeddings"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
	"github.com/lueurxax/telegram-event-radar/internal/platform/observability"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
)

const (
	retrievalMinNeighbors = 3
	decisionMinNeighbors  = 2
	maxSummaryLength      = 500
)

// Assignment outcome labels.
const (
	outcomeExisting = "existing"
	outcomeAppended = "appended"
	outcomeCreated  = "created"
	outcomeCapped   = "capped"
)

// Store is the cluster persistence surface the engine needs.
type Store interface {
	ClusterIDForMessage(ctx context.Context, messageID int64) (string, error)
	CreateCluster(ctx context.Context, c *domain.Cluster) error
	GetCluster(ctx context.Context, clusterID string) (*domain.Cluster, error)
	InsertMembership(ctx context.Context, m domain.Membership) (bool, error)
	DeleteCluster(ctx context.Context, clusterID string) error
	UpdateClusterStats(ctx context.Context, clusterID string, stats domain.ClusterStats) error
	UpdateClusterTitle(ctx context.Context, clusterID, newTitle string) error
	SetPrimaryTopic(ctx context.Context, clusterID string, topicID int64) error
	DistinctChannels(ctx context.Context, clusterID string) ([]int64, error)
	GetClusterTexts(ctx context.Context, clusterID string) ([]string, error)
	TopTopicForMessage(ctx context.Context, messageID int64) (*int64, error)
}

// Config tunes the assignment thresholds.
type Config struct {
	BaseThreshold          float64
	SearchWindowSize       int
	MaxClusterAgeDays      int
	MaxClusterSize         int
	RetrievalDensityGap    float64
	RetrievalDensityFactor float64
	DecisionDensityGap     float64
	DecisionDensityFactor  float64
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		BaseThreshold:          0.75,
		SearchWindowSize:       30,
		MaxClusterAgeDays:      7,
		MaxClusterSize:         50,
		RetrievalDensityGap:    0.15,
		RetrievalDensityFactor: 0.95,
		DecisionDensityGap:     0.05,
		DecisionDensityFactor:  0.98,
	}
}

// Result reports where a message landed.
type Result struct {
	ClusterID string
	// Created is true when the message seeded a new cluster.
	Created bool
	// Similarity is the score recorded on the membership row.
	Similarity float64
}

// Engine wires the embedding provider, vector index and cluster store into
// the assignment algorithm.
type Engine struct {
	store    Store
	index    vectorindex.Index
	embedder embeddings.Client
	cfg      Config
	logger   *zerolog.Logger
}

// New returns an assignment engine.
func New(store Store, index vectorindex.Index, embedder embeddings.Client, cfg Config, logger *zerolog.Logger) *Engine {
	return &Engine{store: store, index: index, embedder: embedder, cfg: cfg, logger: logger}
}

// Assign places the message into a cluster and returns the assignment.
// Calling it again for an already clustered message is a no-op returning the
// existing cluster id.
func (e *Engine) Assign(ctx context.Context, msg domain.Message) (*Result, error) {
	start := time.Now()
	defer func() {
		observability.AssignmentDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	existing, err := e.store.ClusterIDForMessage(ctx, msg.ID)
	if err != nil {
		return nil, fmt.Errorf("membership lookup for message %d: %w", msg.ID, err)
	}

	if existing != "" {
		observability.AssignmentsTotal.WithLabelValues(outcomeExisting).Inc()

		return &Result{ClusterID: existing}, nil
	}

	embedding, err := e.embedder.GetEmbedding(ctx, msg.Text)
	if err != nil {
		return nil, fmt.Errorf("embed message %d: %w", msg.ID, err)
	}

	if err := e.index.Upsert(ctx, msg.ID, msg.ChannelID, msg.PublishedAt, embedding); err != nil {
		return nil, err
	}

	cutoff := msg.PublishedAt.AddDate(0, 0, -e.cfg.MaxClusterAgeDays)

	neighbors, err := e.index.Search(ctx, embedding, e.cfg.SearchWindowSize, vectorindex.SearchFilter{
		PublishedAfter:   cutoff,
		PublishedBefore:  msg.PublishedAt,
		ExcludeMessageID: msg.ID,
	})
	if err != nil {
		return nil, err
	}

	neighbors = refineByRetrievalDensity(neighbors, e.cfg.RetrievalDensityGap, e.cfg.RetrievalDensityFactor)
	threshold := effectiveThreshold(neighbors, e.cfg.BaseThreshold, e.cfg.DecisionDensityGap, e.cfg.DecisionDensityFactor)

	observability.EffectiveThreshold.Observe(threshold)

	if len(neighbors) > 0 && neighbors[0].Score >= threshold {
		result, err := e.tryAppend(ctx, msg, neighbors[0])
		if err != nil {
			return nil, err
		}

		if result != nil {
			return result, nil
		}
	}

	return e.createCluster(ctx, msg)
}

// tryAppend attempts to add the message to the top neighbor's cluster. A nil
// result without error means the caller should create a new cluster instead.
func (e *Engine) tryAppend(ctx context.Context, msg domain.Message, top domain.Neighbor) (*Result, error) {
	clusterID := top.ClusterID
	if clusterID == "" {
		var err error

		clusterID, err = e.store.ClusterIDForMessage(ctx, top.MessageID)
		if err != nil {
			return nil, fmt.Errorf("membership lookup for neighbor %d: %w", top.MessageID, err)
		}
	}

	if clusterID == "" {
		return nil, nil
	}

	cluster, err := e.store.GetCluster(ctx, clusterID)
	if err != nil {
		if errors.Is(err, coreerrors.ErrClusterNotFound) {
			e.logger.Warn().Str("cluster_id", clusterID).Int64("message_id", msg.ID).
				Msg("neighbor references missing cluster, creating new one")

			return nil, nil
		}

		return nil, err
	}

	if cluster.Stats.MessageCount > e.cfg.MaxClusterSize {
		observability.AssignmentsTotal.WithLabelValues(outcomeCapped).Inc()
		e.logger.Debug().Str("cluster_id", clusterID).Int("size", cluster.Stats.MessageCount).
			Msg("cluster at size cap, starting new one")

		return nil, nil
	}

	inserted, err := e.store.InsertMembership(ctx, domain.Membership{
		ClusterID:       clusterID,
		MessageID:       msg.ID,
		SimilarityScore: top.Score,
	})
	if err != nil {
		return nil, fmt.Errorf("append message %d to cluster %s: %w", msg.ID, clusterID, err)
	}

	if !inserted {
		// Lost a race with a concurrent assignment of the same message.
		existing, err := e.store.ClusterIDForMessage(ctx, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("membership lookup after conflict: %w", err)
		}

		observability.AssignmentsTotal.WithLabelValues(outcomeExisting).Inc()

		return &Result{ClusterID: existing}, nil
	}

	channels, err := e.store.DistinctChannels(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	stats := domain.ClusterStats{
		MessageCount: cluster.Stats.MessageCount + 1,
		ChannelCount: len(channels),
		Channels:     channels,
	}

	if err := e.store.UpdateClusterStats(ctx, clusterID, stats); err != nil {
		return nil, err
	}

	texts, err := e.store.GetClusterTexts(ctx, clusterID)
	if err != nil {
		return nil, err
	}

	if newTitle := title.Summarize(texts); newTitle != "" {
		if err := e.store.UpdateClusterTitle(ctx, clusterID, newTitle); err != nil {
			return nil, err
		}
	}

	if err := e.index.SetCluster(ctx, msg.ID, clusterID); err != nil {
		return nil, err
	}

	observability.AssignmentsTotal.WithLabelValues(outcomeAppended).Inc()
	e.logger.Debug().Str("cluster_id", clusterID).Int64("message_id", msg.ID).
		Float64("similarity", top.Score).Msg("message appended to cluster")

	return &Result{ClusterID: clusterID, Similarity: top.Score}, nil
}

func (e *Engine) createCluster(ctx context.Context, msg domain.Message) (*Result, error) {
	clusterID := uuid.NewString()

	cluster := &domain.Cluster{
		ID:      clusterID,
		Title:   title.Summarize([]string{msg.Text}),
		Summary: truncateRunes(msg.Text, maxSummaryLength),
		Stats: domain.ClusterStats{
			MessageCount: 1,
			ChannelCount: 1,
			Channels:     []int64{msg.ChannelID},
		},
		CreatedAt: msg.PublishedAt,
	}

	if err := e.store.CreateCluster(ctx, cluster); err != nil {
		return nil, fmt.Errorf("create cluster for message %d: %w", msg.ID, err)
	}

	inserted, err := e.store.InsertMembership(ctx, domain.Membership{
		ClusterID:       clusterID,
		MessageID:       msg.ID,
		SimilarityScore: 1.0,
		IsPrimary:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("seed membership for cluster %s: %w", clusterID, err)
	}

	if !inserted {
		existing, err := e.store.ClusterIDForMessage(ctx, msg.ID)
		if err != nil {
			return nil, fmt.Errorf("membership lookup after conflict: %w", err)
		}

		// The just-created cluster never got its seed member. Drop it right
		// away instead of leaving it for the singleton sweep.
		if err := e.store.DeleteCluster(ctx, clusterID); err != nil {
			return nil, fmt.Errorf("drop empty cluster %s after conflict: %w", clusterID, err)
		}

		observability.AssignmentsTotal.WithLabelValues(outcomeExisting).Inc()

		return &Result{ClusterID: existing}, nil
	}

	topicID, err := e.store.TopTopicForMessage(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	if topicID != nil {
		if err := e.store.SetPrimaryTopic(ctx, clusterID, *topicID); err != nil {
			return nil, err
		}
	}

	if err := e.index.SetCluster(ctx, msg.ID, clusterID); err != nil {
		return nil, err
	}

	observability.AssignmentsTotal.WithLabelValues(outcomeCreated).Inc()
	e.logger.Debug().Str("cluster_id", clusterID).Int64("message_id", msg.ID).Msg("new cluster created")

	return &Result{ClusterID: clusterID, Created: true, Similarity: 1.0}, nil
}

// refineByRetrievalDensity drops weak tail neighbors in sparse regions. When
// the top result sits well above the third one the neighborhood is sparse and
// only results close to the top score are trustworthy.
func refineByRetrievalDensity(neighbors []domain.Neighbor, gap, factor float64) []domain.Neighbor {
	if len(neighbors) < retrievalMinNeighbors {
		return neighbors
	}

	if neighbors[0].Score-neighbors[2].Score <= gap {
		return neighbors
	}

	floor := neighbors[0].Score * factor

	refined := neighbors[:0:0]
	for _, n := range neighbors {
		if n.Score >= floor {
			refined = append(refined, n)
		}
	}

	return refined
}

// effectiveThreshold raises the acceptance bar in dense regions. Two nearly
// tied top results above the base threshold usually belong to two distinct
// but similar events, so the bar moves just under the top score.
func effectiveThreshold(neighbors []domain.Neighbor, base, gap, factor float64) float64 {
	if len(neighbors) < decisionMinNeighbors {
		return base
	}

	top1, top2 := neighbors[0].Score, neighbors[1].Score
	if top1-top2 < gap && top1 >= base {
		if adjusted := top1 * factor; adjusted > base {
			return adjusted
		}
	}

	return base
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}
