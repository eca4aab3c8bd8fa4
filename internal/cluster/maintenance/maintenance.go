// Package maintenance keeps the cluster set healthy between rebuilds:
// deleting singleton clusters, splitting oversized ones along time and
// similarity boundaries, and reporting clustering quality.
package maintenance

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/lueurxax/telegram-event-radar/internal/cluster/materialize"
	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
	"github.com/lueurxax/telegram-event-radar/internal/platform/observability"
	db "github.com/lueurxax/telegram-event-radar/internal/storage"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
)

// Cluster size distribution boundaries.
const (
	smallClusterMax  = 5
	mediumClusterMax = 20

	singletonShareLimit = 0.3
	largeShareLimit     = 0.1
	lowSimilarityLimit  = 0.7

	hoursPerDay = 24
)

// Store is the persistence surface of maintenance operations.
type Store interface {
	materialize.Store
	TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, lockID int64) error
	DeleteSingletonClusters(ctx context.Context) (int64, error)
	ListClustersLargerThan(ctx context.Context, maxSize int) ([]db.ClusterRef, error)
	GetClusterMembers(ctx context.Context, clusterID string) ([]domain.ClusterMember, error)
	DeleteCluster(ctx context.Context, clusterID string) error
	ListClusterScores(ctx context.Context, limit int) ([]db.ClusterScores, error)
	BackfillPrimaryTopics(ctx context.Context) (int64, error)
}

// Config tunes the split operation.
type Config struct {
	SplitMaxSize   int
	InnerThreshold float64
	BucketDays     int
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{SplitMaxSize: 20, InnerThreshold: 0.9, BucketDays: 1}
}

// Maintainer runs the maintenance operations.
type Maintainer struct {
	store  Store
	index  vectorindex.Index
	cfg    Config
	logger *zerolog.Logger
}

// New returns a maintainer.
func New(store Store, index vectorindex.Index, cfg Config, logger *zerolog.Logger) *Maintainer {
	return &Maintainer{store: store, index: index, cfg: cfg, logger: logger}
}

// CleanupSingletons deletes every cluster holding exactly one message and
// returns the number deleted.
func (m *Maintainer) CleanupSingletons(ctx context.Context) (int64, error) {
	release, err := m.lock(ctx)
	if err != nil {
		observability.MaintenanceRunsTotal.WithLabelValues("cleanup", "busy").Inc()

		return 0, err
	}
	defer release()

	deleted, err := m.store.DeleteSingletonClusters(ctx)
	if err != nil {
		observability.MaintenanceRunsTotal.WithLabelValues("cleanup", "error").Inc()

		return 0, err
	}

	observability.MaintenanceRunsTotal.WithLabelValues("cleanup", "ok").Inc()
	observability.SingletonsDeleted.Add(float64(deleted))
	m.logger.Info().Int64("deleted", deleted).Msg("singleton clusters cleaned up")

	return deleted, nil
}

// SplitResult reports what a split pass changed.
type SplitResult struct {
	ProcessedClusters int `json:"processed_clusters"`
	CreatedClusters   int `json:"created_clusters"`
	MovedMessages     int `json:"moved_messages"`
}

// SplitLargeClusters breaks every oversized cluster into day buckets and,
// within a bucket still over the limit, greedy similarity groups. The
// original cluster is deleted and each group becomes its own cluster.
func (m *Maintainer) SplitLargeClusters(ctx context.Context) (*SplitResult, error) {
	release, err := m.lock(ctx)
	if err != nil {
		observability.MaintenanceRunsTotal.WithLabelValues("split", "busy").Inc()

		return nil, err
	}
	defer release()

	large, err := m.store.ListClustersLargerThan(ctx, m.cfg.SplitMaxSize)
	if err != nil {
		observability.MaintenanceRunsTotal.WithLabelValues("split", "error").Inc()

		return nil, err
	}

	result := &SplitResult{}

	for _, ref := range large {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		created, moved, err := m.splitCluster(ctx, ref.ID)
		if err != nil {
			observability.MaintenanceRunsTotal.WithLabelValues("split", "error").Inc()

			return nil, fmt.Errorf("split cluster %s: %w", ref.ID, err)
		}

		result.ProcessedClusters++
		result.CreatedClusters += created
		result.MovedMessages += moved

		observability.ClustersSplit.Inc()
	}

	observability.MaintenanceRunsTotal.WithLabelValues("split", "ok").Inc()

	if result.ProcessedClusters > 0 {
		m.logger.Info().Int("processed", result.ProcessedClusters).Int("created", result.CreatedClusters).
			Int("moved", result.MovedMessages).Msg("large clusters split")
	}

	return result, nil
}

func (m *Maintainer) splitCluster(ctx context.Context, clusterID string) (created, moved int, err error) {
	members, err := m.store.GetClusterMembers(ctx, clusterID)
	if err != nil {
		return 0, 0, err
	}

	if len(members) == 0 {
		return 0, 0, m.store.DeleteCluster(ctx, clusterID)
	}

	ids := make([]int64, len(members))
	for i, mem := range members {
		ids[i] = mem.MessageID
	}

	stored, err := m.index.Embeddings(ctx, ids)
	if err != nil {
		return 0, 0, err
	}

	embeddings := make(map[int64][]float64, len(stored))
	for id, vec := range stored {
		embeddings[id] = toFloat64(vec)
	}

	subgroups := m.buildSubgroups(members, embeddings)

	// Delete first so the new membership rows do not collide with the old
	// ones on the message uniqueness constraint.
	if err := m.store.DeleteCluster(ctx, clusterID); err != nil {
		return 0, 0, err
	}

	for _, group := range subgroups {
		seedEmb := embeddings[group[0].MessageID]
		build := make([]materialize.Member, len(group))

		for i, mem := range group {
			sim := 1.0
			if i > 0 {
				sim = cosine(seedEmb, embeddings[mem.MessageID])
			}

			build[i] = materialize.Member{
				Message: domain.Message{
					ID:          mem.MessageID,
					ChannelID:   mem.ChannelID,
					Text:        mem.Text,
					PublishedAt: mem.PublishedAt,
				},
				Similarity: sim,
			}
		}

		if _, _, err := materialize.Build(ctx, m.store, m.index, build); err != nil {
			return created, moved, err
		}

		created++
		moved += len(group) - 1
	}

	return created, moved, nil
}

// buildSubgroups partitions members into day buckets, then greedily groups
// oversized buckets by cosine similarity to a seed message.
func (m *Maintainer) buildSubgroups(members []domain.ClusterMember, embeddings map[int64][]float64) [][]domain.ClusterMember {
	bucketDays := m.cfg.BucketDays
	if bucketDays < 1 {
		bucketDays = 1
	}

	buckets := make(map[int64][]domain.ClusterMember)

	var order []int64

	for _, mem := range members {
		dayIndex := mem.PublishedAt.UTC().Unix() / (hoursPerDay * 3600)
		key := dayIndex / int64(bucketDays)

		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}

		buckets[key] = append(buckets[key], mem)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var subgroups [][]domain.ClusterMember

	for _, key := range order {
		group := buckets[key]
		if len(group) <= m.cfg.SplitMaxSize {
			subgroups = append(subgroups, group)
			continue
		}

		remaining := group
		for len(remaining) > 0 {
			seed := remaining[0]
			seedEmb := embeddings[seed.MessageID]
			current := []domain.ClusterMember{seed}

			var rest []domain.ClusterMember

			for _, mem := range remaining[1:] {
				sim := cosine(seedEmb, embeddings[mem.MessageID])
				if sim >= m.cfg.InnerThreshold && len(current) < m.cfg.SplitMaxSize {
					current = append(current, mem)
				} else {
					rest = append(rest, mem)
				}
			}

			subgroups = append(subgroups, current)
			remaining = rest
		}
	}

	return subgroups
}

// QualityReport summarizes clustering health with actionable hints.
type QualityReport struct {
	TotalClusters     int      `json:"total_clusters"`
	AvgClusterSize    float64  `json:"avg_cluster_size"`
	MedianClusterSize int      `json:"median_cluster_size"`
	AvgSimilarity     float64  `json:"avg_similarity_score"`
	MinSimilarity     float64  `json:"min_similarity_score"`
	MaxSimilarity     float64  `json:"max_similarity_score"`
	SingleClusters    int      `json:"single_clusters"`
	SmallClusters     int      `json:"small_clusters"`
	MediumClusters    int      `json:"medium_clusters"`
	LargeClusters     int      `json:"large_clusters"`
	Recommendations   []string `json:"recommendations"`
}

// AnalyzeQuality inspects up to limit recent clusters and reports size and
// score distributions with tuning recommendations.
func (m *Maintainer) AnalyzeQuality(ctx context.Context, limit int) (*QualityReport, error) {
	clusters, err := m.store.ListClusterScores(ctx, limit)
	if err != nil {
		return nil, err
	}

	if len(clusters) == 0 {
		return nil, coreerrors.ErrNoClustersFound
	}

	report := &QualityReport{TotalClusters: len(clusters)}

	sizes := make([]int, 0, len(clusters))

	var allScores []float64

	for _, c := range clusters {
		sizes = append(sizes, c.Size)
		allScores = append(allScores, c.Scores...)

		switch {
		case c.Size == 1:
			report.SingleClusters++
		case c.Size <= smallClusterMax:
			report.SmallClusters++
		case c.Size <= mediumClusterMax:
			report.MediumClusters++
		default:
			report.LargeClusters++
		}
	}

	var totalSize int
	for _, s := range sizes {
		totalSize += s
	}

	report.AvgClusterSize = float64(totalSize) / float64(len(sizes))

	sort.Ints(sizes)
	report.MedianClusterSize = sizes[len(sizes)/2]

	if len(allScores) > 0 {
		report.AvgSimilarity = stat.Mean(allScores, nil)
		report.MinSimilarity = minFloat(allScores)
		report.MaxSimilarity = maxFloat(allScores)
	}

	total := float64(report.TotalClusters)

	if float64(report.SingleClusters)/total > singletonShareLimit {
		report.Recommendations = append(report.Recommendations,
			"high share of singleton clusters, consider lowering the similarity threshold")
	}

	if len(allScores) > 0 && report.AvgSimilarity < lowSimilarityLimit {
		report.Recommendations = append(report.Recommendations,
			"low average similarity, consider raising the similarity threshold")
	}

	if float64(report.LargeClusters) > total*largeShareLimit {
		report.Recommendations = append(report.Recommendations,
			"many large clusters, consider running the split operation")
	}

	return report, nil
}

// BackfillPrimaryTopics fills missing primary topics from per-message topic
// scores and returns the number of clusters updated.
func (m *Maintainer) BackfillPrimaryTopics(ctx context.Context) (int64, error) {
	updated, err := m.store.BackfillPrimaryTopics(ctx)
	if err != nil {
		observability.MaintenanceRunsTotal.WithLabelValues("backfill_topics", "error").Inc()

		return 0, err
	}

	observability.MaintenanceRunsTotal.WithLabelValues("backfill_topics", "ok").Inc()

	return updated, nil
}

func (m *Maintainer) lock(ctx context.Context) (func(), error) {
	locked, err := m.store.TryAcquireAdvisoryLock(ctx, db.MaintenanceLockID)
	if err != nil {
		return nil, fmt.Errorf("acquire maintenance lock: %w", err)
	}

	if !locked {
		return nil, coreerrors.ErrMaintenanceBusy
	}

	return func() {
		if err := m.store.ReleaseAdvisoryLock(context.WithoutCancel(ctx), db.MaintenanceLockID); err != nil {
			m.logger.Error().Err(err).Msg("release maintenance lock")
		}
	}, nil
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64

	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}

	return out
}

func minFloat(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}

	return m
}

func maxFloat(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}

	return m
}
