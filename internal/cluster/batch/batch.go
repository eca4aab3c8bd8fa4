// Package batch rebuilds the whole cluster set from scratch over a trailing
// message window. It is a destructive maintenance operation: existing
// clusters are wiped before the new labeling is materialized.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/lueurxax/telegram-event-radar/internal/cluster/materialize"
	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
	"github.com/lueurxax/telegram-event-radar/internal/platform/observability"
	db "github.com/lueurxax/telegram-event-radar/internal/storage"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
)

var errPCAFailed = errors.New("principal component decomposition failed")

// Clustering strategy labels, in fallback order.
const (
	strategyDensity   = "density"
	strategyKNN       = "dbscan_knn"
	strategyKMeans    = "kmeans"
	strategySingleton = "singleton"
)

const (
	minPCATarget       = 10
	knnEpsPercentile   = 0.1
	maxKMeansClusters  = 20
	silhouetteSample   = 1000
	silhouetteSeed     = 7
	minResplitEpsilon  = 0.01
	smallSampleCount   = 50
	mediumSampleCount  = 200
	smallSampleEps     = 0.2
	mediumSampleEps    = 0.3
	largeSampleEps     = 0.4
)

// Store is the persistence surface of the batch rebuild.
type Store interface {
	materialize.Store
	TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, lockID int64) error
	WipeClusters(ctx context.Context) error
	GetMessagesWithEmbeddings(ctx context.Context, cutoff time.Time, limit int) ([]domain.Message, error)
}

// Config tunes a rebuild run.
type Config struct {
	Limit          int
	MinClusterSize int
	PCADimensions  int
	WindowDays     int
	// Epsilon overrides the adaptive density radius when positive.
	Epsilon     float64
	DisablePCA  bool
	ResplitSize int
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Limit:          1000,
		MinClusterSize: 3,
		PCADimensions:  50,
		WindowDays:     7,
		ResplitSize:    30,
	}
}

// Diagnostics carries run quality metrics.
type Diagnostics struct {
	Strategy             string                `json:"strategy"`
	SilhouetteScore      *float64              `json:"silhouette_score,omitempty"`
	PCAVarianceExplained float64               `json:"pca_variance_explained"`
	OriginalDimensions   int                   `json:"original_dimensions"`
	ReducedDimensions    int                   `json:"reduced_dimensions"`
	Similarity           ScoreStats            `json:"similarity_distribution"`
	PerCluster           map[string]ScoreStats `json:"similarity_per_cluster"`
}

// Result reports what a rebuild produced.
type Result struct {
	ClustersCreated   int         `json:"clusters_created"`
	MessagesProcessed int         `json:"messages_processed"`
	NoiseMessages     int         `json:"noise_messages"`
	Metrics           Diagnostics `json:"metrics"`
}

// Runner executes batch rebuilds.
type Runner struct {
	store  Store
	index  vectorindex.Index
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

// New returns a batch runner.
func New(store Store, index vectorindex.Index, cfg Config, logger *zerolog.Logger) *Runner {
	return &Runner{store: store, index: index, cfg: cfg, logger: logger, now: time.Now}
}

// Run rebuilds all clusters. It returns ErrMaintenanceBusy when another
// maintenance operation holds the lock and ErrInsufficientData when fewer
// than MinClusterSize messages are available in the window.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	locked, err := r.store.TryAcquireAdvisoryLock(ctx, db.MaintenanceLockID)
	if err != nil {
		return nil, fmt.Errorf("acquire maintenance lock: %w", err)
	}

	if !locked {
		observability.BatchRunsTotal.WithLabelValues("busy").Inc()

		return nil, coreerrors.ErrMaintenanceBusy
	}

	defer func() {
		if err := r.store.ReleaseAdvisoryLock(context.WithoutCancel(ctx), db.MaintenanceLockID); err != nil {
			r.logger.Error().Err(err).Msg("release maintenance lock")
		}
	}()

	result, err := r.run(ctx)
	if err != nil {
		status := "error"
		if errors.Is(err, coreerrors.ErrInsufficientData) {
			status = "insufficient_data"
		}

		observability.BatchRunsTotal.WithLabelValues(status).Inc()

		return nil, err
	}

	observability.BatchRunsTotal.WithLabelValues("ok").Inc()
	observability.BatchDurationSeconds.Observe(time.Since(start).Seconds())
	observability.BatchClustersCreated.Set(float64(result.ClustersCreated))
	observability.BatchNoiseMessages.Set(float64(result.NoiseMessages))
	observability.BatchStrategyUsed.WithLabelValues(result.Metrics.Strategy).Inc()

	return result, nil
}

func (r *Runner) run(ctx context.Context) (*Result, error) {
	r.logger.Info().Msg("wiping existing clusters for rebuild")

	if err := r.store.WipeClusters(ctx); err != nil {
		return nil, err
	}

	if err := r.index.ClearClusters(ctx); err != nil {
		return nil, err
	}

	cutoff := r.now().AddDate(0, 0, -r.cfg.WindowDays)

	messages, err := r.store.GetMessagesWithEmbeddings(ctx, cutoff, r.cfg.Limit)
	if err != nil {
		return nil, err
	}

	if len(messages) < r.cfg.MinClusterSize {
		return nil, fmt.Errorf("%w: %d messages in window, need %d",
			coreerrors.ErrInsufficientData, len(messages), r.cfg.MinClusterSize)
	}

	ids := make([]int64, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}

	stored, err := r.index.Embeddings(ctx, ids)
	if err != nil {
		return nil, err
	}

	var (
		kept    []domain.Message
		vectors [][]float64
	)

	for _, m := range messages {
		vec, ok := stored[m.ID]
		if !ok {
			continue
		}

		v := make([]float64, len(vec))
		for i, x := range vec {
			v[i] = float64(x)
		}

		kept = append(kept, m)
		vectors = append(vectors, v)
	}

	if len(kept) < r.cfg.MinClusterSize {
		return nil, fmt.Errorf("%w: %d messages with embeddings, need %d",
			coreerrors.ErrInsufficientData, len(kept), r.cfg.MinClusterSize)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, dims := len(vectors), len(vectors[0])
	original := mat.NewDense(n, dims, nil)

	for i, v := range vectors {
		original.SetRow(i, v)
	}

	scaled := standardize(original)
	reduced, explained := r.reduce(scaled, n, dims)
	points := matrixRows(reduced)
	_, reducedDims := reduced.Dims()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	labels, strategy, epsUsed := r.clusterize(points, n)
	clusters, noise := countClusters(labels)

	r.logger.Info().Str("strategy", strategy).Int("clusters", clusters).Int("noise", noise).
		Float64("epsilon", epsUsed).Msg("batch labeling complete")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	diag := Diagnostics{
		Strategy:             strategy,
		PCAVarianceExplained: explained,
		OriginalDimensions:   dims,
		ReducedDimensions:    reducedDims,
		PerCluster:           make(map[string]ScoreStats),
	}

	if clusters > 1 && n > clusters {
		s := sampledSilhouette(points, labels)
		diag.SilhouetteScore = &s
	}

	result := &Result{NoiseMessages: noise, Metrics: diag}

	var allScores []float64

	groups := groupByLabel(labels)

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scores, created, err := r.materializeGroup(ctx, kept, vectors, g, epsUsed, result.Metrics.PerCluster)
		if err != nil {
			return nil, err
		}

		result.ClustersCreated += created
		result.MessagesProcessed += len(g)
		allScores = append(allScores, scores...)
	}

	result.Metrics.Similarity = summarizeScores(allScores)

	return result, nil
}

// reduce standardizes dimensionality adaptively. Small samples get gentle
// compression, large ones keep more components.
func (r *Runner) reduce(scaled *mat.Dense, n, dims int) (*mat.Dense, float64) {
	if r.cfg.DisablePCA {
		return scaled, 1.0
	}

	var target int

	switch {
	case n < smallSampleCount:
		target = r.cfg.PCADimensions / 2
	case n < mediumSampleCount:
		target = r.cfg.PCADimensions * 2
	default:
		target = r.cfg.PCADimensions * 3
	}

	if hard := min(n-1, dims-1); target > hard {
		target = hard
	}

	if target < minPCATarget || target >= dims {
		r.logger.Info().Int("target", target).Int("dims", dims).Msg("skipping dimensionality reduction")

		return scaled, 1.0
	}

	reduced, explained, err := reducePCA(scaled, target)
	if err != nil {
		r.logger.Warn().Err(err).Msg("dimensionality reduction failed, using standardized vectors")

		return scaled, 1.0
	}

	if explained < 0.8 {
		r.logger.Warn().Float64("explained", explained).Msg("reduction retains little variance")
	}

	return reduced, explained
}

// clusterize runs the density strategy and walks the fallback chain until
// some labeling produces at least one cluster.
func (r *Runner) clusterize(points [][]float64, n int) (labels []int, strategy string, epsUsed float64) {
	minCluster := max(2, r.cfg.MinClusterSize)
	eps := smallSampleEps

	switch {
	case n < smallSampleCount:
	case n < mediumSampleCount:
		minCluster = max(2, r.cfg.MinClusterSize-1)
		eps = mediumSampleEps
	default:
		minCluster = max(2, r.cfg.MinClusterSize-1)
		eps = largeSampleEps
	}

	if r.cfg.Epsilon > 0 {
		eps = r.cfg.Epsilon
	}

	labels = dbscan(points, eps, minCluster)
	if clusters, _ := countClusters(labels); clusters > 0 {
		return labels, strategyDensity, eps
	}

	r.logger.Warn().Msg("density clustering produced nothing, deriving radius from neighbor distances")

	if knnEps := kNNPercentileEps(points, minCluster, knnEpsPercentile); knnEps > 0 {
		labels = dbscan(points, knnEps, minCluster)
		if clusters, _ := countClusters(labels); clusters > 0 {
			return labels, strategyKNN, knnEps
		}
	}

	r.logger.Warn().Msg("density-reachability failed, trying centroid clustering")

	if best := bestKMeans(points); best != nil {
		return best, strategyKMeans, eps
	}

	r.logger.Warn().Msg("all clustering strategies failed, degrading to singleton clusters")

	labels = make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	return labels, strategySingleton, eps
}

// bestKMeans selects the cluster count in [2, 20] that maximizes silhouette
// quality. Returns nil when no usable labeling exists.
func bestKMeans(points [][]float64) []int {
	maxK := min(maxKMeansClusters, len(points)/2)
	if maxK < 2 {
		return nil
	}

	var (
		bestLabels []int
		bestScore  = -1.0
	)

	for k := 2; k <= maxK; k++ {
		labels := kmeans(points, k)

		distinct := make(map[int]struct{})
		for _, l := range labels {
			distinct[l] = struct{}{}
		}

		if len(distinct) < 2 {
			continue
		}

		if score := silhouetteScore(points, labels); score > bestScore {
			bestScore = score
			bestLabels = labels
		}
	}

	return bestLabels
}

// materializeGroup persists one label group, re-splitting it with a stricter
// radius when it is oversized. Returns the recorded similarity scores and
// how many clusters were created.
func (r *Runner) materializeGroup(ctx context.Context, messages []domain.Message, vectors [][]float64, group []int, epsUsed float64, perCluster map[string]ScoreStats) ([]float64, int, error) {
	if len(group) > r.cfg.ResplitSize {
		if created, scores, err := r.resplitGroup(ctx, messages, vectors, group, epsUsed, perCluster); err != nil {
			return nil, 0, err
		} else if created >= 2 {
			return scores, created, nil
		}
	}

	clusterID, scores, err := r.buildCluster(ctx, messages, vectors, group)
	if err != nil {
		return nil, 0, err
	}

	perCluster[clusterID] = summarizeScores(scores)

	return scores, 1, nil
}

// resplitGroup retries density clustering on a single oversized group with a
// halved radius. Returns zero created clusters when the group does not split.
func (r *Runner) resplitGroup(ctx context.Context, messages []domain.Message, vectors [][]float64, group []int, epsUsed float64, perCluster map[string]ScoreStats) (int, []float64, error) {
	dims := len(vectors[0])
	sub := mat.NewDense(len(group), dims, nil)

	for i, idx := range group {
		sub.SetRow(i, vectors[idx])
	}

	stricter := max(minResplitEpsilon, epsUsed*0.5)
	minCluster := max(2, r.cfg.MinClusterSize)

	subPoints := matrixRows(standardize(sub))
	subLabels := dbscan(subPoints, stricter, minCluster)

	clusters, _ := countClusters(subLabels)
	if clusters < 2 {
		return 0, nil, nil
	}

	r.logger.Info().Int("size", len(group)).Int("subclusters", clusters).
		Float64("epsilon", stricter).Msg("re-splitting oversized cluster")

	var (
		created   int
		allScores []float64
	)

	for _, subGroup := range groupByLabel(subLabels) {
		global := make([]int, len(subGroup))
		for i, idx := range subGroup {
			global[i] = group[idx]
		}

		clusterID, scores, err := r.buildCluster(ctx, messages, vectors, global)
		if err != nil {
			return 0, nil, err
		}

		created++
		allScores = append(allScores, scores...)
		perCluster[clusterID] = summarizeScores(scores)
	}

	return created, allScores, nil
}

func (r *Runner) buildCluster(ctx context.Context, messages []domain.Message, vectors [][]float64, group []int) (string, []float64, error) {
	groupVectors := make([][]float64, len(group))
	for i, idx := range group {
		groupVectors[i] = vectors[idx]
	}

	center := centroid(groupVectors)

	members := make([]materialize.Member, len(group))
	scores := make([]float64, len(group))

	for i, idx := range group {
		sim := 1.0
		if i > 0 {
			sim = cosine(vectors[idx], center)
		}

		members[i] = materialize.Member{Message: messages[idx], Similarity: sim}
		scores[i] = sim
	}

	clusterID, _, err := materialize.Build(ctx, r.store, r.index, members)
	if err != nil {
		return "", nil, err
	}

	return clusterID, scores, nil
}

// groupByLabel groups point indices by label in order of first appearance,
// dropping noise.
func groupByLabel(labels []int) [][]int {
	byLabel := make(map[int][]int)

	var order []int

	for i, l := range labels {
		if l == noiseLabel {
			continue
		}

		if _, ok := byLabel[l]; !ok {
			order = append(order, l)
		}

		byLabel[l] = append(byLabel[l], i)
	}

	groups := make([][]int, 0, len(order))
	for _, l := range order {
		groups = append(groups, byLabel[l])
	}

	return groups
}

// sampledSilhouette bounds the quadratic silhouette computation to a fixed
// sample.
func sampledSilhouette(points [][]float64, labels []int) float64 {
	if len(points) <= silhouetteSample {
		return silhouetteScore(points, labels)
	}

	rng := rand.New(rand.NewSource(silhouetteSeed))
	perm := rng.Perm(len(points))[:silhouetteSample]

	sampledPoints := make([][]float64, len(perm))
	sampledLabels := make([]int, len(perm))

	for i, idx := range perm {
		sampledPoints[i] = points[idx]
		sampledLabels[i] = labels[idx]
	}

	return silhouetteScore(sampledPoints, sampledLabels)
}
