// Package app wires the clustering core together and exposes the
// operational modes of the radar binary:
//
//   - Serve mode: health/metrics server plus the periodic maintenance loop
//     (batch rebuild, large-cluster split, singleton cleanup)
//   - One-shot modes: a single maintenance task, a trend scan, or an
//     incremental assignment of one message
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-event-radar/internal/cluster/batch"
	"github.com/lueurxax/telegram-event-radar/internal/cluster/incremental"
	"github.com/lueurxax/telegram-event-radar/internal/cluster/maintenance"
	"github.com/lueurxax/telegram-event-radar/internal/core/embeddings"
	"github.com/lueurxax/telegram-event-radar/internal/platform/config"
	"github.com/lueurxax/telegram-event-radar/internal/platform/observability"
	"github.com/lueurxax/telegram-event-radar/internal/platform/worker"
	db "github.com/lueurxax/telegram-event-radar/internal/storage"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
	"github.com/lueurxax/telegram-event-radar/internal/topics"
	"github.com/lueurxax/telegram-event-radar/internal/trends"
)

const embeddingAPIKeyMock = "mock"

// App holds the application dependencies and provides methods to run
// different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	index    vectorindex.Index
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		index:    vectorindex.NewPgIndex(database.Pool, logger),
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunMaintenanceLoop runs the periodic maintenance tasks until the context
// is canceled. When maintenance is disabled it just blocks on the context,
// leaving the health server as the only activity.
func (a *App) RunMaintenanceLoop(ctx context.Context) error {
	if !a.cfg.MaintenanceEnabled {
		a.logger.Info().Msg("maintenance disabled, idling")
		<-ctx.Done()

		return ctx.Err()
	}

	runner := a.batchRunner()
	maintainer := a.maintainer()

	tasks := []worker.Task{
		{
			Name:     "batch-rebuild",
			Interval: a.cfg.BatchInterval,
			Run: func(ctx context.Context) {
				if _, err := runner.Run(ctx); err != nil {
					a.logger.Error().Err(err).Msg("batch rebuild failed")
				}
			},
		},
		{
			Name:     "split-large-clusters",
			Interval: a.cfg.SplitInterval,
			Run: func(ctx context.Context) {
				if _, err := maintainer.SplitLargeClusters(ctx); err != nil {
					a.logger.Error().Err(err).Msg("split failed")
				}
			},
		},
		{
			Name:     "cleanup-singletons",
			Interval: a.cfg.CleanupInterval,
			Run: func(ctx context.Context) {
				if _, err := maintainer.CleanupSingletons(ctx); err != nil {
					a.logger.Error().Err(err).Msg("cleanup failed")
				}
			},
		},
	}

	return worker.Loop(ctx, worker.Config{Name: "maintenance", Tasks: tasks, Logger: a.logger})
}

// RunBatch runs one batch rebuild and logs the result.
func (a *App) RunBatch(ctx context.Context) error {
	result, err := a.batchRunner().Run(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().
		Int("clusters_created", result.ClustersCreated).
		Int("messages_processed", result.MessagesProcessed).
		Int("noise_messages", result.NoiseMessages).
		Msg("batch rebuild complete")

	return nil
}

// RunSplit splits oversized clusters once.
func (a *App) RunSplit(ctx context.Context) error {
	result, err := a.maintainer().SplitLargeClusters(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().
		Int("processed", result.ProcessedClusters).
		Int("created", result.CreatedClusters).
		Int("moved", result.MovedMessages).
		Msg("split complete")

	return nil
}

// RunCleanup deletes singleton clusters once.
func (a *App) RunCleanup(ctx context.Context) error {
	deleted, err := a.maintainer().CleanupSingletons(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Int64("deleted", deleted).Msg("singleton cleanup complete")

	return nil
}

// RunAnalyze prints a clustering quality report.
func (a *App) RunAnalyze(ctx context.Context) error {
	report, err := a.maintainer().AnalyzeQuality(ctx, a.cfg.BatchLimit)
	if err != nil {
		return err
	}

	a.logger.Info().Interface("report", report).Msg("clustering quality")

	return nil
}

// RunBackfill sets primary topics on clusters missing them.
func (a *App) RunBackfill(ctx context.Context) error {
	updated, err := a.maintainer().BackfillPrimaryTopics(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Int64("updated", updated).Msg("primary topic backfill complete")

	return nil
}

// RunTrends scans clusters and topics for activity spikes and logs the
// ranked results.
func (a *App) RunTrends(ctx context.Context) error {
	detector := a.detector()

	clusterTrends, err := detector.TrendingClusters(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Interface("trends", clusterTrends).Msg("trending clusters")

	topicTrends, err := detector.TrendingTopics(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Interface("trends", topicTrends).Msg("trending topics")

	periodTrends, err := detector.PeriodOverPeriod(ctx)
	if err != nil {
		return err
	}

	a.logger.Info().Interface("trends", periodTrends).Msg("period over period")

	return nil
}

// RunAssign runs the incremental clusterer for one message.
func (a *App) RunAssign(ctx context.Context, messageID int64) error {
	msg, err := a.database.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	result, err := a.Engine().Assign(ctx, *msg)
	if err != nil {
		return err
	}

	a.logger.Info().
		Int64("message_id", messageID).
		Str("cluster_id", result.ClusterID).
		Bool("created", result.Created).
		Float64("similarity", result.Similarity).
		Msg("message assigned")

	return nil
}

// RunClassify ranks topic labels for one message by reference-vector
// similarity, a diagnostic for the classifier boundary.
func (a *App) RunClassify(ctx context.Context, messageID int64) error {
	scores, err := a.Classifier().Scores(ctx, messageID)
	if err != nil {
		return err
	}

	a.logger.Info().Int64("message_id", messageID).Interface("scores", scores).Msg("topic scores")

	return nil
}

// Engine builds the incremental clustering engine. Exposed for embedding
// hosts that call Assign directly.
func (a *App) Engine() *incremental.Engine {
	cfg := incremental.Config{
		BaseThreshold:          a.cfg.SimilarityThreshold,
		SearchWindowSize:       a.cfg.SearchWindowSize,
		MaxClusterAgeDays:      a.cfg.MaxClusterAgeDays,
		MaxClusterSize:         a.cfg.MaxClusterSize,
		RetrievalDensityGap:    a.cfg.RetrievalDensityGap,
		RetrievalDensityFactor: a.cfg.RetrievalDensityFactor,
		DecisionDensityGap:     a.cfg.DecisionDensityGap,
		DecisionDensityFactor:  a.cfg.DecisionDensityFactor,
	}

	return incremental.New(a.database, a.index, a.embeddingClient(), cfg, a.logger)
}

// Classifier builds the reference-vector topic classifier with its TTL cache.
func (a *App) Classifier() *topics.VectorClassifier {
	cache := topics.NewRefCache(a.database.TopicReferenceVectors, a.cfg.TopicCacheTTL)

	return topics.NewVectorClassifier(cache, a.index, 0)
}

func (a *App) batchRunner() *batch.Runner {
	cfg := batch.Config{
		Limit:          a.cfg.BatchLimit,
		MinClusterSize: a.cfg.BatchMinClusterSize,
		PCADimensions:  a.cfg.BatchPCADimensions,
		WindowDays:     a.cfg.BatchWindowDays,
		Epsilon:        a.cfg.BatchEpsilon,
		DisablePCA:     a.cfg.BatchDisablePCA,
		ResplitSize:    a.cfg.BatchResplitSize,
	}

	return batch.New(a.database, a.index, cfg, a.logger)
}

func (a *App) maintainer() *maintenance.Maintainer {
	cfg := maintenance.Config{
		SplitMaxSize:   a.cfg.SplitMaxSize,
		InnerThreshold: a.cfg.SplitInnerThreshold,
		BucketDays:     a.cfg.SplitBucketDays,
	}

	return maintenance.New(a.database, a.index, cfg, a.logger)
}

func (a *App) detector() *trends.Detector {
	cfg := trends.Config{
		WindowHours: a.cfg.TrendWindowHours,
		ZThreshold:  a.cfg.TrendZThreshold,
		Limit:       a.cfg.TrendLimit,
		PeriodDays:  a.cfg.TrendPeriodDays,
	}

	return trends.NewDetector(a.database, cfg, a.logger)
}

func (a *App) embeddingClient() embeddings.Client {
	var provider embeddings.Client

	name := "openai"

	if a.cfg.EmbeddingAPIKey == "" || a.cfg.EmbeddingAPIKey == embeddingAPIKeyMock {
		name = "mock"
		provider = embeddings.NewMockProviderWithDimensions(a.cfg.EmbeddingDimensions)

		a.logger.Warn().Msg("no embedding API key configured, using deterministic mock provider")
	} else {
		provider = embeddings.NewOpenAIProvider(embeddings.OpenAIConfig{
			APIKey:     a.cfg.EmbeddingAPIKey,
			Model:      a.cfg.EmbeddingModel,
			Dimensions: a.cfg.EmbeddingDimensions,
			RateLimit:  a.cfg.EmbeddingRateLimit,
		})
	}

	return embeddings.NewResilientClient(
		provider, name, a.cfg.EmbeddingModel, embeddings.DefaultCircuitBreakerConfig(), a.logger,
	)
}
