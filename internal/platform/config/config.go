package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime tunables. Every clustering threshold is
// environment-driven so deployments can retune without code changes.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Embedding provider
	EmbeddingAPIKey     string `env:"EMBEDDING_API_KEY"`
	EmbeddingModel      string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`
	EmbeddingRateLimit  int    `env:"EMBEDDING_RATE_LIMIT_RPS" envDefault:"5"`

	// Incremental clusterer
	SimilarityThreshold    float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.75"`
	SearchWindowSize       int     `env:"SEARCH_WINDOW_SIZE" envDefault:"30"`
	MaxClusterAgeDays      int     `env:"MAX_CLUSTER_AGE_DAYS" envDefault:"7"`
	MaxClusterSize         int     `env:"MAX_CLUSTER_SIZE" envDefault:"50"`
	RetrievalDensityGap    float64 `env:"RETRIEVAL_DENSITY_GAP" envDefault:"0.15"`
	RetrievalDensityFactor float64 `env:"RETRIEVAL_DENSITY_FACTOR" envDefault:"0.95"`
	DecisionDensityGap     float64 `env:"DECISION_DENSITY_GAP" envDefault:"0.05"`
	DecisionDensityFactor  float64 `env:"DECISION_DENSITY_FACTOR" envDefault:"0.98"`

	// Batch clusterer
	BatchLimit          int     `env:"BATCH_LIMIT" envDefault:"1000"`
	BatchMinClusterSize int     `env:"BATCH_MIN_CLUSTER_SIZE" envDefault:"3"`
	BatchPCADimensions  int     `env:"BATCH_PCA_DIMENSIONS" envDefault:"50"`
	BatchWindowDays     int     `env:"BATCH_WINDOW_DAYS" envDefault:"7"`
	BatchDisablePCA     bool    `env:"BATCH_DISABLE_PCA" envDefault:"false"`
	BatchEpsilon        float64 `env:"BATCH_EPSILON" envDefault:"0"`
	BatchResplitSize    int     `env:"BATCH_RESPLIT_SIZE" envDefault:"30"`

	// Maintenance
	SplitMaxSize        int     `env:"SPLIT_MAX_SIZE" envDefault:"20"`
	SplitInnerThreshold float64 `env:"SPLIT_INNER_THRESHOLD" envDefault:"0.9"`
	SplitBucketDays     int     `env:"SPLIT_BUCKET_DAYS" envDefault:"1"`

	// Trend detection
	TrendWindowHours int     `env:"TREND_WINDOW_HOURS" envDefault:"6"`
	TrendZThreshold  float64 `env:"TREND_Z_THRESHOLD" envDefault:"2.0"`
	TrendLimit       int     `env:"TREND_LIMIT" envDefault:"20"`
	TrendPeriodDays  int     `env:"TREND_PERIOD_DAYS" envDefault:"7"`

	TopicCacheTTL time.Duration `env:"TOPIC_CACHE_TTL" envDefault:"10m"`

	// Maintenance runner schedule
	MaintenanceEnabled bool          `env:"MAINTENANCE_ENABLED" envDefault:"true"`
	BatchInterval      time.Duration `env:"BATCH_INTERVAL" envDefault:"6h"`
	SplitInterval      time.Duration `env:"SPLIT_INTERVAL" envDefault:"1h"`
	CleanupInterval    time.Duration `env:"CLEANUP_INTERVAL" envDefault:"12h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
