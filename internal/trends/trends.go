package trends

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	db "github.com/lueurxax/telegram-event-radar/internal/storage"

	"github.com/lueurxax/telegram-event-radar/internal/platform/observability"
)

// Trend direction labels for period-over-period mode.
const (
	DirectionUp     = "up"
	DirectionDown   = "down"
	DirectionStable = "stable"

	growthUpLimit   = 10.0
	growthDownLimit = -10.0

	// Popularity weights for period-over-period ranking.
	periodWeightMessages   = 0.5
	periodWeightViews      = 0.3
	periodWeightChannels   = 0.15
	periodWeightSimilarity = 0.05
	viewsScale             = 10000.0
	viewsCap               = 100.0
	similarityScale        = 100.0
)

// Store loads activity timelines and period aggregates.
type Store interface {
	ClusterActivity(ctx context.Context, since time.Time) ([]db.EntityActivity, error)
	TopicActivity(ctx context.Context, since time.Time) ([]db.EntityActivity, error)
	ClusterReach(ctx context.Context, since time.Time) (map[string]db.EntityReach, error)
	TopicReach(ctx context.Context, since time.Time) (map[string]db.EntityReach, error)
	GetClusterPeriodStats(ctx context.Context, from, prevFrom time.Time, limit int) ([]db.ClusterPeriodStats, error)
}

// Detector runs trend scans over clusters and topics.
type Detector struct {
	store  Store
	cfg    Config
	logger *zerolog.Logger
	now    func() time.Time
}

// NewDetector returns a trend detector.
func NewDetector(store Store, cfg Config, logger *zerolog.Logger) *Detector {
	return &Detector{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// TrendingClusters detects activity spikes across event clusters.
func (d *Detector) TrendingClusters(ctx context.Context) ([]Trend, error) {
	return d.trending(ctx, "clusters", d.store.ClusterActivity, d.store.ClusterReach)
}

// TrendingTopics detects activity spikes across topics.
func (d *Detector) TrendingTopics(ctx context.Context) ([]Trend, error) {
	return d.trending(ctx, "topics", d.store.TopicActivity, d.store.TopicReach)
}

func (d *Detector) trending(
	ctx context.Context,
	scope string,
	loadActivity func(context.Context, time.Time) ([]db.EntityActivity, error),
	loadReach func(context.Context, time.Time) (map[string]db.EntityReach, error),
) ([]Trend, error) {
	now := d.now()
	window := time.Duration(d.cfg.WindowHours) * time.Hour

	activity, err := loadActivity(ctx, now.AddDate(0, 0, -d.cfg.PeriodDays))
	if err != nil {
		return nil, err
	}

	// Reach covers only the current window, matching the recency of the
	// spike signal itself.
	reach, err := loadReach(ctx, now.Add(-window))
	if err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(activity))

	for _, a := range activity {
		r := reach[a.EntityID]

		entities = append(entities, Entity{
			ID:           a.EntityID,
			Title:        a.Title,
			Summary:      a.Summary,
			TopicID:      a.TopicID,
			Timestamps:   a.Timestamps,
			ChannelCount: r.ChannelCount,
			TotalViews:   r.TotalViews,
		})
	}

	trends := Detect(entities, now, d.cfg)

	spikes := 0

	for _, t := range trends {
		if t.IsSpike {
			spikes++
		}
	}

	observability.TrendScansTotal.WithLabelValues(scope).Inc()
	observability.SpikesDetected.Add(float64(spikes))

	d.logger.Info().Str("scope", scope).Int("entities", len(entities)).
		Int("trends", len(trends)).Int("spikes", spikes).Msg("trend scan complete")

	return trends, nil
}

// PeriodTrend compares one cluster's activity against the previous period.
type PeriodTrend struct {
	ClusterID        string    `json:"cluster_id"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	TopicID          *int64    `json:"topic_id,omitempty"`
	MessageCount     int       `json:"message_count"`
	PrevMessageCount int       `json:"prev_message_count"`
	ChannelCount     int       `json:"channel_count"`
	TotalViews       int64     `json:"total_views"`
	AvgSimilarity    float64   `json:"avg_similarity"`
	GrowthPercent    float64   `json:"growth_percentage"`
	Direction        string    `json:"trend_direction"`
	PopularityScore  float64   `json:"popularity_score"`
	FirstMentionAt   time.Time `json:"first_mention_at"`
	LastMentionAt    time.Time `json:"last_mention_at"`
}

// PeriodOverPeriod ranks clusters by comparing the trailing period against
// the one before it. A cluster with no previous-period activity counts as
// 100% growth.
func (d *Detector) PeriodOverPeriod(ctx context.Context) ([]PeriodTrend, error) {
	now := d.now()
	from := now.AddDate(0, 0, -d.cfg.PeriodDays)
	prevFrom := now.AddDate(0, 0, -2*d.cfg.PeriodDays)

	rows, err := d.store.GetClusterPeriodStats(ctx, from, prevFrom, d.cfg.Limit)
	if err != nil {
		return nil, err
	}

	trends := make([]PeriodTrend, 0, len(rows))

	for _, row := range rows {
		growth := 100.0
		if row.PrevMessageCount > 0 {
			growth = (float64(row.MessageCount) - float64(row.PrevMessageCount)) /
				float64(row.PrevMessageCount) * 100
		}

		direction := DirectionStable

		switch {
		case growth > growthUpLimit:
			direction = DirectionUp
		case growth < growthDownLimit:
			direction = DirectionDown
		}

		views := float64(row.TotalViews) / viewsScale
		if views > viewsCap {
			views = viewsCap
		}

		popularity := float64(row.MessageCount)*periodWeightMessages +
			views*periodWeightViews +
			float64(row.ChannelCount)*channelBoost*periodWeightChannels +
			row.AvgSimilarity*similarityScale*periodWeightSimilarity

		trends = append(trends, PeriodTrend{
			ClusterID:        row.ClusterID,
			Title:            row.Title,
			Summary:          row.Summary,
			TopicID:          row.TopicID,
			MessageCount:     row.MessageCount,
			PrevMessageCount: row.PrevMessageCount,
			ChannelCount:     row.ChannelCount,
			TotalViews:       row.TotalViews,
			AvgSimilarity:    row.AvgSimilarity,
			GrowthPercent:    growth,
			Direction:        direction,
			PopularityScore:  popularity,
			FirstMentionAt:   row.FirstMentionAt,
			LastMentionAt:    row.LastMentionAt,
		})
	}

	observability.TrendScansTotal.WithLabelValues("period").Inc()

	return trends, nil
}
