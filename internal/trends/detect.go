// Package trends finds event and topic activity spikes. An entity spikes
// when its current sliding-window message count sits far above the window
// statistics of the trailing analysis period.
package trends

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	minMessagesForStats = 3
	minWindowsForStats  = 3
	windowStep          = time.Hour

	// Popularity score weights for spike-mode ranking.
	weightTotal     = 0.4
	weightRecent    = 0.3
	weightChannels  = 0.2
	weightSpike     = 0.1
	channelBoost    = 2.0
	spikeBonusScale = 10.0
)

// Config tunes spike detection.
type Config struct {
	WindowHours int
	ZThreshold  float64
	Limit       int
	PeriodDays  int
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{WindowHours: 6, ZThreshold: 2.0, Limit: 20, PeriodDays: 7}
}

// Entity is one cluster's or topic's activity over the analysis period.
type Entity struct {
	ID           string
	Title        string
	Summary      string
	TopicID      *int64
	Timestamps   []time.Time
	ChannelCount int
	TotalViews   int64
}

// Trend is a ranked detection result for one entity.
type Trend struct {
	EntityID        string    `json:"entity_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	TopicID         *int64    `json:"topic_id,omitempty"`
	TotalMessages   int       `json:"total_messages"`
	RecentMessages  int       `json:"recent_messages"`
	ChannelCount    int       `json:"channel_count"`
	TotalViews      int64     `json:"total_views"`
	Mean            float64   `json:"mean_count"`
	Stdev           float64   `json:"stdev_count"`
	ZScore          float64   `json:"z_score"`
	IsSpike         bool      `json:"is_spike"`
	PopularityScore float64   `json:"popularity_score"`
	FirstMentionAt  time.Time `json:"first_mention_at"`
	LastMentionAt   time.Time `json:"last_mention_at"`
}

// Detect computes spike statistics for each entity and ranks results:
// spiking entities first by z-score, the rest by popularity. Entities with
// too little activity for meaningful statistics are excluded.
func Detect(entities []Entity, now time.Time, cfg Config) []Trend {
	analysisStart := now.AddDate(0, 0, -cfg.PeriodDays)
	window := time.Duration(cfg.WindowHours) * time.Hour
	currentStart := now.Add(-window)

	var results []Trend

	for _, entity := range entities {
		timestamps := append([]time.Time(nil), entity.Timestamps...)
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

		if len(timestamps) < minMessagesForStats {
			continue
		}

		counts := windowCounts(timestamps, analysisStart, now, window)
		if len(counts) < minWindowsForStats {
			continue
		}

		current := 0

		for _, ts := range timestamps {
			if !ts.Before(currentStart) {
				current++
			}
		}

		mean, stdev, z := spikeStats(counts, float64(current))
		isSpike := z > cfg.ZThreshold

		popularity := float64(len(timestamps))*weightTotal +
			float64(current)*weightRecent +
			float64(entity.ChannelCount)*channelBoost*weightChannels

		if isSpike {
			popularity += z * spikeBonusScale * weightSpike
		}

		results = append(results, Trend{
			EntityID:        entity.ID,
			Title:           entity.Title,
			Summary:         entity.Summary,
			TopicID:         entity.TopicID,
			TotalMessages:   len(timestamps),
			RecentMessages:  current,
			ChannelCount:    entity.ChannelCount,
			TotalViews:      entity.TotalViews,
			Mean:            mean,
			Stdev:           stdev,
			ZScore:          z,
			IsSpike:         isSpike,
			PopularityScore: popularity,
			FirstMentionAt:  timestamps[0],
			LastMentionAt:   timestamps[len(timestamps)-1],
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]

		if a.IsSpike != b.IsSpike {
			return a.IsSpike
		}

		if a.IsSpike {
			return a.ZScore > b.ZScore
		}

		return a.PopularityScore > b.PopularityScore
	})

	if cfg.Limit > 0 && len(results) > cfg.Limit {
		results = results[:cfg.Limit]
	}

	return results
}

// spikeStats compares the current window count against the sample statistics
// of the observed window counts. A zero standard deviation yields a zero
// z-score.
func spikeStats(counts []float64, current float64) (mean, stdev, z float64) {
	mean = stat.Mean(counts, nil)

	if len(counts) > 1 {
		stdev = stat.StdDev(counts, nil)
	}

	if stdev > 0 {
		z = (current - mean) / stdev
	}

	return mean, stdev, z
}

// windowCounts slides a window over the period in one-hour steps and keeps
// the non-zero message counts.
func windowCounts(timestamps []time.Time, start, end time.Time, window time.Duration) []float64 {
	var counts []float64

	for t := start; t.Before(end); t = t.Add(windowStep) {
		windowEnd := t.Add(window)
		count := 0

		for _, ts := range timestamps {
			if !ts.Before(t) && ts.Before(windowEnd) {
				count++
			}
		}

		if count > 0 {
			counts = append(counts, float64(count))
		}
	}

	return counts
}
