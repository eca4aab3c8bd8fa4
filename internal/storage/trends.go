package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// EntityActivity is the raw per-entity message timeline the spike detector
// works over. Entity is either a cluster or a topic.
type EntityActivity struct {
	EntityID   string
	Title      string
	Summary    string
	TopicID    *int64
	Timestamps []time.Time
}

// EntityReach aggregates source diversity and reach for the current window.
type EntityReach struct {
	ChannelCount  int
	TotalViews    int64
	AvgSimilarity float64
}

// ClusterActivity returns every cluster's message timestamps since the given
// time, ordered within each cluster.
func (db *DB) ClusterActivity(ctx context.Context, since time.Time) ([]EntityActivity, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT c.cluster_id, c.title, c.summary, c.primary_topic_id, msg.published_at
		FROM clusters c
		JOIN memberships m ON c.cluster_id = m.cluster_id
		JOIN messages msg ON m.message_id = msg.id
		WHERE msg.published_at >= $1
		ORDER BY c.cluster_id, msg.published_at
	`, toTimestamptz(since))
	if err != nil {
		return nil, fmt.Errorf("cluster activity: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*EntityActivity)

	var order []string

	for rows.Next() {
		var (
			id          pgtype.UUID
			title       pgtype.Text
			summary     pgtype.Text
			topicID     pgtype.Int8
			publishedAt pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &title, &summary, &topicID, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan cluster activity: %w", err)
		}

		cID := fromUUID(id)

		entry, ok := byID[cID]
		if !ok {
			entry = &EntityActivity{EntityID: cID, Title: title.String, Summary: summary.String}
			if topicID.Valid {
				v := topicID.Int64
				entry.TopicID = &v
			}

			byID[cID] = entry
			order = append(order, cID)
		}

		entry.Timestamps = append(entry.Timestamps, publishedAt.Time)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster activity: %w", rows.Err())
	}

	result := make([]EntityActivity, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}

	return result, nil
}

// TopicActivity returns per-topic message timestamps since the given time.
func (db *DB) TopicActivity(ctx context.Context, since time.Time) ([]EntityActivity, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT mt.topic_id, msg.published_at
		FROM message_topics mt
		JOIN messages msg ON mt.message_id = msg.id
		WHERE msg.published_at >= $1
		ORDER BY mt.topic_id, msg.published_at
	`, toTimestamptz(since))
	if err != nil {
		return nil, fmt.Errorf("topic activity: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*EntityActivity)

	var order []string

	for rows.Next() {
		var (
			topicID     int64
			publishedAt pgtype.Timestamptz
		)

		if err := rows.Scan(&topicID, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan topic activity: %w", err)
		}

		id := fmt.Sprintf("%d", topicID)

		entry, ok := byID[id]
		if !ok {
			v := topicID
			entry = &EntityActivity{EntityID: id, TopicID: &v}
			byID[id] = entry
			order = append(order, id)
		}

		entry.Timestamps = append(entry.Timestamps, publishedAt.Time)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate topic activity: %w", rows.Err())
	}

	result := make([]EntityActivity, 0, len(order))
	for _, id := range order {
		result = append(result, *byID[id])
	}

	return result, nil
}

// ClusterReach returns per-cluster reach aggregates for messages since the
// given time, keyed by cluster id.
func (db *DB) ClusterReach(ctx context.Context, since time.Time) (map[string]EntityReach, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT c.cluster_id,
		       COUNT(DISTINCT msg.channel_id) AS channel_count,
		       SUM(COALESCE(msg.views_count, 0)) AS total_views,
		       AVG(m.similarity_score) AS avg_similarity
		FROM clusters c
		JOIN memberships m ON c.cluster_id = m.cluster_id
		JOIN messages msg ON m.message_id = msg.id
		WHERE msg.published_at >= $1
		GROUP BY c.cluster_id
	`, toTimestamptz(since))
	if err != nil {
		return nil, fmt.Errorf("cluster reach: %w", err)
	}
	defer rows.Close()

	reach := make(map[string]EntityReach)

	for rows.Next() {
		var (
			id            pgtype.UUID
			channelCount  int
			totalViews    pgtype.Int8
			avgSimilarity pgtype.Float8
		)

		if err := rows.Scan(&id, &channelCount, &totalViews, &avgSimilarity); err != nil {
			return nil, fmt.Errorf("scan cluster reach: %w", err)
		}

		reach[fromUUID(id)] = EntityReach{
			ChannelCount:  channelCount,
			TotalViews:    totalViews.Int64,
			AvgSimilarity: avgSimilarity.Float64,
		}
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster reach: %w", rows.Err())
	}

	return reach, nil
}

// TopicReach returns per-topic channel counts for messages since the given
// time, keyed by the decimal topic id.
func (db *DB) TopicReach(ctx context.Context, since time.Time) (map[string]EntityReach, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT mt.topic_id, COUNT(DISTINCT msg.channel_id) AS channel_count
		FROM message_topics mt
		JOIN messages msg ON mt.message_id = msg.id
		WHERE msg.published_at >= $1
		GROUP BY mt.topic_id
	`, toTimestamptz(since))
	if err != nil {
		return nil, fmt.Errorf("topic reach: %w", err)
	}
	defer rows.Close()

	reach := make(map[string]EntityReach)

	for rows.Next() {
		var (
			topicID      int64
			channelCount int
		)

		if err := rows.Scan(&topicID, &channelCount); err != nil {
			return nil, fmt.Errorf("scan topic reach: %w", err)
		}

		reach[fmt.Sprintf("%d", topicID)] = EntityReach{ChannelCount: channelCount}
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate topic reach: %w", rows.Err())
	}

	return reach, nil
}

// ClusterPeriodStats compares cluster activity between the current period
// (from..now) and the previous one (prevFrom..from), for the
// period-over-period trend mode.
type ClusterPeriodStats struct {
	ClusterID        string
	Title            string
	Summary          string
	TopicID          *int64
	MessageCount     int
	AvgSimilarity    float64
	ChannelCount     int
	TotalViews       int64
	FirstMentionAt   time.Time
	LastMentionAt    time.Time
	PrevMessageCount int
	PrevChannelCount int
	PrevTotalViews   int64
}

// GetClusterPeriodStats returns per-cluster aggregates for the current and
// previous period. Clusters need at least two current-period messages to count
// as a meaningful event.
func (db *DB) GetClusterPeriodStats(ctx context.Context, from, prevFrom time.Time, limit int) ([]ClusterPeriodStats, error) {
	rows, err := db.Pool.Query(ctx, `
		WITH current_period AS (
			SELECT c.cluster_id, c.title, c.summary, c.primary_topic_id,
			       COUNT(DISTINCT m.message_id) AS message_count,
			       AVG(m.similarity_score) AS avg_similarity,
			       COUNT(DISTINCT msg.channel_id) AS channel_count,
			       SUM(COALESCE(msg.views_count, 0)) AS total_views,
			       MIN(msg.published_at) AS first_mention_at,
			       MAX(msg.published_at) AS last_mention_at
			FROM clusters c
			JOIN memberships m ON c.cluster_id = m.cluster_id
			JOIN messages msg ON m.message_id = msg.id
			WHERE msg.published_at >= $1
			GROUP BY c.cluster_id, c.title, c.summary, c.primary_topic_id
			HAVING COUNT(DISTINCT m.message_id) >= 2
		),
		previous_period AS (
			SELECT c.cluster_id,
			       COUNT(DISTINCT m.message_id) AS prev_message_count,
			       COUNT(DISTINCT msg.channel_id) AS prev_channel_count,
			       SUM(COALESCE(msg.views_count, 0)) AS prev_total_views
			FROM clusters c
			JOIN memberships m ON c.cluster_id = m.cluster_id
			JOIN messages msg ON m.message_id = msg.id
			WHERE msg.published_at >= $2 AND msg.published_at < $1
			GROUP BY c.cluster_id
		)
		SELECT cp.cluster_id, cp.title, cp.summary, cp.primary_topic_id,
		       cp.message_count, cp.avg_similarity, cp.channel_count, cp.total_views,
		       cp.first_mention_at, cp.last_mention_at,
		       COALESCE(pp.prev_message_count, 0),
		       COALESCE(pp.prev_channel_count, 0),
		       COALESCE(pp.prev_total_views, 0)
		FROM current_period cp
		LEFT JOIN previous_period pp ON cp.cluster_id = pp.cluster_id
		ORDER BY cp.message_count DESC, cp.total_views DESC
		LIMIT $3
	`, toTimestamptz(from), toTimestamptz(prevFrom), limit)
	if err != nil {
		return nil, fmt.Errorf("cluster period stats: %w", err)
	}
	defer rows.Close()

	var result []ClusterPeriodStats

	for rows.Next() {
		var (
			id            pgtype.UUID
			title         pgtype.Text
			summary       pgtype.Text
			topicID       pgtype.Int8
			avgSimilarity pgtype.Float8
			totalViews    pgtype.Int8
			prevViews     pgtype.Int8
			first, last   pgtype.Timestamptz
			s             ClusterPeriodStats
		)

		if err := rows.Scan(&id, &title, &summary, &topicID, &s.MessageCount, &avgSimilarity,
			&s.ChannelCount, &totalViews, &first, &last,
			&s.PrevMessageCount, &s.PrevChannelCount, &prevViews); err != nil {
			return nil, fmt.Errorf("scan cluster period stats: %w", err)
		}

		s.ClusterID = fromUUID(id)
		s.Title = title.String
		s.Summary = summary.String
		s.AvgSimilarity = avgSimilarity.Float64
		s.TotalViews = totalViews.Int64
		s.PrevTotalViews = prevViews.Int64
		s.FirstMentionAt = first.Time
		s.LastMentionAt = last.Time

		if topicID.Valid {
			v := topicID.Int64
			s.TopicID = &v
		}

		result = append(result, s)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster period stats: %w", rows.Err())
	}

	return result, nil
}
