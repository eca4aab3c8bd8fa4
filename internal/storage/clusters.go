package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
)

// CreateCluster inserts a new cluster row. The caller supplies the id so the
// cluster-then-membership write ordering stays explicit.
func (db *DB) CreateCluster(ctx context.Context, c *domain.Cluster) error {
	stats, err := json.Marshal(c.Stats)
	if err != nil {
		return fmt.Errorf("marshal cluster stats: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, `
		INSERT INTO clusters (cluster_id, title, summary, primary_topic_id, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, NOW())
	`, toUUID(c.ID), SanitizeUTF8(c.Title), SanitizeUTF8(c.Summary), c.PrimaryTopicID, stats, toTimestamptz(c.CreatedAt)); err != nil {
		return fmt.Errorf("create cluster: %w", err)
	}

	return nil
}

// GetCluster loads a cluster by id. Returns ErrClusterNotFound when missing.
func (db *DB) GetCluster(ctx context.Context, clusterID string) (*domain.Cluster, error) {
	var (
		id        pgtype.UUID
		title     pgtype.Text
		summary   pgtype.Text
		topicID   pgtype.Int8
		statsRaw  []byte
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT cluster_id, title, summary, primary_topic_id, stats, created_at, updated_at
		FROM clusters WHERE cluster_id = $1
	`, toUUID(clusterID)).Scan(&id, &title, &summary, &topicID, &statsRaw, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrClusterNotFound
		}

		return nil, fmt.Errorf("get cluster: %w", err)
	}

	cluster := &domain.Cluster{
		ID:        fromUUID(id),
		Title:     title.String,
		Summary:   summary.String,
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}

	if topicID.Valid {
		v := topicID.Int64
		cluster.PrimaryTopicID = &v
	}

	if len(statsRaw) > 0 {
		if err := json.Unmarshal(statsRaw, &cluster.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal cluster stats: %w", err)
		}
	}

	return cluster, nil
}

// UpdateClusterTitle replaces the cluster title.
func (db *DB) UpdateClusterTitle(ctx context.Context, clusterID, title string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE clusters SET title = $1, updated_at = NOW() WHERE cluster_id = $2
	`, SanitizeUTF8(title), toUUID(clusterID)); err != nil {
		return fmt.Errorf("update cluster title: %w", err)
	}

	return nil
}

// UpdateClusterStats replaces the denormalized stats blob.
func (db *DB) UpdateClusterStats(ctx context.Context, clusterID string, stats domain.ClusterStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal cluster stats: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, `
		UPDATE clusters SET stats = $1::jsonb, updated_at = NOW() WHERE cluster_id = $2
	`, raw, toUUID(clusterID)); err != nil {
		return fmt.Errorf("update cluster stats: %w", err)
	}

	return nil
}

// SetPrimaryTopic sets the cluster's primary topic reference.
func (db *DB) SetPrimaryTopic(ctx context.Context, clusterID string, topicID int64) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE clusters SET primary_topic_id = $1, updated_at = NOW() WHERE cluster_id = $2
	`, topicID, toUUID(clusterID)); err != nil {
		return fmt.Errorf("set primary topic: %w", err)
	}

	return nil
}

// DeleteCluster removes a cluster; memberships go with it via cascade.
func (db *DB) DeleteCluster(ctx context.Context, clusterID string) error {
	if _, err := db.Pool.Exec(ctx, `
		DELETE FROM clusters WHERE cluster_id = $1
	`, toUUID(clusterID)); err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}

	return nil
}

// WipeClusters removes every cluster and membership in one transaction.
// Only the batch rebuild calls this, under the maintenance advisory lock.
func (db *DB) WipeClusters(ctx context.Context) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin wipe: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM memberships`); err != nil {
		return fmt.Errorf("wipe memberships: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM clusters`); err != nil {
		return fmt.Errorf("wipe clusters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit wipe: %w", err)
	}

	return nil
}

// ClusterSize returns the current membership count of a cluster.
func (db *DB) ClusterSize(ctx context.Context, clusterID string) (int, error) {
	var size int
	if err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM memberships WHERE cluster_id = $1
	`, toUUID(clusterID)).Scan(&size); err != nil {
		return 0, fmt.Errorf("cluster size: %w", err)
	}

	return size, nil
}

// ClusterRef is a cluster id with its membership count.
type ClusterRef struct {
	ID   string
	Size int
}

// ListClustersLargerThan returns clusters whose membership count exceeds maxSize,
// biggest first.
func (db *DB) ListClustersLargerThan(ctx context.Context, maxSize int) ([]ClusterRef, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT c.cluster_id, COUNT(m.message_id) AS size
		FROM clusters c
		JOIN memberships m ON c.cluster_id = m.cluster_id
		GROUP BY c.cluster_id
		HAVING COUNT(m.message_id) > $1
		ORDER BY size DESC
	`, maxSize)
	if err != nil {
		return nil, fmt.Errorf("list large clusters: %w", err)
	}
	defer rows.Close()

	var refs []ClusterRef

	for rows.Next() {
		var (
			id   pgtype.UUID
			size int
		)

		if err := rows.Scan(&id, &size); err != nil {
			return nil, fmt.Errorf("scan large cluster: %w", err)
		}

		refs = append(refs, ClusterRef{ID: fromUUID(id), Size: size})
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate large clusters: %w", rows.Err())
	}

	return refs, nil
}

// GetClusterMembers returns memberships joined with their messages,
// oldest message first.
func (db *DB) GetClusterMembers(ctx context.Context, clusterID string) ([]domain.ClusterMember, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT m.message_id, msg.channel_id, msg.text_content, msg.published_at, m.similarity_score, m.is_primary
		FROM memberships m
		JOIN messages msg ON m.message_id = msg.id
		WHERE m.cluster_id = $1 AND msg.text_content IS NOT NULL
		ORDER BY msg.published_at ASC
	`, toUUID(clusterID))
	if err != nil {
		return nil, fmt.Errorf("get cluster members: %w", err)
	}
	defer rows.Close()

	var members []domain.ClusterMember

	for rows.Next() {
		var (
			mm          domain.ClusterMember
			text        pgtype.Text
			publishedAt pgtype.Timestamptz
		)

		if err := rows.Scan(&mm.MessageID, &mm.ChannelID, &text, &publishedAt, &mm.SimilarityScore, &mm.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan cluster member: %w", err)
		}

		mm.Text = text.String
		mm.PublishedAt = publishedAt.Time
		members = append(members, mm)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster members: %w", rows.Err())
	}

	return members, nil
}

// GetClusterTexts returns member texts ordered by similarity, best first.
// The title summarizer consumes these.
func (db *DB) GetClusterTexts(ctx context.Context, clusterID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT msg.text_content
		FROM memberships m
		JOIN messages msg ON m.message_id = msg.id
		WHERE m.cluster_id = $1 AND msg.text_content IS NOT NULL
		ORDER BY m.similarity_score DESC
	`, toUUID(clusterID))
	if err != nil {
		return nil, fmt.Errorf("get cluster texts: %w", err)
	}
	defer rows.Close()

	var texts []string

	for rows.Next() {
		var text pgtype.Text
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan cluster text: %w", err)
		}

		texts = append(texts, text.String)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster texts: %w", rows.Err())
	}

	return texts, nil
}

// ClusterScores holds a cluster's membership count and similarity scores,
// used by the quality analyzer.
type ClusterScores struct {
	ID        string
	Size      int
	Scores    []float64
	CreatedAt time.Time
}

// ListClusterScores returns the newest clusters with their score vectors.
func (db *DB) ListClusterScores(ctx context.Context, limit int) ([]ClusterScores, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT c.cluster_id, c.created_at,
		       COUNT(m.message_id) AS size,
		       COALESCE(array_agg(m.similarity_score) FILTER (WHERE m.message_id IS NOT NULL), '{}') AS scores
		FROM clusters c
		LEFT JOIN memberships m ON c.cluster_id = m.cluster_id
		GROUP BY c.cluster_id, c.created_at
		ORDER BY c.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cluster scores: %w", err)
	}
	defer rows.Close()

	var result []ClusterScores

	for rows.Next() {
		var (
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
			cs        ClusterScores
		)

		if err := rows.Scan(&id, &createdAt, &cs.Size, &cs.Scores); err != nil {
			return nil, fmt.Errorf("scan cluster scores: %w", err)
		}

		cs.ID = fromUUID(id)
		cs.CreatedAt = createdAt.Time
		result = append(result, cs)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate cluster scores: %w", rows.Err())
	}

	return result, nil
}

// DeleteSingletonClusters removes every cluster with at most one membership.
// Zero-member clusters can appear when a seed membership insert loses a race,
// so the sweep uses a LEFT JOIN instead of walking memberships alone.
// Returns the number of clusters deleted.
func (db *DB) DeleteSingletonClusters(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM clusters
		WHERE cluster_id IN (
			SELECT c.cluster_id FROM clusters c
			LEFT JOIN memberships m ON m.cluster_id = c.cluster_id
			GROUP BY c.cluster_id
			HAVING COUNT(m.message_id) <= 1
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("delete singleton clusters: %w", err)
	}

	return tag.RowsAffected(), nil
}

// BackfillPrimaryTopics fills primary_topic_id for clusters missing it,
// from the strongest topic label among member messages.
func (db *DB) BackfillPrimaryTopics(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		WITH ranked_topics AS (
			SELECT c.cluster_id,
			       mt.topic_id,
			       ROW_NUMBER() OVER (
			           PARTITION BY c.cluster_id
			           ORDER BY MAX(mt.score) DESC
			       ) AS rn
			FROM clusters c
			JOIN memberships m ON m.cluster_id = c.cluster_id
			JOIN message_topics mt ON mt.message_id = m.message_id
			WHERE c.primary_topic_id IS NULL
			GROUP BY c.cluster_id, mt.topic_id
		)
		UPDATE clusters c
		SET primary_topic_id = rt.topic_id,
		    updated_at = NOW()
		FROM ranked_topics rt
		WHERE c.cluster_id = rt.cluster_id AND rt.rn = 1
	`)
	if err != nil {
		return 0, fmt.Errorf("backfill primary topics: %w", err)
	}

	return tag.RowsAffected(), nil
}
