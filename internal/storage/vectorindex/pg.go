package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
)

// PgIndex is the pgvector-backed Index over the message_embeddings table.
type PgIndex struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
}

// NewPgIndex returns an Index backed by the given pool.
func NewPgIndex(pool *pgxpool.Pool, logger *zerolog.Logger) *PgIndex {
	return &PgIndex{pool: pool, logger: logger}
}

func (p *PgIndex) Upsert(ctx context.Context, messageID int64, channelID int64, publishedAt time.Time, embedding []float32) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO message_embeddings (message_id, embedding, channel_id, published_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (message_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			channel_id = EXCLUDED.channel_id,
			published_at = EXCLUDED.published_at,
			updated_at = NOW()
	`, messageID, pgvector.NewVector(embedding), channelID, publishedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert embedding for message %d: %w", coreerrors.ErrIndexUnavailable, messageID, err)
	}

	return nil
}

func (p *PgIndex) Search(ctx context.Context, embedding []float32, limit int, filter SearchFilter) ([]domain.Neighbor, error) {
	query := `
		SELECT message_id, 1 - (embedding <=> $1) AS similarity, channel_id, published_at, cluster_id
		FROM message_embeddings
		WHERE ($2::timestamptz IS NULL OR published_at >= $2)
		  AND ($3::timestamptz IS NULL OR published_at <= $3)
		  AND ($4::bigint IS NULL OR channel_id = $4)
		  AND ($5::bigint IS NULL OR message_id <> $5)
		ORDER BY embedding <=> $1
		LIMIT $6
	`

	var after *time.Time
	if !filter.PublishedAfter.IsZero() {
		after = &filter.PublishedAfter
	}

	var before *time.Time
	if !filter.PublishedBefore.IsZero() {
		before = &filter.PublishedBefore
	}

	var channel *int64
	if filter.ChannelID != 0 {
		channel = &filter.ChannelID
	}

	var exclude *int64
	if filter.ExcludeMessageID != 0 {
		exclude = &filter.ExcludeMessageID
	}

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(embedding), after, before, channel, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: neighbor search: %w", coreerrors.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var neighbors []domain.Neighbor

	for rows.Next() {
		var (
			n           domain.Neighbor
			publishedAt pgtype.Timestamptz
			clusterID   pgtype.UUID
		)

		if err := rows.Scan(&n.MessageID, &n.Score, &n.ChannelID, &publishedAt, &clusterID); err != nil {
			return nil, fmt.Errorf("%w: scan neighbor: %w", coreerrors.ErrIndexUnavailable, err)
		}

		n.PublishedAt = publishedAt.Time
		if clusterID.Valid {
			n.ClusterID = uuidString(clusterID)
		}

		neighbors = append(neighbors, n)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: iterate neighbors: %w", coreerrors.ErrIndexUnavailable, rows.Err())
	}

	return neighbors, nil
}

func (p *PgIndex) SetCluster(ctx context.Context, messageID int64, clusterID string) error {
	var id any
	if clusterID != "" {
		id = clusterID
	}

	_, err := p.pool.Exec(ctx, `
		UPDATE message_embeddings SET cluster_id = $1, updated_at = NOW() WHERE message_id = $2
	`, id, messageID)
	if err != nil {
		return fmt.Errorf("%w: set cluster for message %d: %w", coreerrors.ErrIndexUnavailable, messageID, err)
	}

	return nil
}

func (p *PgIndex) ClearClusters(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `UPDATE message_embeddings SET cluster_id = NULL WHERE cluster_id IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("%w: clear cluster assignments: %w", coreerrors.ErrIndexUnavailable, err)
	}

	return nil
}

func (p *PgIndex) Embeddings(ctx context.Context, messageIDs []int64) (map[int64][]float32, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT message_id, embedding FROM message_embeddings WHERE message_id = ANY($1)
	`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: load embeddings: %w", coreerrors.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	result := make(map[int64][]float32, len(messageIDs))

	for rows.Next() {
		var (
			id  int64
			vec pgvector.Vector
		)

		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("%w: scan embedding: %w", coreerrors.ErrIndexUnavailable, err)
		}

		result[id] = vec.Slice()
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("%w: iterate embeddings: %w", coreerrors.ErrIndexUnavailable, rows.Err())
	}

	return result, nil
}

func uuidString(u pgtype.UUID) string {
	v, err := u.Value()
	if err != nil {
		return ""
	}

	s, _ := v.(string)

	return s
}
