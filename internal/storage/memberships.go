package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
)

// InsertMembership writes a membership row. The unique constraint on
// message_id makes at-most-one-cluster a store guarantee; a conflicting
// insert reports inserted=false and touches nothing.
func (db *DB) InsertMembership(ctx context.Context, m domain.Membership) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		INSERT INTO memberships (cluster_id, message_id, similarity_score, is_primary)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO NOTHING
	`, toUUID(m.ClusterID), m.MessageID, m.SimilarityScore, m.IsPrimary)
	if err != nil {
		return false, fmt.Errorf("insert membership: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ClusterIDForMessage returns the cluster a message belongs to, or "" when
// the message is unclustered.
func (db *DB) ClusterIDForMessage(ctx context.Context, messageID int64) (string, error) {
	var id pgtype.UUID

	err := db.Pool.QueryRow(ctx, `
		SELECT cluster_id FROM memberships WHERE message_id = $1 LIMIT 1
	`, messageID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}

		return "", fmt.Errorf("cluster id for message: %w", err)
	}

	return fromUUID(id), nil
}

// DistinctChannels returns the distinct channel ids among a cluster's members.
func (db *DB) DistinctChannels(ctx context.Context, clusterID string) ([]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT msg.channel_id
		FROM memberships m
		JOIN messages msg ON m.message_id = msg.id
		WHERE m.cluster_id = $1
		ORDER BY msg.channel_id
	`, toUUID(clusterID))
	if err != nil {
		return nil, fmt.Errorf("distinct channels: %w", err)
	}
	defer rows.Close()

	var channels []int64

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel id: %w", err)
		}

		channels = append(channels, id)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate channels: %w", rows.Err())
	}

	return channels, nil
}
