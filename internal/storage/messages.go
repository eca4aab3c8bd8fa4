package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	coreerrors "github.com/lueurxax/telegram-event-radar/internal/core/errors"
)

// minMessageTextLength filters out stubs that carry no clusterable content.
const minMessageTextLength = 10

// GetMessage loads a single message. Returns ErrMessageNotFound when missing.
func (db *DB) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	var (
		m           domain.Message
		text        pgtype.Text
		publishedAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, channel_id, text_content, views_count, published_at
		FROM messages WHERE id = $1
	`, id).Scan(&m.ID, &m.ChannelID, &text, &m.Views, &publishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrMessageNotFound
		}

		return nil, fmt.Errorf("get message: %w", err)
	}

	m.Text = text.String
	m.PublishedAt = publishedAt.Time

	return &m, nil
}

// GetMessagesWithEmbeddings returns messages published after cutoff that have
// an indexed embedding, oldest first. The batch clusterer consumes these.
func (db *DB) GetMessagesWithEmbeddings(ctx context.Context, cutoff time.Time, limit int) ([]domain.Message, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT m.id, m.channel_id, m.text_content, m.views_count, m.published_at
		FROM messages m
		JOIN message_embeddings e ON m.id = e.message_id
		WHERE m.published_at >= $1
		  AND m.text_content IS NOT NULL
		  AND LENGTH(m.text_content) > $2
		ORDER BY m.published_at ASC
		LIMIT $3
	`, toTimestamptz(cutoff), minMessageTextLength, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages with embeddings: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message

	for rows.Next() {
		var (
			m           domain.Message
			text        pgtype.Text
			publishedAt pgtype.Timestamptz
		)

		if err := rows.Scan(&m.ID, &m.ChannelID, &text, &m.Views, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.Text = text.String
		m.PublishedAt = publishedAt.Time
		messages = append(messages, m)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate messages: %w", rows.Err())
	}

	return messages, nil
}

// TopTopicForMessage returns the highest-scored topic label for a message,
// or nil when the classifier has not scored it.
func (db *DB) TopTopicForMessage(ctx context.Context, messageID int64) (*int64, error) {
	var topicID int64

	err := db.Pool.QueryRow(ctx, `
		SELECT topic_id FROM message_topics
		WHERE message_id = $1
		ORDER BY score DESC
		LIMIT 1
	`, messageID).Scan(&topicID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("top topic for message: %w", err)
	}

	return &topicID, nil
}

// TopicScore is one classifier label for a message.
type TopicScore struct {
	TopicID int64
	Score   float64
}

// TopicScoresForMessage returns all classifier labels for a message, best
// first. Empty when the classifier has not scored it.
func (db *DB) TopicScoresForMessage(ctx context.Context, messageID int64) ([]TopicScore, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT topic_id, score FROM message_topics
		WHERE message_id = $1
		ORDER BY score DESC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("topic scores for message: %w", err)
	}
	defer rows.Close()

	var scores []TopicScore

	for rows.Next() {
		var s TopicScore
		if err := rows.Scan(&s.TopicID, &s.Score); err != nil {
			return nil, fmt.Errorf("scan topic score: %w", err)
		}

		scores = append(scores, s)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate topic scores: %w", rows.Err())
	}

	return scores, nil
}

// TopicReferenceVectors loads every topic's reference embedding, keyed by
// topic id.
func (db *DB) TopicReferenceVectors(ctx context.Context) (map[int64][]float32, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT topic_id, reference_embedding FROM topics
		WHERE reference_embedding IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("topic reference vectors: %w", err)
	}
	defer rows.Close()

	vectors := make(map[int64][]float32)

	for rows.Next() {
		var (
			topicID   int64
			embedding pgvector.Vector
		)

		if err := rows.Scan(&topicID, &embedding); err != nil {
			return nil, fmt.Errorf("scan topic reference vector: %w", err)
		}

		vectors[topicID] = embedding.Slice()
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate topic reference vectors: %w", rows.Err())
	}

	return vectors, nil
}
