// Package materialize turns a group of messages into a persisted cluster.
// The batch rebuild and the large-cluster split both hand it their grouped
// members; the first member seeds the cluster and the rest are appended with
// the similarity score the caller computed.
package materialize

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lueurxax/telegram-event-radar/internal/cluster/title"
	"github.com/lueurxax/telegram-event-radar/internal/core/domain"
	"github.com/lueurxax/telegram-event-radar/internal/storage/vectorindex"
)

const maxSummaryLength = 500

// Store is the persistence surface needed to create a cluster with members.
type Store interface {
	CreateCluster(ctx context.Context, c *domain.Cluster) error
	InsertMembership(ctx context.Context, m domain.Membership) (bool, error)
	SetPrimaryTopic(ctx context.Context, clusterID string, topicID int64) error
	TopTopicForMessage(ctx context.Context, messageID int64) (*int64, error)
}

// Member pairs a message with the similarity score to record on its
// membership row. The score of the first member is ignored; seeds are always
// recorded with 1.0.
type Member struct {
	Message    domain.Message
	Similarity float64
}

// Build creates a cluster from the given members and returns its id along
// with the number of membership rows actually written. Members already
// belonging to another cluster are skipped.
func Build(ctx context.Context, store Store, index vectorindex.Index, members []Member) (string, int, error) {
	if len(members) == 0 {
		return "", 0, fmt.Errorf("materialize: empty member group")
	}

	seed := members[0].Message
	clusterID := uuid.NewString()

	texts := make([]string, 0, len(members))
	channels := make(map[int64]struct{}, len(members))

	for _, m := range members {
		texts = append(texts, m.Message.Text)
		channels[m.Message.ChannelID] = struct{}{}
	}

	channelIDs := make([]int64, 0, len(channels))
	for ch := range channels {
		channelIDs = append(channelIDs, ch)
	}

	cluster := &domain.Cluster{
		ID:      clusterID,
		Title:   title.Summarize(texts),
		Summary: truncateRunes(seed.Text, maxSummaryLength),
		Stats: domain.ClusterStats{
			MessageCount: len(members),
			ChannelCount: len(channelIDs),
			Channels:     channelIDs,
		},
		CreatedAt: seed.PublishedAt,
	}

	if err := store.CreateCluster(ctx, cluster); err != nil {
		return "", 0, fmt.Errorf("materialize cluster: %w", err)
	}

	added := 0

	for i, m := range members {
		membership := domain.Membership{
			ClusterID:       clusterID,
			MessageID:       m.Message.ID,
			SimilarityScore: m.Similarity,
			IsPrimary:       i == 0,
		}
		if i == 0 {
			membership.SimilarityScore = 1.0
		}

		inserted, err := store.InsertMembership(ctx, membership)
		if err != nil {
			return "", added, fmt.Errorf("materialize membership for message %d: %w", m.Message.ID, err)
		}

		if !inserted {
			continue
		}

		added++

		if err := index.SetCluster(ctx, m.Message.ID, clusterID); err != nil {
			return "", added, err
		}
	}

	topicID, err := store.TopTopicForMessage(ctx, seed.ID)
	if err != nil {
		return "", added, err
	}

	if topicID != nil {
		if err := store.SetPrimaryTopic(ctx, clusterID, *topicID); err != nil {
			return "", added, err
		}
	}

	return clusterID, added, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit])
}
