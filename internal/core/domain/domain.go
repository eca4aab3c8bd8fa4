// Package domain defines the entities shared across the clustering core.
package domain

import "time"

// Message is a short channel post, owned by the external ingestion service.
// The core never mutates messages.
type Message struct {
	ID          int64
	ChannelID   int64
	Text        string
	Views       int64
	PublishedAt time.Time
}

// ClusterStats is the denormalized stats blob stored on a cluster row.
type ClusterStats struct {
	MessageCount int     `json:"message_count"`
	ChannelCount int     `json:"channel_count"`
	Channels     []int64 `json:"channels"`
}

// Cluster is a group of messages believed to describe one real-world event.
type Cluster struct {
	ID             string
	Title          string
	Summary        string
	PrimaryTopicID *int64
	Stats          ClusterStats
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Membership links a message to the cluster it currently belongs to.
// The seed message carries score 1.0 and IsPrimary.
type Membership struct {
	ClusterID       string
	MessageID       int64
	SimilarityScore float64
	IsPrimary       bool
}

// Neighbor is a vector index search hit with its stored metadata.
type Neighbor struct {
	MessageID   int64
	Score       float64
	ChannelID   int64
	PublishedAt time.Time
	ClusterID   string
}

// ClusterMember is a membership joined with its message, as maintenance
// operations need both sides.
type ClusterMember struct {
	MessageID       int64
	ChannelID       int64
	Text            string
	PublishedAt     time.Time
	SimilarityScore float64
	IsPrimary       bool
}
