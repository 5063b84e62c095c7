package models

import (
	"fmt"
	"time"
)

// User represents one end user of the assistant, identified by the numeric
// id the messaging transport gives us.
type User struct {
	ID         int64  `db:"id" json:"id"`
	ExternalID int64  `db:"external_id" json:"external_id"`
	Username   string `db:"username" json:"username"`
	FirstName  string `db:"first_name" json:"first_name"`

	// ShardID is nil until the user's first ingestion and immutable afterwards.
	ShardID       *string  `db:"shard_id" json:"shard_id,omitempty"`
	StorageVolume float64  `db:"storage_volume" json:"storage_volume"`

	SubscriptionEnd *time.Time `db:"subscription_end" json:"subscription_end,omitempty"`
	InvitedByID     *int64     `db:"invited_by_id" json:"invited_by_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Namespace isolates this user's documents inside a shared shard.
func (u *User) Namespace() string {
	return fmt.Sprintf("user_%d_notes", u.ExternalID)
}

// HasActiveSubscription reports whether the subscription is paid up at now.
func (u *User) HasActiveSubscription(now time.Time) bool {
	if u.SubscriptionEnd == nil {
		return false
	}
	return !u.SubscriptionEnd.Before(now)
}

// ExtendSubscription returns the expiry after adding days. Extending an
// active subscription adds onto its current expiry, not onto now.
func ExtendSubscription(current *time.Time, now time.Time, days int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(days) * 24 * time.Hour)
}

// Note is a saved user message awaiting (or past) vectorization.
type Note struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Text      string    `db:"text" json:"text"`
	MessageID int64     `db:"message_id" json:"message_id"`
	Ingested  bool      `db:"ingested" json:"ingested"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DocMetadata is the provenance carried by every chunk and search result.
// Source is the originating message id; it is what search dedupes on.
type DocMetadata struct {
	Source        int64  `json:"source"`
	ChatName      string `json:"chat_name,omitempty"`
	Sender        string `json:"sender,omitempty"`
	ForwardedFrom string `json:"forwarded_from,omitempty"`
	Date          string `json:"date,omitempty"`
}

// SearchResult is one scored document returned by the vector store.
type SearchResult struct {
	ID       string      `json:"id"`
	Text     string      `json:"text"`
	Score    float64     `json:"score"`
	Metadata DocMetadata `json:"metadata"`
}
