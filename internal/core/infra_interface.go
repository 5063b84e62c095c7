package core

import (
	"context"
	"time"

	"github.com/saved-ai/engine/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres so higher layers never depend on a specific DB.
type DbClient interface {
	GetOrCreateUser(ctx context.Context, externalID int64, username, firstName string, invitedBy *int64) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	// AssignShard is a compare-and-set: it writes shard only if the user has
	// none yet and always returns the persisted value.
	AssignShard(ctx context.Context, userID int64, shard string) (string, error)
	AddStorageVolume(ctx context.Context, userID int64, delta float64) error
	SetSubscriptionEnd(ctx context.Context, userID int64, end time.Time) error

	CreateNote(ctx context.Context, note *models.Note) error
	ListPendingNotes(ctx context.Context, userID int64) ([]models.Note, error)
	CountNotes(ctx context.Context, userID int64) (int, error)
	MarkNotesIngested(ctx context.Context, ids []int64) error

	RecordAction(ctx context.Context, userID int64, messageID int64, text string) error
	CountActionsSince(ctx context.Context, userID int64, since time.Time) (int, error)

	Close() error
}

// VectorDoc is one (id, embedding, text, metadata) tuple to upsert.
type VectorDoc struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  models.DocMetadata
}

// VectorStore abstracts the sharded vector index. A namespace isolates one
// user's documents inside a shard; implementations must never let a query
// cross namespaces.
type VectorStore interface {
	Upsert(ctx context.Context, shard, namespace string, docs []VectorDoc) error
	Query(ctx context.Context, shard, namespace string, vec []float32, k int) ([]models.SearchResult, error)
}
