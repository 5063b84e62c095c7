package ingestion_engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

// ShardRouter assigns each user to one shard from a fixed pool. The
// assignment is sticky: once a shard id is persisted for a user it never
// changes, because everything already ingested for the user lives there.
type ShardRouter struct {
	db   core.DbClient
	pool []string

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewShardRouter(db core.DbClient, pool []string) *ShardRouter {
	return &ShardRouter{
		db:    db,
		pool:  pool,
		locks: make(map[int64]*sync.Mutex),
	}
}

// Assign returns the user's shard, picking one uniformly at random from
// the pool on first call. The read-modify-write is serialized per user
// and the DB write is a compare-and-set, so concurrent calls can never
// hand the same user two different shards.
func (r *ShardRouter) Assign(ctx context.Context, user *models.User) (string, error) {
	if len(r.pool) == 0 {
		return "", fmt.Errorf("shard pool is empty")
	}

	lock := r.userLock(user.ID)
	lock.Lock()
	defer lock.Unlock()

	pick := ""
	if user.ShardID != nil {
		pick = *user.ShardID
	} else {
		pick = r.pool[rand.IntN(len(r.pool))]
	}

	persisted, err := r.db.AssignShard(ctx, user.ID, pick)
	if err != nil {
		return "", fmt.Errorf("assign shard: %w", err)
	}
	if user.ShardID != nil && persisted != *user.ShardID {
		return "", fmt.Errorf("%w: user %d shard changed from %q to %q",
			core.ErrInvariantViolation, user.ID, *user.ShardID, persisted)
	}

	user.ShardID = &persisted
	return persisted, nil
}

func (r *ShardRouter) userLock(userID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[userID] = lock
	}
	return lock
}
