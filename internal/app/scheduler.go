package app

import (
	"context"
	"log"
	"time"

	"github.com/saved-ai/engine/internal/core"
	ingest "github.com/saved-ai/engine/internal/core/ingestion_engine"
)

// Reindexer periodically walks every user and vectorizes their pending
// notes, so content saved between reindex commands still becomes
// searchable on its own.
type Reindexer struct {
	db          core.DbClient
	coordinator *ingest.Coordinator
	interval    time.Duration
	pause       time.Duration
}

func NewReindexer(db core.DbClient, coordinator *ingest.Coordinator, interval, pause time.Duration) *Reindexer {
	return &Reindexer{db: db, coordinator: coordinator, interval: interval, pause: pause}
}

// Run blocks until ctx is cancelled, walking all users every interval.
func (r *Reindexer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("reindex walker running every %s", r.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.walkOnce(ctx)
		}
	}
}

// walkOnce ingests pending notes for every user. One user's failure
// does not stop the walk; the pause keeps the walker from hammering
// the embedding provider.
func (r *Reindexer) walkOnce(ctx context.Context) {
	ids, err := r.db.ListUserIDs(ctx)
	if err != nil {
		log.Printf("reindex: list users: %v", err)
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		user, err := r.db.GetUserByID(ctx, id)
		if err != nil || user == nil {
			log.Printf("reindex: load user %d: %v", id, err)
			continue
		}
		if err := r.coordinator.IngestPendingNotes(ctx, user); err != nil {
			log.Printf("reindex: user %d: %v", id, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.pause):
		}
	}
}
