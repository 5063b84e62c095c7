package ingestion_engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

// fakeDB implements core.DbClient in memory for pipeline tests.
type fakeDB struct {
	mu       sync.Mutex
	shards   map[int64]string
	notes    map[int64][]models.Note
	volumes  map[int64]float64
	assigned int // AssignShard call count
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		shards:  make(map[int64]string),
		notes:   make(map[int64][]models.Note),
		volumes: make(map[int64]float64),
	}
}

func (f *fakeDB) GetOrCreateUser(ctx context.Context, externalID int64, username, firstName string, invitedBy *int64) (*models.User, error) {
	return &models.User{ID: externalID, ExternalID: externalID}, nil
}

func (f *fakeDB) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	return &models.User{ID: externalID, ExternalID: externalID}, nil
}

func (f *fakeDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return &models.User{ID: id, ExternalID: id}, nil
}

func (f *fakeDB) ListUserIDs(ctx context.Context) ([]int64, error) { return nil, nil }

func (f *fakeDB) AssignShard(ctx context.Context, userID int64, shard string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned++
	if existing, ok := f.shards[userID]; ok {
		return existing, nil
	}
	f.shards[userID] = shard
	return shard, nil
}

func (f *fakeDB) AddStorageVolume(ctx context.Context, userID int64, delta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[userID] += delta
	return nil
}

func (f *fakeDB) SetSubscriptionEnd(ctx context.Context, userID int64, end time.Time) error {
	return nil
}

func (f *fakeDB) CreateNote(ctx context.Context, note *models.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	note.ID = int64(len(f.notes[note.UserID]) + 1)
	f.notes[note.UserID] = append(f.notes[note.UserID], *note)
	return nil
}

func (f *fakeDB) ListPendingNotes(ctx context.Context, userID int64) ([]models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Note
	for _, n := range f.notes[userID] {
		if !n.Ingested {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeDB) CountNotes(ctx context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notes[userID]), nil
}

func (f *fakeDB) MarkNotesIngested(ctx context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for userID, notes := range f.notes {
		for i := range notes {
			if want[notes[i].ID] {
				notes[i].Ingested = true
			}
		}
		f.notes[userID] = notes
	}
	return nil
}

func (f *fakeDB) RecordAction(ctx context.Context, userID int64, messageID int64, text string) error {
	return nil
}

func (f *fakeDB) CountActionsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	return 0, nil
}

func (f *fakeDB) Close() error { return nil }

// fakeEmbedder returns one fixed-size vector per text, or fails.
type fakeEmbedder struct {
	fail  bool
	calls int
	mu    sync.Mutex
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

// fakeStore records upserts per shard/namespace.
type fakeStore struct {
	mu      sync.Mutex
	fail    bool
	upserts map[string][]core.VectorDoc // key: shard + "/" + namespace
}

func newFakeStore() *fakeStore {
	return &fakeStore{upserts: make(map[string][]core.VectorDoc)}
}

func (f *fakeStore) Upsert(ctx context.Context, shard, namespace string, docs []core.VectorDoc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("vector store down")
	}
	f.upserts[shard+"/"+namespace] = append(f.upserts[shard+"/"+namespace], docs...)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, shard, namespace string, vec []float32, k int) ([]models.SearchResult, error) {
	return nil, nil
}
