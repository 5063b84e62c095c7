package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

// fakeDB is an in-memory core.DbClient good enough for the assistant's
// control flow: users, notes, actions and shard CAS all behave like the
// real thing.
type fakeDB struct {
	users      map[int64]*models.User
	byExternal map[int64]int64
	notes      []*models.Note
	actions    []actionRow
	nextUserID int64
	nextNoteID int64
	now        func() time.Time
}

type actionRow struct {
	userID int64
	at     time.Time
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:      make(map[int64]*models.User),
		byExternal: make(map[int64]int64),
		now:        time.Now,
	}
}

func (f *fakeDB) GetOrCreateUser(ctx context.Context, externalID int64, username, firstName string, invitedBy *int64) (*models.User, error) {
	if id, ok := f.byExternal[externalID]; ok {
		u := *f.users[id]
		return &u, nil
	}
	f.nextUserID++
	u := &models.User{
		ID:          f.nextUserID,
		ExternalID:  externalID,
		Username:    username,
		FirstName:   firstName,
		InvitedByID: invitedBy,
	}
	f.users[u.ID] = u
	f.byExternal[externalID] = u.ID
	cp := *u
	return &cp, nil
}

func (f *fakeDB) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	id, ok := f.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	u := *f.users[id]
	return &u, nil
}

func (f *fakeDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeDB) ListUserIDs(ctx context.Context) ([]int64, error) {
	out := make([]int64, 0, len(f.users))
	for id := range f.users {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeDB) AssignShard(ctx context.Context, userID int64, shard string) (string, error) {
	u, ok := f.users[userID]
	if !ok {
		return "", fmt.Errorf("no user %d", userID)
	}
	if u.ShardID == nil {
		s := shard
		u.ShardID = &s
	}
	return *u.ShardID, nil
}

func (f *fakeDB) AddStorageVolume(ctx context.Context, userID int64, delta float64) error {
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("no user %d", userID)
	}
	u.StorageVolume += delta
	return nil
}

func (f *fakeDB) SetSubscriptionEnd(ctx context.Context, userID int64, end time.Time) error {
	u, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("no user %d", userID)
	}
	e := end
	u.SubscriptionEnd = &e
	return nil
}

func (f *fakeDB) CreateNote(ctx context.Context, note *models.Note) error {
	f.nextNoteID++
	note.ID = f.nextNoteID
	cp := *note
	f.notes = append(f.notes, &cp)
	return nil
}

func (f *fakeDB) ListPendingNotes(ctx context.Context, userID int64) ([]models.Note, error) {
	var out []models.Note
	for _, n := range f.notes {
		if n.UserID == userID && !n.Ingested {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeDB) CountNotes(ctx context.Context, userID int64) (int, error) {
	n := 0
	for _, note := range f.notes {
		if note.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) MarkNotesIngested(ctx context.Context, ids []int64) error {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, n := range f.notes {
		if set[n.ID] {
			n.Ingested = true
		}
	}
	return nil
}

func (f *fakeDB) RecordAction(ctx context.Context, userID int64, messageID int64, text string) error {
	f.actions = append(f.actions, actionRow{userID: userID, at: f.now()})
	return nil
}

func (f *fakeDB) CountActionsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	n := 0
	for _, a := range f.actions {
		if a.userID == userID && !a.at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeDB) Close() error { return nil }

var _ core.DbClient = (*fakeDB)(nil)

// fakeStore records upserts and serves canned query results.
type fakeStore struct {
	upserts map[string][]core.VectorDoc
	results []models.SearchResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{upserts: make(map[string][]core.VectorDoc)}
}

func (f *fakeStore) Upsert(ctx context.Context, shard, namespace string, docs []core.VectorDoc) error {
	key := shard + "/" + namespace
	f.upserts[key] = append(f.upserts[key], docs...)
	return nil
}

func (f *fakeStore) Query(ctx context.Context, shard, namespace string, vec []float32, k int) ([]models.SearchResult, error) {
	return f.results, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeLLM hands out one thread and echoes what it got.
type fakeLLM struct {
	threadStarted  bool
	continuedWith  string
	threadUnknown  bool
	lastContextLen int
}

func (f *fakeLLM) Answer(ctx context.Context, query string, docs []models.SearchResult) (string, error) {
	return "answer: " + query, nil
}

func (f *fakeLLM) StartThread(ctx context.Context, query string, docs []models.SearchResult) (string, string, error) {
	f.threadStarted = true
	f.lastContextLen = len(docs)
	return "thread-1", "answer: " + query, nil
}

func (f *fakeLLM) ContinueThread(ctx context.Context, threadID, message string) (string, error) {
	if f.threadUnknown {
		return "", errors.New("unknown thread " + threadID)
	}
	f.continuedWith = message
	return "followup: " + message, nil
}

// fakeStorage is an in-memory object store.
type fakeStorage struct {
	objects map[string][]byte
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.objects[key] = data
	return "https://fake/" + key, nil
}

func (f *fakeStorage) GetFile(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (f *fakeStorage) DeleteFile(ctx context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

var _ core.ObjectClient = (*fakeStorage)(nil)
