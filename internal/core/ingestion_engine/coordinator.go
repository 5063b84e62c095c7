package ingestion_engine

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/core/chatexport"
	"github.com/saved-ai/engine/internal/models"
)

// IngestConfig tunes the ingestion pipeline.
//
// ChunkSize / ChunkOverlap: rune window for the chunker.
// BatchSize: how many chunks to embed in one provider call.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// document is one unit of user content on its way into the vector store.
type document struct {
	text string
	meta models.DocMetadata
}

// Coordinator turns pending notes and export records into embedded chunks
// inside the user's shard/namespace, and marks note sources as ingested
// only after the whole upsert succeeded.
type Coordinator struct {
	db        core.DbClient
	store     core.VectorStore
	embedder  core.EmbeddingProvider
	router    *ShardRouter
	chunker   *Chunker
	batchSize int
}

func NewCoordinator(db core.DbClient, store core.VectorStore, emb core.EmbeddingProvider, router *ShardRouter, cfg *IngestConfig) *Coordinator {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	return &Coordinator{
		db:        db,
		store:     store,
		embedder:  emb,
		router:    router,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		batchSize: batch,
	}
}

// IngestPendingNotes vectorizes every not-yet-ingested note of the user.
// A failed batch leaves every ingestion flag untouched, so the same
// pending set can be retried safely.
func (c *Coordinator) IngestPendingNotes(ctx context.Context, user *models.User) error {
	notes, err := c.db.ListPendingNotes(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list pending notes: %w", err)
	}
	if len(notes) == 0 {
		return nil
	}

	docs := make([]document, 0, len(notes))
	ids := make([]int64, 0, len(notes))
	for _, note := range notes {
		docs = append(docs, document{
			text: note.Text,
			meta: models.DocMetadata{Source: note.MessageID},
		})
		ids = append(ids, note.ID)
	}

	volume, err := c.ingest(ctx, user, docs)
	if err != nil {
		return err
	}

	if err := c.db.MarkNotesIngested(ctx, ids); err != nil {
		return fmt.Errorf("mark notes ingested: %w", err)
	}
	if err := c.db.AddStorageVolume(ctx, user.ID, volume); err != nil {
		return fmt.Errorf("add storage volume: %w", err)
	}
	log.Printf("ingested %d notes for user %d", len(notes), user.ID)
	return nil
}

// IngestExportRecords vectorizes parsed chat-export records. Records are
// consumed once; they carry no persisted flag.
func (c *Coordinator) IngestExportRecords(ctx context.Context, user *models.User, records []chatexport.Record, chatName string) error {
	if len(records) == 0 {
		return nil
	}

	docs := make([]document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, document{
			text: fmt.Sprintf("%s\n\nFrom the chat: %s\nSender: %s\nForwarded from: %s",
				rec.Content, chatName, rec.Sender, rec.ForwardedFrom),
			meta: models.DocMetadata{
				Source:        rec.MsgID,
				ChatName:      rec.ChatName,
				Sender:        rec.Sender,
				ForwardedFrom: rec.ForwardedFrom,
				Date:          rec.Date,
			},
		})
	}

	volume, err := c.ingest(ctx, user, docs)
	if err != nil {
		return err
	}
	if err := c.db.AddStorageVolume(ctx, user.ID, volume); err != nil {
		return fmt.Errorf("add storage volume: %w", err)
	}
	log.Printf("ingested %d export records for user %d", len(records), user.ID)
	return nil
}

// ingest chunks documents, embeds every chunk, and upserts the whole set
// into the user's shard under their namespace. Returns the volume of
// ingested text in units of KiB.
func (c *Coordinator) ingest(ctx context.Context, user *models.User, docs []document) (float64, error) {
	shard, err := c.router.Assign(ctx, user)
	if err != nil {
		return 0, err
	}

	var (
		vdocs  []core.VectorDoc
		volume float64
	)
	for _, doc := range docs {
		for _, text := range c.chunker.Split(doc.text) {
			vdocs = append(vdocs, core.VectorDoc{
				ID:       uuid.NewString(),
				Text:     text,
				Metadata: doc.meta,
			})
			volume += float64(len(text)) / 1024.0
		}
	}
	if len(vdocs) == 0 {
		return 0, nil
	}

	if err := c.embedAll(ctx, vdocs); err != nil {
		return 0, err
	}

	if err := c.store.Upsert(ctx, shard, user.Namespace(), vdocs); err != nil {
		return 0, &core.TransportError{Op: "vector upsert", Err: err}
	}
	return volume, nil
}

// embedAll fills Embedding for every doc, batching provider calls. Batches
// run concurrently; any failure cancels the rest and nothing is persisted.
func (c *Coordinator) embedAll(ctx context.Context, vdocs []core.VectorDoc) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for start := 0; start < len(vdocs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(vdocs) {
			end = len(vdocs)
		}
		batch := vdocs[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}
			vecs, err := c.embedder.EmbedTexts(gctx, texts)
			if err != nil {
				return &core.TransportError{Op: "embed", Err: err}
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}

	return g.Wait()
}
