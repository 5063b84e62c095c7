package core

import (
	"context"

	"github.com/saved-ai/engine/internal/models"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider is the completion contract. StartThread answers a query
// grounded in the given documents and opens a multi-turn thread;
// ContinueThread feeds a follow-up message into an open thread.
type LLMProvider interface {
	Answer(ctx context.Context, query string, contextDocs []models.SearchResult) (string, error)
	StartThread(ctx context.Context, query string, contextDocs []models.SearchResult) (threadID, answer string, err error)
	ContinueThread(ctx context.Context, threadID, message string) (string, error)
}
