package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

const systemPrompt = `You are a personal knowledge assistant. Answer the user's question using
only the provided context documents. Documents from chat exports carry
"From the chat:", "Sender:" and "Forwarded from:" lines; use them to
attribute who said what. If the context does not contain the answer, say
so instead of guessing.`

type GeminiLLM struct {
	client    *genai.Client
	modelName string

	mu      sync.Mutex
	threads map[string]*genai.ChatSession
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{
		client:    cl,
		modelName: modelName,
		threads:   make(map[string]*genai.ChatSession),
	}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) model() *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	return m
}

// Answer produces a single grounded completion without opening a thread.
func (g *GeminiLLM) Answer(ctx context.Context, query string, contextDocs []models.SearchResult) (string, error) {
	resp, err := g.model().GenerateContent(ctx, genai.Text(groundedPrompt(query, contextDocs)))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return flattenResponse(resp), nil
}

// StartThread answers the query grounded in contextDocs and keeps the
// chat session so follow-ups stay in context. Threads are in-process
// only; a restart forgets them.
func (g *GeminiLLM) StartThread(ctx context.Context, query string, contextDocs []models.SearchResult) (string, string, error) {
	cs := g.model().StartChat()
	resp, err := cs.SendMessage(ctx, genai.Text(groundedPrompt(query, contextDocs)))
	if err != nil {
		return "", "", fmt.Errorf("gemini chat start: %w", err)
	}

	threadID := uuid.NewString()
	g.mu.Lock()
	g.threads[threadID] = cs
	g.mu.Unlock()

	return threadID, flattenResponse(resp), nil
}

// ContinueThread sends a follow-up into an open thread. An unknown
// thread id means the process restarted since the thread was opened.
func (g *GeminiLLM) ContinueThread(ctx context.Context, threadID, message string) (string, error) {
	g.mu.Lock()
	cs, ok := g.threads[threadID]
	g.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown thread %s", threadID)
	}

	resp, err := cs.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("gemini chat continue: %w", err)
	}
	return flattenResponse(resp), nil
}

func groundedPrompt(query string, docs []models.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context documents:\n\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, d.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

func flattenResponse(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
