// Package services orchestrates the assistant: every inbound event flows
// through the gate, the per-user session state machine, and out to the
// ingestion, retrieval or subscription paths.
package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/core/chatexport"
	ingest "github.com/saved-ai/engine/internal/core/ingestion_engine"
	"github.com/saved-ai/engine/internal/core/retrieval"
	"github.com/saved-ai/engine/internal/core/session"
	"github.com/saved-ai/engine/internal/models"
)

// Event kinds.
const (
	EventText       = "text"
	EventCommand    = "command"
	EventExportFile = "export_file"
	EventPayment    = "payment"
)

// Commands.
const (
	CommandNote      = "note"
	CommandChat      = "chat"
	CommandSearch    = "search"
	CommandImport    = "import"
	CommandSubscribe = "subscribe"
	CommandReindex   = "reindex"
)

// Event is one inbound user interaction, already stripped of transport
// details by the API layer.
type Event struct {
	Kind    string `json:"kind"`
	Command string `json:"command,omitempty"`
	Text    string `json:"text,omitempty"`

	ExternalID int64  `json:"external_id"`
	MessageID  int64  `json:"message_id,omitempty"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	InvitedBy  *int64 `json:"invited_by,omitempty"`

	// ObjectKey locates a staged export file for EventExportFile.
	ObjectKey string `json:"object_key,omitempty"`

	// Days is the paid subscription length for EventPayment.
	Days int `json:"days,omitempty"`
}

// Reply is what the transport sends back to the user.
type Reply struct {
	Outcome core.Outcome          `json:"outcome"`
	Mode    session.Mode          `json:"mode"`
	Answer  string                `json:"answer,omitempty"`
	Results []models.SearchResult `json:"results,omitempty"`
	Sources []int64               `json:"sources,omitempty"`

	// InvoiceID identifies a pending subscription payment.
	InvoiceID string `json:"invoice_id,omitempty"`
}

type Assistant struct {
	db          core.DbClient
	storage     core.ObjectClient
	coordinator *ingest.Coordinator
	retriever   *retrieval.Engine
	llm         core.LLMProvider
	parser      *chatexport.Parser
	sessions    *session.Store
	gate        *session.Gate
	now         func() time.Time
}

func NewAssistant(
	db core.DbClient,
	storage core.ObjectClient,
	coordinator *ingest.Coordinator,
	retriever *retrieval.Engine,
	llm core.LLMProvider,
	gate *session.Gate,
	now func() time.Time,
) *Assistant {
	if now == nil {
		now = time.Now
	}
	return &Assistant{
		db:          db,
		storage:     storage,
		coordinator: coordinator,
		retriever:   retriever,
		llm:         llm,
		parser:      chatexport.NewParser(0),
		sessions:    session.NewStore(),
		gate:        gate,
		now:         now,
	}
}

// Handle processes one event end to end. The returned error is reserved
// for infrastructure failures the transport should turn into a 5xx;
// every domain outcome, rejections included, lands in Reply.Outcome.
func (a *Assistant) Handle(ctx context.Context, ev Event) (*Reply, error) {
	user, err := a.db.GetOrCreateUser(ctx, ev.ExternalID, ev.Username, ev.FirstName, ev.InvitedBy)
	if err != nil {
		return nil, err
	}
	st := a.sessions.Get(user.ID)

	// Payments and the subscribe command stay reachable for users whose
	// subscription has lapsed; everything else passes the gate first.
	switch {
	case ev.Kind == EventPayment:
		return a.handlePayment(ctx, user, ev)
	case ev.Kind == EventCommand && ev.Command == CommandSubscribe:
		return a.enterSubscriptionFlow(user)
	case ev.Kind == EventText && (st.Mode == session.ModeSubscriptionChoice || st.Mode == session.ModeWaitForPayment):
		return a.handleText(ctx, user, st, ev)
	}

	if err := a.gate.Check(ctx, user); err != nil {
		return a.rejected(st.Mode, err), nil
	}

	switch ev.Kind {
	case EventCommand:
		return a.handleCommand(ctx, user, ev)
	case EventText:
		return a.handleText(ctx, user, st, ev)
	case EventExportFile:
		return a.handleExportFile(ctx, user, st, ev)
	default:
		return a.rejected(st.Mode, &core.FormatError{Reason: "unknown event kind " + ev.Kind}), nil
	}
}

func (a *Assistant) handleCommand(ctx context.Context, user *models.User, ev Event) (*Reply, error) {
	switch ev.Command {
	case CommandNote:
		st := a.sessions.Update(user.ID, func(s *session.State) {
			s.Mode = session.ModeNotes
			s.ThreadID = ""
		})
		return a.ok(st.Mode, "Notes mode. Send me anything worth keeping."), nil

	case CommandChat:
		st := a.sessions.Update(user.ID, func(s *session.State) {
			s.Mode = session.ModeChat
			s.ThreadID = ""
		})
		return a.ok(st.Mode, "Chat mode. Ask me about your notes."), nil

	case CommandSearch:
		st := a.sessions.Update(user.ID, func(s *session.State) {
			s.Mode = session.ModeSearch
			s.ThreadID = ""
		})
		return a.ok(st.Mode, "Search mode. What are you looking for?"), nil

	case CommandImport:
		st := a.sessions.Update(user.ID, func(s *session.State) {
			s.Mode = session.ModeWaitForJSON
		})
		return a.ok(st.Mode, "Send the exported result.json file from Telegram."), nil

	case CommandReindex:
		if err := a.coordinator.IngestPendingNotes(ctx, user); err != nil {
			return a.rejected(a.sessions.Get(user.ID).Mode, err), nil
		}
		if err := a.db.RecordAction(ctx, user.ID, ev.MessageID, "/reindex"); err != nil {
			return nil, err
		}
		return a.ok(a.sessions.Get(user.ID).Mode, "Your notes are indexed and searchable."), nil

	default:
		return a.rejected(a.sessions.Get(user.ID).Mode, &core.FormatError{Reason: "unknown command " + ev.Command}), nil
	}
}

func (a *Assistant) handleText(ctx context.Context, user *models.User, st session.State, ev Event) (*Reply, error) {
	switch st.Mode {
	case session.ModeNotes:
		return a.saveNote(ctx, user, ev)
	case session.ModeSearch:
		return a.search(ctx, user, ev)
	case session.ModeChat:
		return a.chat(ctx, user, st, ev)
	case session.ModeSubscriptionChoice:
		return a.chooseSubscription(user, ev)
	case session.ModeWaitForPayment:
		return a.ok(st.Mode, "Waiting for your payment to come through."), nil
	case session.ModeWaitForJSON:
		return a.ok(st.Mode, "I need the exported result.json file, not a message."), nil
	default:
		return a.rejected(st.Mode, &core.FormatError{Reason: "unknown mode " + string(st.Mode)}), nil
	}
}

// saveNote persists the text and, for a user's very first note, ingests
// it immediately so their first search works without waiting for the
// background walker.
func (a *Assistant) saveNote(ctx context.Context, user *models.User, ev Event) (*Reply, error) {
	note := &models.Note{UserID: user.ID, Text: ev.Text, MessageID: ev.MessageID}
	if err := a.db.CreateNote(ctx, note); err != nil {
		return nil, err
	}
	if err := a.db.RecordAction(ctx, user.ID, ev.MessageID, ev.Text); err != nil {
		return nil, err
	}

	total, err := a.db.CountNotes(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if total == 1 {
		if err := a.coordinator.IngestPendingNotes(ctx, user); err != nil {
			log.Printf("first-note ingest for user %d: %v", user.ID, err)
			return a.rejected(session.ModeNotes, err), nil
		}
	}
	return a.ok(session.ModeNotes, "Saved."), nil
}

// search answers one query and drops the user back into notes mode.
func (a *Assistant) search(ctx context.Context, user *models.User, ev Event) (*Reply, error) {
	results, err := a.retriever.Search(ctx, user, ev.Text)
	if err != nil {
		return a.rejected(session.ModeSearch, err), nil
	}
	if err := a.db.RecordAction(ctx, user.ID, ev.MessageID, ev.Text); err != nil {
		return nil, err
	}

	st := a.sessions.Update(user.ID, func(s *session.State) {
		s.Mode = session.ModeNotes
	})
	r := a.ok(st.Mode, "")
	r.Results = results
	return r, nil
}

// chat retrieves context on the first turn and opens a thread; later
// turns continue the same thread without fresh retrieval.
func (a *Assistant) chat(ctx context.Context, user *models.User, st session.State, ev Event) (*Reply, error) {
	if st.ThreadID != "" {
		answer, err := a.llm.ContinueThread(ctx, st.ThreadID, ev.Text)
		if err != nil {
			// The thread is gone, likely a restart. Start over.
			a.sessions.Update(user.ID, func(s *session.State) { s.ThreadID = "" })
			st.ThreadID = ""
		} else {
			if err := a.db.RecordAction(ctx, user.ID, ev.MessageID, ev.Text); err != nil {
				return nil, err
			}
			return a.ok(session.ModeChat, answer), nil
		}
	}

	docs, err := a.retriever.Search(ctx, user, ev.Text)
	if err != nil {
		return a.rejected(session.ModeChat, err), nil
	}

	threadID, answer, err := a.llm.StartThread(ctx, ev.Text, docs)
	if err != nil {
		return a.rejected(session.ModeChat, &core.TransportError{Op: "start thread", Err: err}), nil
	}
	a.sessions.Update(user.ID, func(s *session.State) { s.ThreadID = threadID })

	if err := a.db.RecordAction(ctx, user.ID, ev.MessageID, ev.Text); err != nil {
		return nil, err
	}

	r := a.ok(session.ModeChat, answer)
	for _, d := range docs {
		r.Sources = append(r.Sources, d.Metadata.Source)
	}
	return r, nil
}

func (a *Assistant) handleExportFile(ctx context.Context, user *models.User, st session.State, ev Event) (*Reply, error) {
	if st.Mode != session.ModeWaitForJSON {
		return a.rejected(st.Mode, &core.FormatError{Reason: "not expecting a file; use the import command first"}), nil
	}

	data, err := a.storage.GetFile(ctx, ev.ObjectKey)
	if err != nil {
		return a.rejected(st.Mode, &core.TransportError{Op: "fetch export", Err: err}), nil
	}

	records, chatName, err := a.parser.Parse(data)
	if err != nil {
		// Malformed export: stay in wait mode so the user can resend.
		return a.rejected(session.ModeWaitForJSON, err), nil
	}

	if err := a.coordinator.IngestExportRecords(ctx, user, records, chatName); err != nil {
		return a.rejected(st.Mode, err), nil
	}
	if err := a.storage.DeleteFile(ctx, ev.ObjectKey); err != nil {
		log.Printf("delete staged export %s: %v", ev.ObjectKey, err)
	}
	if err := a.db.RecordAction(ctx, user.ID, ev.MessageID, "import "+chatName); err != nil {
		return nil, err
	}

	newMode := a.sessions.Update(user.ID, func(s *session.State) {
		s.Mode = session.ModeNotes
	})
	return a.ok(newMode.Mode, "Imported \""+chatName+"\". Your chat history is searchable now."), nil
}

// Subscription flow.

func (a *Assistant) enterSubscriptionFlow(user *models.User) (*Reply, error) {
	st := a.sessions.Update(user.ID, func(s *session.State) {
		s.Mode = session.ModeSubscriptionChoice
		s.PendingDiscount = user.InvitedByID != nil
	})
	return a.ok(st.Mode, "Pick a plan: monthly or yearly."), nil
}

func (a *Assistant) chooseSubscription(user *models.User, ev Event) (*Reply, error) {
	invoiceID := uuid.NewString()
	st := a.sessions.Update(user.ID, func(s *session.State) {
		s.Mode = session.ModeWaitForPayment
		s.PendingInvoice = invoiceID
	})
	r := a.ok(st.Mode, "Invoice issued for \""+ev.Text+"\". Complete the payment to activate.")
	r.InvoiceID = invoiceID
	return r, nil
}

// handlePayment extends the subscription by the paid number of days.
// Paying while still active extends from the current expiry.
func (a *Assistant) handlePayment(ctx context.Context, user *models.User, ev Event) (*Reply, error) {
	if ev.Days <= 0 {
		return a.rejected(a.sessions.Get(user.ID).Mode, &core.FormatError{Reason: "payment without a subscription length"}), nil
	}

	end := models.ExtendSubscription(user.SubscriptionEnd, a.now(), ev.Days)
	if err := a.db.SetSubscriptionEnd(ctx, user.ID, end); err != nil {
		return nil, err
	}

	st := a.sessions.Update(user.ID, func(s *session.State) {
		s.Mode = session.ModeNotes
		s.PendingInvoice = ""
	})
	return a.ok(st.Mode, "Subscription active until "+end.Format("2006-01-02")+"."), nil
}

func (a *Assistant) ok(mode session.Mode, answer string) *Reply {
	return &Reply{Outcome: core.OutcomeOK, Mode: mode, Answer: answer}
}

func (a *Assistant) rejected(mode session.Mode, err error) *Reply {
	outcome := core.OutcomeForError(err)
	if outcome == core.OutcomeTransportFailure && !errors.Is(err, context.Canceled) {
		log.Printf("transport failure: %v", err)
	}
	return &Reply{Outcome: outcome, Mode: mode, Answer: userMessage(err)}
}

func userMessage(err error) string {
	var fe *core.FormatError
	switch {
	case errors.Is(err, core.ErrSubscriptionRequired):
		return "You need an active subscription. Use the subscribe command."
	case errors.Is(err, core.ErrQuotaExceeded):
		return "You hit your daily limit. Try again later."
	case errors.As(err, &fe):
		return "I could not read that: " + fe.Reason
	default:
		return "Something went wrong on my side. Please try again."
	}
}
