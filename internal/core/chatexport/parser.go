// Package chatexport parses Telegram chat-history exports (result.json)
// into normalized message records ready for chunking and embedding.
package chatexport

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/saved-ai/engine/internal/core"
)

// DefaultMaxMessages bounds how many records are retained across one
// export; the oldest are evicted first.
const DefaultMaxMessages = 50000

// Message kinds. Media kinds from the export (animation, video_file,
// voice_message, ...) pass through as-is.
const (
	KindText     = "text"
	KindFile     = "file"
	KindPhoto    = "photo"
	KindPoll     = "poll"
	KindLocation = "location"
	KindLink     = "link"
	KindSticker  = "sticker"
)

var mentionSpanTypes = map[string]bool{
	"mention":      true,
	"mention_name": true,
}

// Record is one normalized message from an imported chat. It is ephemeral:
// chunked and ingested right away, never persisted as its own entity.
type Record struct {
	MsgID         int64
	Sender        string
	SenderID      string
	ReplyTo       int64
	Date          string
	DateUnix      int64
	Kind          string
	Content       string
	ForwardedFrom string
	ChatName      string

	HasMention   bool
	HasEmail     bool
	HasPhone     bool
	HasHashtag   bool
	IsBotCommand bool
}

type rawChat struct {
	Name     string       `json:"name"`
	Messages []rawMessage `json:"messages"`
}

type rawExport struct {
	rawChat
	Chats     *rawChatList `json:"chats"`
	LeftChats *rawChatList `json:"left_chats"`
}

type rawChatList struct {
	List []rawChat `json:"list"`
}

type rawMessage struct {
	Type          string          `json:"type"`
	ID            int64           `json:"id"`
	From          string          `json:"from"`
	FromID        string          `json:"from_id"`
	Date          string          `json:"date"`
	DateUnix      string          `json:"date_unixtime"`
	ReplyTo       int64           `json:"reply_to_message_id"`
	ForwardedFrom string          `json:"forwarded_from"`
	MediaType     string          `json:"media_type"`
	File          *string         `json:"file"`
	Photo         *string         `json:"photo"`
	Poll          *rawPoll        `json:"poll"`
	Location      *rawLocation    `json:"location_information"`
	Text          json.RawMessage `json:"text"`
}

type rawPoll struct {
	TotalVoters int `json:"total_voters"`
}

type rawLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Parser collects at most maxMessages records across a whole export.
type Parser struct {
	maxMessages int
}

func NewParser(maxMessages int) *Parser {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Parser{maxMessages: maxMessages}
}

// Parse accepts a single-chat export, or a multi-chat export under
// "chats.list" / "left_chats.list". It returns the retained records in
// ascending timestamp order and the name of the first chat encountered.
func (p *Parser) Parse(raw []byte) ([]Record, string, error) {
	var export rawExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, "", &core.FormatError{Reason: "invalid JSON: " + err.Error()}
	}

	ring := newRecordRing(p.maxMessages)
	chatName := ""

	switch {
	case export.Chats != nil && export.Chats.List != nil:
		for _, chat := range export.Chats.List {
			p.collectChat(chat, ring)
			if chatName == "" {
				chatName = displayChatName(chat.Name)
			}
		}
	case export.LeftChats != nil && export.LeftChats.List != nil:
		for _, chat := range export.LeftChats.List {
			p.collectChat(chat, ring)
			if chatName == "" {
				chatName = displayChatName(chat.Name)
			}
		}
	case export.Messages != nil:
		p.collectChat(export.rawChat, ring)
		chatName = displayChatName(export.Name)
	default:
		return nil, "", &core.FormatError{Reason: "unrecognized chat history structure"}
	}

	records := ring.items()
	if len(records) == 0 {
		return nil, "", &core.FormatError{Reason: "no messages found in the chat history"}
	}

	sortByTimestamp(records)

	return records, chatName, nil
}

func (p *Parser) collectChat(chat rawChat, ring *recordRing) {
	name := displayChatName(chat.Name)
	for i := range chat.Messages {
		if rec, ok := parseMessage(&chat.Messages[i], name); ok {
			ring.push(rec)
		}
	}
}

// parseMessage normalizes one raw message. Service/system entries (type
// other than "message") are dropped.
func parseMessage(m *rawMessage, chatName string) (Record, bool) {
	if m.Type != "message" {
		return Record{}, false
	}

	rec := Record{
		MsgID:         m.ID,
		Sender:        m.From,
		SenderID:      m.FromID,
		ReplyTo:       m.ReplyTo,
		Date:          m.Date,
		ForwardedFrom: m.ForwardedFrom,
		ChatName:      chatName,
		Kind:          KindText,
	}
	if ts, err := strconv.ParseInt(strings.TrimSpace(m.DateUnix), 10, 64); err == nil {
		rec.DateUnix = ts
	} else {
		rec.DateUnix = -1
	}

	content := ""

	// Content kind, in priority order: explicit media type, file, photo,
	// poll (voter count), location ("lat,lon"), plain text.
	switch {
	case m.MediaType != "":
		rec.Kind = m.MediaType
		if m.File != nil {
			content = *m.File
		} else {
			content = "?"
		}
	case m.File != nil:
		rec.Kind = KindFile
		content = *m.File
	case m.Photo != nil:
		rec.Kind = KindPhoto
		content = *m.Photo
	case m.Poll != nil:
		rec.Kind = KindPoll
		content = strconv.Itoa(m.Poll.TotalVoters)
	case m.Location != nil:
		rec.Kind = KindLocation
		content = formatCoord(m.Location.Latitude) + "," + formatCoord(m.Location.Longitude)
	default:
		content = flattenText(m.Text, &rec)
	}

	rec.Content = strings.ReplaceAll(content, "\n", " ")
	return rec, true
}

// flattenText concatenates a rich-text value (plain string, or a list of
// strings interleaved with typed spans) into one string, setting record
// flags as a side effect of span types.
func flattenText(raw json.RawMessage, rec *Record) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var b strings.Builder
	for _, part := range parts {
		var s string
		if err := json.Unmarshal(part, &s); err == nil {
			b.WriteString(s)
			continue
		}

		var span struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(part, &span); err != nil {
			continue
		}
		switch {
		case span.Type == "link":
			rec.Kind = KindLink
		case mentionSpanTypes[span.Type]:
			rec.HasMention = true
		case span.Type == "email":
			rec.HasEmail = true
		case span.Type == "phone":
			rec.HasPhone = true
		case span.Type == "hashtag":
			rec.HasHashtag = true
		case span.Type == "bot_command":
			rec.IsBotCommand = true
		}
		b.WriteString(span.Text)
	}
	return b.String()
}

// sortByTimestamp orders records by epoch ascending, stably, so records
// sharing a timestamp keep their original relative order. If any record
// carries an unusable timestamp the export is left in collection order.
func sortByTimestamp(records []Record) {
	for i := range records {
		if records[i].DateUnix < 0 {
			return
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].DateUnix < records[j].DateUnix
	})
}

func displayChatName(name string) string {
	if name == "" {
		return "Unknown Chat"
	}
	return name
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// recordRing keeps the most recent capacity records; the oldest are
// evicted first. Bounds memory on arbitrarily large exports.
type recordRing struct {
	buf   []Record
	head  int
	count int
}

func newRecordRing(capacity int) *recordRing {
	return &recordRing{buf: make([]Record, capacity)}
}

func (r *recordRing) push(rec Record) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = rec
		r.count++
		return
	}
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)
}

func (r *recordRing) items() []Record {
	out := make([]Record, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
