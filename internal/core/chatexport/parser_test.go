package chatexport

import (
	"errors"
	"testing"

	"github.com/saved-ai/engine/internal/core"
)

func TestParseSingleChat(t *testing.T) {
	raw := []byte(`{
		"name": "Study Group",
		"messages": [
			{"type": "message", "id": 1, "from": "Alice", "from_id": "user1", "date": "2024-01-01T10:00:00", "date_unixtime": "1704103200", "text": "hello"},
			{"type": "service", "id": 2, "date": "2024-01-01T10:01:00", "date_unixtime": "1704103260", "action": "pin_message"},
			{"type": "message", "id": 3, "from": "Bob", "from_id": "user2", "date": "2024-01-01T10:02:00", "date_unixtime": "1704103320", "text": "hi there"},
			{"type": "message", "id": 4, "from": "Alice", "from_id": "user1", "date": "2024-01-01T10:03:00", "date_unixtime": "1704103380", "text": "bye"}
		]
	}`)

	records, chatName, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if chatName != "Study Group" {
		t.Errorf("chat name = %q, want %q", chatName, "Study Group")
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (service entry must be dropped)", len(records))
	}
	for _, rec := range records {
		if rec.Kind != KindText {
			t.Errorf("record %d kind = %q, want %q", rec.MsgID, rec.Kind, KindText)
		}
		if rec.ChatName != "Study Group" {
			t.Errorf("record %d chat name = %q", rec.MsgID, rec.ChatName)
		}
	}
}

func TestParseChatsList(t *testing.T) {
	raw := []byte(`{
		"chats": {
			"list": [
				{"name": "First", "messages": [
					{"type": "message", "id": 10, "from": "A", "date_unixtime": "200", "text": "later"}
				]},
				{"name": "Second", "messages": [
					{"type": "message", "id": 20, "from": "B", "date_unixtime": "100", "text": "earlier"}
				]}
			]
		}
	}`)

	records, chatName, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if chatName != "First" {
		t.Errorf("chat name = %q, want first chat's name", chatName)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Sorted ascending by epoch across chats.
	if records[0].MsgID != 20 || records[1].MsgID != 10 {
		t.Errorf("records not sorted by timestamp: got ids %d, %d", records[0].MsgID, records[1].MsgID)
	}
	if records[0].ChatName != "Second" {
		t.Errorf("per-record provenance lost: chat = %q", records[0].ChatName)
	}
}

func TestParseKinds(t *testing.T) {
	raw := []byte(`{
		"name": "Media",
		"messages": [
			{"type": "message", "id": 1, "date_unixtime": "1", "media_type": "voice_message", "file": "voice.ogg"},
			{"type": "message", "id": 2, "date_unixtime": "2", "file": "doc.pdf"},
			{"type": "message", "id": 3, "date_unixtime": "3", "photo": "photo.jpg"},
			{"type": "message", "id": 4, "date_unixtime": "4", "poll": {"total_voters": 7}},
			{"type": "message", "id": 5, "date_unixtime": "5", "location_information": {"latitude": 55.75, "longitude": 37.62}},
			{"type": "message", "id": 6, "date_unixtime": "6", "text": "plain"}
		]
	}`)

	records, _, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []struct {
		kind    string
		content string
	}{
		{"voice_message", "voice.ogg"},
		{KindFile, "doc.pdf"},
		{KindPhoto, "photo.jpg"},
		{KindPoll, "7"},
		{KindLocation, "55.75,37.62"},
		{KindText, "plain"},
	}
	for i, w := range want {
		if records[i].Kind != w.kind {
			t.Errorf("record %d kind = %q, want %q", i, records[i].Kind, w.kind)
		}
		if records[i].Content != w.content {
			t.Errorf("record %d content = %q, want %q", i, records[i].Content, w.content)
		}
	}
}

func TestParseRichTextSpans(t *testing.T) {
	raw := []byte(`{
		"name": "Spans",
		"messages": [
			{"type": "message", "id": 1, "date_unixtime": "1", "text": [
				"see ",
				{"type": "link", "text": "https://example.com"},
				" and ping ",
				{"type": "mention", "text": "@alice"},
				{"type": "email", "text": "a@b.c"},
				{"type": "phone", "text": "+123"},
				{"type": "hashtag", "text": "#go"},
				{"type": "bot_command", "text": "/start"}
			]}
		]
	}`)

	records, _, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	rec := records[0]
	if rec.Kind != KindLink {
		t.Errorf("kind = %q, want %q after link span", rec.Kind, KindLink)
	}
	wantContent := "see https://example.com and ping @alicea@b.c+123#go/start"
	if rec.Content != wantContent {
		t.Errorf("content = %q, want %q", rec.Content, wantContent)
	}
	if !rec.HasMention || !rec.HasEmail || !rec.HasPhone || !rec.HasHashtag || !rec.IsBotCommand {
		t.Errorf("span flags not all set: %+v", rec)
	}
}

func TestParseNormalizesNewlines(t *testing.T) {
	raw := []byte(`{"name": "NL", "messages": [
		{"type": "message", "id": 1, "date_unixtime": "1", "text": "line one\nline two"}
	]}`)

	records, _, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if records[0].Content != "line one line two" {
		t.Errorf("content = %q", records[0].Content)
	}
}

func TestParseServiceOnlyIsFormatError(t *testing.T) {
	raw := []byte(`{"name": "Empty", "messages": [
		{"type": "service", "id": 1, "action": "create_group"}
	]}`)

	_, _, err := NewParser(0).Parse(raw)
	var fe *core.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *core.FormatError", err)
	}
}

func TestParseUnrecognizedShape(t *testing.T) {
	for _, raw := range []string{`{"foo": "bar"}`, `not json`} {
		_, _, err := NewParser(0).Parse([]byte(raw))
		var fe *core.FormatError
		if !errors.As(err, &fe) {
			t.Errorf("Parse(%q) err = %v, want *core.FormatError", raw, err)
		}
	}
}

func TestParseRetainsMostRecent(t *testing.T) {
	raw := []byte(`{"name": "Ring", "messages": [
		{"type": "message", "id": 1, "date_unixtime": "1", "text": "a"},
		{"type": "message", "id": 2, "date_unixtime": "2", "text": "b"},
		{"type": "message", "id": 3, "date_unixtime": "3", "text": "c"},
		{"type": "message", "id": 4, "date_unixtime": "4", "text": "d"}
	]}`)

	records, _, err := NewParser(2).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].MsgID != 3 || records[1].MsgID != 4 {
		t.Errorf("oldest records not evicted first: got ids %d, %d", records[0].MsgID, records[1].MsgID)
	}
}

func TestParseUnsortableTimestampsKeepOrder(t *testing.T) {
	raw := []byte(`{"name": "Unsorted", "messages": [
		{"type": "message", "id": 1, "date_unixtime": "300", "text": "a"},
		{"type": "message", "id": 2, "text": "b"},
		{"type": "message", "id": 3, "date_unixtime": "100", "text": "c"}
	]}`)

	records, _, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if records[0].MsgID != 1 || records[1].MsgID != 2 || records[2].MsgID != 3 {
		t.Errorf("collection order not preserved on unsortable input: %v", []int64{records[0].MsgID, records[1].MsgID, records[2].MsgID})
	}
}

func TestParseStableSortKeepsTiedOrder(t *testing.T) {
	raw := []byte(`{"name": "Ties", "messages": [
		{"type": "message", "id": 5, "date_unixtime": "100", "text": "first"},
		{"type": "message", "id": 6, "date_unixtime": "100", "text": "second"}
	]}`)

	records, _, err := NewParser(0).Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if records[0].MsgID != 5 || records[1].MsgID != 6 {
		t.Errorf("same-timestamp records reordered: got ids %d, %d", records[0].MsgID, records[1].MsgID)
	}
}
