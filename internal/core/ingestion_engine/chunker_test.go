package ingestion_engine

import (
	"strings"
	"testing"
)

// reconstruct undoes the chunking: first chunk whole, every later chunk
// minus its leading overlap.
func reconstruct(chunks []string, overlap int) string {
	var b strings.Builder
	for i, ch := range chunks {
		runes := []rune(ch)
		if i == 0 {
			b.WriteString(ch)
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}

func repeatText(n int) string {
	const alphabet = "abcdefghij"
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(alphabet)
	}
	return b.String()[:n]
}

func TestSplitRoundTrip(t *testing.T) {
	c := NewChunker(1024, 256)

	for _, n := range []int{1, 255, 256, 768, 1023, 1024, 1025, 1792, 2000, 3000, 10000} {
		text := repeatText(n)
		chunks := c.Split(text)
		if got := reconstruct(chunks, c.Overlap()); got != text {
			t.Errorf("len %d: round trip lost characters (got %d runes, want %d)", n, len(got), len(text))
		}
		for i, ch := range chunks[:len(chunks)-1] {
			if len([]rune(ch)) != c.Size() {
				t.Errorf("len %d: chunk %d has %d runes, want %d", n, i, len([]rune(ch)), c.Size())
			}
		}
	}
}

func TestSplitTwoThousandRunes(t *testing.T) {
	c := NewChunker(1024, 256)
	chunks := c.Split(repeatText(2000))

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if n := len([]rune(chunks[0])); n != 1024 {
		t.Errorf("first chunk %d runes, want 1024", n)
	}
	// 2000 - (1024 - 256): the second chunk restarts one overlap back.
	if n := len([]rune(chunks[1])); n != 1232 {
		t.Errorf("second chunk %d runes, want 1232", n)
	}
}

func TestSplitOverlapIsExact(t *testing.T) {
	c := NewChunker(100, 20)
	runes := make([]rune, 500)
	for i := range runes {
		runes[i] = rune('!' + i%90)
	}
	chunks := c.Split(string(runes))

	for i := 0; i+1 < len(chunks); i++ {
		cur := []rune(chunks[i])
		next := []rune(chunks[i+1])
		tail := string(cur[len(cur)-c.Overlap():])
		head := string(next[:c.Overlap()])
		if tail != head {
			t.Errorf("chunks %d/%d overlap mismatch: %q vs %q", i, i+1, tail, head)
		}
	}
}

func TestSplitShortAndEmpty(t *testing.T) {
	c := NewChunker(1024, 256)

	if got := c.Split(""); got != nil {
		t.Errorf("Split(\"\") = %v, want nil", got)
	}
	short := "just a short note"
	chunks := c.Split(short)
	if len(chunks) != 1 || chunks[0] != short {
		t.Errorf("Split(short) = %v, want the text itself", chunks)
	}
}

func TestSplitMultibyte(t *testing.T) {
	c := NewChunker(10, 2)
	text := strings.Repeat("日本語テキスト", 10)
	chunks := c.Split(text)
	if got := reconstruct(chunks, c.Overlap()); got != text {
		t.Errorf("multibyte round trip failed")
	}
}
