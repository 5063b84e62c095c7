package ingestion_engine

// Chunker splits normalized text into overlapping rune windows sized for
// embedding. Every chunk except the last is exactly Size runes long and
// shares exactly Overlap runes with its successor, so concatenating the
// chunks while dropping each successor's overlap reconstructs the
// original text with no loss.
type Chunker struct {
	size    int
	overlap int
}

const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 256
)

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split windows text into chunks. The final chunk absorbs the tail rather
// than emitting a fragment shorter than one window step, so it may run
// shorter or longer than the target size.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var out []string
	start := 0
	for len(runes)-start >= c.size+step {
		out = append(out, string(runes[start:start+c.size]))
		start += step
	}
	out = append(out, string(runes[start:]))
	return out
}

// Overlap reports the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Size reports the configured target chunk size in runes.
func (c *Chunker) Size() int { return c.size }
