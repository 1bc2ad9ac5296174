// Package chunker splits raw document text into overlapping, bounded-size
// passages, preferring to break at detected section boundaries so that a
// clause or resume entry is not split across two chunks.
package chunker

import (
	"strings"

	"github.com/docsift/docsift/internal/domain"
)

// sectionWindow is how many runes into a chunk a heading may sit and still
// count as the chunk's section header.
const sectionWindow = 200

// maxStretchNum/maxStretchDen bound how far past the ideal end a cut may
// stretch to reach the next section boundary (1.6x the target size).
const (
	maxStretchNum = 8
	maxStretchDen = 5
)

// SizeRule maps documents up to MaxChars runes to a chunk size and overlap.
// A zero MaxChars marks the unbounded last entry.
type SizeRule struct {
	MaxChars int `yaml:"max_chars"`
	Size     int `yaml:"size"`
	Overlap  int `yaml:"overlap"`
}

// DefaultSizeRules is the monotone size table: smaller documents get smaller
// chunks and smaller overlap.
func DefaultSizeRules() []SizeRule {
	return []SizeRule{
		{MaxChars: 2_000, Size: 600, Overlap: 80},
		{MaxChars: 10_000, Size: 1_800, Overlap: 350},
		{MaxChars: 40_000, Size: 2_400, Overlap: 400},
		{MaxChars: 0, Size: 3_000, Overlap: 450},
	}
}

// Chunker is a single-pass, section-aware text splitter. It never errors on
// degenerate input: empty or whitespace-only text yields no chunks.
type Chunker struct {
	rules    []SizeRule
	detector *Detector
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSizeRules overrides the size table.
func WithSizeRules(rules []SizeRule) Option {
	return func(c *Chunker) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// WithPatterns overrides the heading patterns.
func WithPatterns(patterns []Pattern) Option {
	return func(c *Chunker) { c.detector = NewDetector(patterns...) }
}

// New creates a chunker with the default size table and heading patterns.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		rules:    DefaultSizeRules(),
		detector: NewDetector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text into passages. The returned chunks' [StartChar, EndChar)
// ranges cover the whole text with no gaps; consecutive chunks overlap by up
// to the configured amount.
func (c *Chunker) Chunk(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)

	size, overlap := c.sizeFor(total)
	headings := c.detector.Detect(text)

	var chunks []domain.Chunk
	start := 0
	for start < total {
		end := c.cutAt(runes, headings, start, size)

		if trimmed := strings.TrimSpace(string(runes[start:end])); trimmed != "" {
			meta := domain.ChunkMeta{
				Index:        len(chunks),
				Size:         len([]rune(trimmed)),
				TotalDocSize: total,
				StartChar:    start,
				EndChar:      end,
			}
			if h, ok := sectionFor(headings, start, end); ok {
				meta.SectionHeader = h.Text
				meta.HasSection = true
			}
			chunks = append(chunks, domain.Chunk{Text: trimmed, Meta: meta})
		}

		if end >= total {
			break
		}

		next := end - overlap
		// Never re-enter a section mid-way after overlap: if a heading sits
		// inside the overlap region, the next chunk starts at the heading.
		if h, ok := headingInRange(headings, end-overlap, end); ok {
			next = h
		}
		// Forced progress: pathological configurations must still terminate.
		if next <= start {
			next = end
		}
		if next <= start {
			break
		}
		start = next
	}
	return chunks
}

// sizeFor selects the (size, overlap) pair for a document of n runes and
// clamps overlap to at most half the size.
func (c *Chunker) sizeFor(n int) (size, overlap int) {
	rule := c.rules[len(c.rules)-1]
	for _, r := range c.rules {
		if r.MaxChars > 0 && n <= r.MaxChars {
			rule = r
			break
		}
	}
	size, overlap = rule.Size, rule.Overlap
	if size <= 0 {
		size = 1
	}
	if overlap > size/2 {
		overlap = size / 2
	}
	if overlap < 0 {
		overlap = 0
	}
	return size, overlap
}

// cutAt chooses the end offset for the chunk starting at start, in priority
// order: a section boundary past the 50% mark of the window (stretching up to
// 1.6x the target size to reach one), then the last sentence break past the
// 70% mark, then a hard cut at the ideal end.
func (c *Chunker) cutAt(runes []rune, headings []Heading, start, size int) int {
	total := len(runes)
	idealEnd := start + size
	if idealEnd >= total {
		return total
	}

	if h, ok := headingCut(headings, start, size, total, idealEnd); ok {
		return h
	}
	if b, ok := sentenceCut(runes, start, idealEnd); ok {
		return b
	}
	return idealEnd
}

// headingCut picks the section boundary nearest the ideal end among headings
// past the window's 50% mark, looking at most maxStretch runes ahead.
func headingCut(headings []Heading, start, size, total, idealEnd int) (int, bool) {
	lo := start + size/2
	hi := start + size*maxStretchNum/maxStretchDen
	if hi >= total {
		hi = total - 1
	}

	best, found := 0, false
	for _, h := range headings {
		if h.Offset <= start || h.Offset < lo {
			continue
		}
		if h.Offset > hi {
			break
		}
		if !found || abs(h.Offset-idealEnd) < abs(best-idealEnd) {
			best, found = h.Offset, true
		}
	}
	return best, found
}

// sentenceCut searches backward from the ideal end for the last sentence
// terminator or line break; the cut is taken only past 70% of the window.
func sentenceCut(runes []rune, start, idealEnd int) (int, bool) {
	threshold := start + (idealEnd-start)*7/10
	for i := idealEnd - 1; i > threshold; i-- {
		switch runes[i] {
		case '\n':
			return i + 1, true
		case '.', '!', '?':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// sectionFor finds the first heading inside the chunk's first sectionWindow
// runes.
func sectionFor(headings []Heading, start, end int) (Heading, bool) {
	limit := start + sectionWindow
	if end < limit {
		limit = end
	}
	for _, h := range headings {
		if h.Offset >= start && h.Offset < limit {
			return h, true
		}
		if h.Offset >= limit {
			break
		}
	}
	return Heading{}, false
}

// headingInRange returns the first heading offset in (lo, hi].
func headingInRange(headings []Heading, lo, hi int) (int, bool) {
	for _, h := range headings {
		if h.Offset > lo && h.Offset <= hi {
			return h.Offset, true
		}
		if h.Offset > hi {
			break
		}
	}
	return 0, false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
