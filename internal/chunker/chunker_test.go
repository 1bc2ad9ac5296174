package chunker

import (
	"strings"
	"testing"
)

// buildSectionedDoc produces a document of exactly 6000 runes with section
// headings starting at offsets 500, 2800 and 4900.
func buildSectionedDoc(t *testing.T) string {
	t.Helper()
	var b strings.Builder

	pad := func(target int, filler rune) {
		n := target - b.Len()
		if n < 1 {
			t.Fatalf("padding underflow at target %d", target)
		}
		b.WriteString(strings.Repeat(string(filler), n-1))
		b.WriteByte('\n')
	}

	pad(500, 'x')
	b.WriteString("## Section Alpha\n")
	pad(2800, 'y')
	b.WriteString("## Section Beta\n")
	pad(4900, 'z')
	b.WriteString("## Section Gamma\n")
	pad(6000, 'w')

	doc := b.String()
	if got := len([]rune(doc)); got != 6000 {
		t.Fatalf("fixture size = %d, want 6000", got)
	}
	return doc
}

func TestChunk_SectionBoundariesPreferred(t *testing.T) {
	doc := buildSectionedDoc(t)

	chunks := New().Chunk(doc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantEnds := []int{2800, 4900, 6000}
	wantStarts := []int{0, 2800, 4900}
	for i, ch := range chunks {
		if ch.Meta.StartChar != wantStarts[i] {
			t.Errorf("chunk %d start = %d, want %d", i, ch.Meta.StartChar, wantStarts[i])
		}
		if ch.Meta.EndChar != wantEnds[i] {
			t.Errorf("chunk %d end = %d, want %d", i, ch.Meta.EndChar, wantEnds[i])
		}
	}

	// Chunks starting at a heading carry it as their section header.
	if chunks[1].Meta.SectionHeader != "## Section Beta" || !chunks[1].Meta.HasSection {
		t.Errorf("chunk 1 section = %q, want heading", chunks[1].Meta.SectionHeader)
	}
	if chunks[2].Meta.SectionHeader != "## Section Gamma" {
		t.Errorf("chunk 2 section = %q, want heading", chunks[2].Meta.SectionHeader)
	}
	// The first chunk's nearest heading sits past the section window.
	if chunks[0].Meta.HasSection {
		t.Errorf("chunk 0 unexpectedly has section %q", chunks[0].Meta.SectionHeader)
	}
}

func TestChunk_CoversWholeText(t *testing.T) {
	doc := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 110) // ~5060 runes
	total := len([]rune(doc))

	chunks := New().Chunk(doc)
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	if chunks[0].Meta.StartChar != 0 {
		t.Errorf("first chunk starts at %d, want 0", chunks[0].Meta.StartChar)
	}
	if last := chunks[len(chunks)-1]; last.Meta.EndChar != total {
		t.Errorf("last chunk ends at %d, want %d", last.Meta.EndChar, total)
	}
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		if cur.Meta.StartChar > prev.Meta.EndChar {
			t.Errorf("gap between chunk %d (end %d) and chunk %d (start %d)",
				i-1, prev.Meta.EndChar, i, cur.Meta.StartChar)
		}
		if overlap := prev.Meta.EndChar - cur.Meta.StartChar; overlap > 350 {
			t.Errorf("overlap between chunks %d and %d is %d, want <= 350", i-1, i, overlap)
		}
	}
	for i, ch := range chunks {
		if ch.Meta.Index != i {
			t.Errorf("chunk %d has Index %d", i, ch.Meta.Index)
		}
		if ch.Meta.TotalDocSize != total {
			t.Errorf("chunk %d TotalDocSize = %d, want %d", i, ch.Meta.TotalDocSize, total)
		}
	}
}

func TestChunk_SentenceBreakFallback(t *testing.T) {
	doc := strings.Repeat("Policies must be reviewed annually by the compliance office. ", 20) // ~1240 runes

	chunks := New().Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}
	// No headings in this text, so cuts land on sentence terminators.
	if !strings.HasSuffix(chunks[0].Text, ".") {
		t.Errorf("expected first chunk to end at a sentence break, got %q", chunks[0].Text[len(chunks[0].Text)-20:])
	}
}

func TestChunk_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t  \n"} {
		if got := New().Chunk(text); got != nil {
			t.Errorf("Chunk(%q) = %d chunks, want none", text, len(got))
		}
	}
}

func TestChunk_ShortDocumentSingleChunk(t *testing.T) {
	doc := "A short policy statement that fits in one chunk."

	chunks := New().Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != doc {
		t.Errorf("chunk text = %q, want full document", chunks[0].Text)
	}
	if chunks[0].Meta.EndChar != len([]rune(doc)) {
		t.Errorf("chunk end = %d, want %d", chunks[0].Meta.EndChar, len([]rune(doc)))
	}
}

func TestChunk_SizeRuleSelection(t *testing.T) {
	// ~1500 runes falls into the <=2000 rule: size 600, overlap <=80.
	doc := strings.Repeat("Each employee must complete onboarding training. ", 30)

	chunks := New().Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for 600-rune windows, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if n := ch.Meta.EndChar - ch.Meta.StartChar; n > 600 {
			t.Errorf("chunk %d spans %d runes, want <= 600 for a small document", i, n)
		}
	}
	for i := 1; i < len(chunks); i++ {
		if overlap := chunks[i-1].Meta.EndChar - chunks[i].Meta.StartChar; overlap > 80 {
			t.Errorf("overlap %d exceeds 80 for the small-document rule", overlap)
		}
	}
}

func TestChunk_OverlapClampedToHalfSize(t *testing.T) {
	c := New(WithSizeRules([]SizeRule{{MaxChars: 0, Size: 100, Overlap: 90}}))
	doc := strings.Repeat("word and more text here. ", 20) // 500 runes

	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if overlap := chunks[i-1].Meta.EndChar - chunks[i].Meta.StartChar; overlap > 50 {
			t.Errorf("overlap %d exceeds half the chunk size", overlap)
		}
	}
}

func TestChunk_PathologicalRulesTerminate(t *testing.T) {
	// Overlap larger than the chunk size must not stall the scan.
	c := New(WithSizeRules([]SizeRule{{MaxChars: 0, Size: 1, Overlap: 5}}))

	chunks := c.Chunk("abcdefghij")
	if len(chunks) == 0 {
		t.Fatal("expected chunks from non-empty input")
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Meta.EndChar <= chunks[i-1].Meta.EndChar {
			t.Fatalf("chunk ends not strictly increasing at %d", i)
		}
	}
	if last := chunks[len(chunks)-1]; last.Meta.EndChar != 10 {
		t.Errorf("last chunk ends at %d, want 10", last.Meta.EndChar)
	}
}

func TestChunk_RestartsAtHeadingInOverlap(t *testing.T) {
	// Heading lands inside the overlap region of the first cut, so the next
	// chunk must begin exactly at the heading.
	var b strings.Builder
	b.WriteString(strings.Repeat("a", 549))
	b.WriteByte('\n')
	b.WriteString("## Terms\n")
	b.WriteString(strings.Repeat("b", 600))
	doc := b.String()

	c := New(WithSizeRules([]SizeRule{{MaxChars: 0, Size: 600, Overlap: 100}}))
	chunks := c.Chunk(doc)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	var found bool
	for _, ch := range chunks[1:] {
		if ch.Meta.StartChar == 550 {
			found = true
			if ch.Meta.SectionHeader != "## Terms" {
				t.Errorf("chunk at heading has section %q", ch.Meta.SectionHeader)
			}
		}
	}
	if !found {
		starts := make([]int, 0, len(chunks))
		for _, ch := range chunks {
			starts = append(starts, ch.Meta.StartChar)
		}
		t.Errorf("no chunk starts at the heading offset 550, starts: %v", starts)
	}
}
