package chunker

import "testing"

func TestDefaultPatterns_Match(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"# Title", true},
		{"###### Deep heading", true},
		{"##", false},
		{"#nospace", false},
		{"Section 3 Overview", true},
		{"   Chapter IV", true},
		{"ARTICLE 12 Definitions", true},
		{"Appendix B", false}, // letter designators are not section numbers
		{"1. Introduction", true},
		{"2.3.1) Scope of work", true},
		{"42 is the answer", false},
		{"EDUCATION", true},
		{"WORK EXPERIENCE:", true},
		{"Education", false},
		{"AB", false},
		{"plain paragraph text about policies", false},
	}

	d := NewDetector()
	for _, tt := range tests {
		if got := d.matches(tt.line); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestDetect_Offsets(t *testing.T) {
	text := "intro paragraph\n# First\nbody text here\n## Second\ntail"

	headings := NewDetector().Detect(text)
	if len(headings) != 2 {
		t.Fatalf("expected 2 headings, got %d: %+v", len(headings), headings)
	}
	if headings[0].Offset != 16 || headings[0].Text != "# First" {
		t.Errorf("first heading = %+v, want offset 16 %q", headings[0], "# First")
	}
	if headings[1].Offset != 39 || headings[1].Text != "## Second" {
		t.Errorf("second heading = %+v, want offset 39 %q", headings[1], "## Second")
	}
}

func TestDetect_RuneOffsets(t *testing.T) {
	// Multi-byte runes before a heading: offsets count runes, not bytes.
	text := "привет мир\n# Заголовок\n"

	headings := NewDetector().Detect(text)
	if len(headings) != 1 {
		t.Fatalf("expected 1 heading, got %d", len(headings))
	}
	if headings[0].Offset != 11 {
		t.Errorf("heading offset = %d, want 11 (rune offset)", headings[0].Offset)
	}
}

func TestDetect_TrailingCarriageReturn(t *testing.T) {
	headings := NewDetector().Detect("# Title\r\nbody\r\n")
	if len(headings) != 1 {
		t.Fatalf("expected 1 heading, got %d", len(headings))
	}
	if headings[0].Text != "# Title" {
		t.Errorf("heading text = %q, want %q", headings[0].Text, "# Title")
	}
}

func TestDetect_NoHeadings(t *testing.T) {
	if got := NewDetector().Detect("just some text\nacross two lines"); got != nil {
		t.Errorf("expected no headings, got %+v", got)
	}
}

func TestDetect_CustomPatterns(t *testing.T) {
	d := NewDetector(NewPattern("paragraph-mark", `^§\s*\d+`))

	headings := d.Detect("§ 12 Liability\n# Markdown ignored\n")
	if len(headings) != 1 {
		t.Fatalf("expected only the custom pattern to match, got %+v", headings)
	}
	if headings[0].Text != "§ 12 Liability" {
		t.Errorf("heading text = %q", headings[0].Text)
	}
}
