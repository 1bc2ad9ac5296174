package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Pattern matches a single line that opens a document section. Patterns are
// tried in order; the first match wins. New document conventions plug in as
// additional patterns without touching the chunking algorithm.
type Pattern struct {
	name string
	re   *regexp.Regexp
}

// NewPattern compiles a named heading pattern.
func NewPattern(name, expr string) Pattern {
	return Pattern{name: name, re: regexp.MustCompile(expr)}
}

// Name returns the pattern's identifier.
func (p Pattern) Name() string { return p.name }

// Match reports whether the line opens a section.
func (p Pattern) Match(line string) bool { return p.re.MatchString(line) }

// DefaultPatterns covers the conventions seen across policy documents and
// resume-like text: markdown headings, numbered sections, Chapter/Part/Section
// keywords, and ALL-CAPS header lines with or without a trailing colon.
func DefaultPatterns() []Pattern {
	return []Pattern{
		NewPattern("markdown", `^#{1,6}\s+\S`),
		NewPattern("keyword", `^\s{0,3}(?i:section|chapter|part|article|appendix|title)\s+(\d+|[IVXLC]+)\b`),
		NewPattern("numbered", `^\s{0,3}\d+(\.\d+)*[.)]\s+\S`),
		NewPattern("allcaps", `^[A-Z][A-Z0-9 ,&/'()-]{2,59}:?$`),
	}
}

// Heading is a detected section boundary: the rune offset of the line start
// and the trimmed heading text.
type Heading struct {
	Offset int
	Text   string
}

// Detector scans a document once, line by line, and records every heading.
type Detector struct {
	patterns []Pattern
}

// NewDetector creates a detector with the given patterns, or the defaults
// when none are supplied.
func NewDetector(patterns ...Pattern) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Detector{patterns: patterns}
}

// Detect returns all headings in text, ordered by offset. The scan is
// O(len(text)) and independent of chunk size.
func (d *Detector) Detect(text string) []Heading {
	var headings []Heading
	offset := 0 // rune offset of the current line start

	for len(text) > 0 {
		var line string
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			line, text = text, ""
		}

		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed != "" && d.matches(trimmed) {
			headings = append(headings, Heading{
				Offset: offset,
				Text:   strings.TrimSpace(trimmed),
			})
		}

		offset += utf8.RuneCountInString(line) + 1 // +1 for the newline
	}
	return headings
}

func (d *Detector) matches(line string) bool {
	for _, p := range d.patterns {
		if p.Match(line) {
			return true
		}
	}
	return false
}
