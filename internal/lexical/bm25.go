// Package lexical scores candidate texts against a query by term overlap.
// The corpus for scoring purposes is exactly the candidate set handed in,
// which keeps lexical scoring cheap and query-scoped.
package lexical

import (
	"math"
	"strings"
)

// BM25 free parameters, standard values.
const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// Scorer computes BM25 relevance scores over a candidate set.
type Scorer struct {
	k1 float64
	b  float64
}

// NewScorer creates a BM25 scorer with standard parameters.
func NewScorer() *Scorer {
	return &Scorer{k1: defaultK1, b: defaultB}
}

// Scores returns one non-negative score per candidate, aligned with the
// input order. Document frequencies are computed over the candidates only.
// An empty query or empty candidate set yields all-zero scores.
func (s *Scorer) Scores(query string, candidates []string) []float64 {
	scores := make([]float64, len(candidates))
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(candidates) == 0 {
		return scores
	}

	docs := make([]map[string]int, len(candidates))
	docLens := make([]int, len(candidates))
	totalLen := 0
	for i, c := range candidates {
		terms := tokenize(c)
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		docs[i] = freq
		docLens[i] = len(terms)
		totalLen += len(terms)
	}
	avgLen := float64(totalLen) / float64(len(candidates))
	if avgLen == 0 {
		return scores
	}

	// Document frequency per distinct query term.
	df := make(map[string]int, len(queryTerms))
	for _, t := range queryTerms {
		if _, seen := df[t]; seen {
			continue
		}
		n := 0
		for _, doc := range docs {
			if doc[t] > 0 {
				n++
			}
		}
		df[t] = n
	}

	n := float64(len(candidates))
	for i, doc := range docs {
		if docLens[i] == 0 {
			continue
		}
		norm := s.k1 * (1 - s.b + s.b*float64(docLens[i])/avgLen)
		var score float64
		for _, t := range queryTerms {
			tf := float64(doc[t])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			score += idf * tf * (s.k1 + 1) / (tf + norm)
		}
		scores[i] = score
	}
	return scores
}

// tokenize lower-cases and splits on whitespace. Intentionally simple: no
// stemming, no punctuation stripping beyond field splitting.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
