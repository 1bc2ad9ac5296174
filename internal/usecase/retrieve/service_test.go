package retrieve

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index"
)

// --- Mocks ---

type mockSearcher struct {
	hits   []index.Hit
	err    error
	gotK   int
	filter *domain.AccessFilter
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, k int, filter *domain.AccessFilter) ([]index.Hit, error) {
	m.gotK = k
	m.filter = filter
	return m.hits, m.err
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}, nil
}

type fixedScorer struct {
	scores []float64
}

func (f *fixedScorer) Scores(_ string, candidates []string) []float64 {
	if f.scores != nil {
		return f.scores
	}
	return make([]float64, len(candidates))
}

func makeHit(text string, distance float64) index.Hit {
	return index.Hit{
		Record:   domain.Record{DocumentID: "doc-1", Text: text},
		Distance: distance,
	}
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

// --- Tests ---

func TestRetrieve_FusionWeights(t *testing.T) {
	// Distances engineered so the normalized vector similarities come out as
	// [1.0, 0.9, 0.0]: similarity 1/(1+d) gives [1.0, 0.95, 0.5], and
	// min-max over that list lands the middle candidate at 0.9.
	searcher := &mockSearcher{hits: []index.Hit{
		makeHit("first", 0),
		makeHit("second", 1/0.95-1),
		makeHit("third", 1),
	}}
	lexical := &fixedScorer{scores: []float64{1.0, 0.1, 0.0}}

	svc := New(searcher, &mockEmbedder{}, lexical, zap.NewNop())

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !approx(results[0].Score, 1.0) {
		t.Errorf("top score = %v, want 1.0", results[0].Score)
	}
	// 0.7*0.9 + 0.3*0.1 = 0.66
	if !approx(results[1].Score, 0.66) {
		t.Errorf("middle score = %v, want 0.66", results[1].Score)
	}
	if !approx(results[1].VectorScore, 0.9) || !approx(results[1].LexicalScore, 0.1) {
		t.Errorf("middle component scores = %v / %v, want 0.9 / 0.1",
			results[1].VectorScore, results[1].LexicalScore)
	}
}

func TestRetrieve_MinScoreDrops(t *testing.T) {
	searcher := &mockSearcher{hits: []index.Hit{
		makeHit("first", 0),
		makeHit("second", 1/0.95-1),
		makeHit("third", 1),
	}}
	lexical := &fixedScorer{scores: []float64{1.0, 0.1, 0.0}}

	svc := New(searcher, &mockEmbedder{}, lexical, zap.NewNop())

	// The 0.66 candidate falls below min_score 0.7.
	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 3, MinScore: 0.7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Record.Text != "first" {
		t.Errorf("surviving candidate = %q, want first", results[0].Record.Text)
	}
}

func TestRetrieve_Oversampling(t *testing.T) {
	searcher := &mockSearcher{}

	svc := New(searcher, &mockEmbedder{}, &fixedScorer{}, zap.NewNop())

	if _, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.gotK != 14 {
		t.Errorf("search k = %d, want 14", searcher.gotK)
	}
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	svc := New(&mockSearcher{}, &mockEmbedder{}, &fixedScorer{}, zap.NewNop())

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestRetrieve_NoUsableText(t *testing.T) {
	searcher := &mockSearcher{hits: []index.Hit{
		makeHit("", 0.1),
		makeHit("", 0.2),
	}}

	svc := New(searcher, &mockEmbedder{}, &fixedScorer{}, zap.NewNop())

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestRetrieve_EmbedErrorPropagates(t *testing.T) {
	embedErr := errors.New("provider down")
	svc := New(&mockSearcher{}, &mockEmbedder{err: embedErr}, &fixedScorer{}, zap.NewNop())

	if _, err := svc.Retrieve(context.Background(), Request{Query: "q"}); !errors.Is(err, embedErr) {
		t.Fatalf("error = %v, want wrapped provider error", err)
	}
}

func TestRetrieve_SearchErrorPropagates(t *testing.T) {
	searchErr := errors.New("index unavailable")
	svc := New(&mockSearcher{err: searchErr}, &mockEmbedder{}, &fixedScorer{}, zap.NewNop())

	if _, err := svc.Retrieve(context.Background(), Request{Query: "q"}); !errors.Is(err, searchErr) {
		t.Fatalf("error = %v, want wrapped search error", err)
	}
}

func TestRetrieve_IdenticalScoresNormalizeToZero(t *testing.T) {
	searcher := &mockSearcher{hits: []index.Hit{
		makeHit("a", 0.5),
		makeHit("b", 0.5),
		makeHit("c", 0.5),
	}}
	lexical := &fixedScorer{scores: []float64{2.0, 2.0, 2.0}}

	svc := New(searcher, &mockEmbedder{}, lexical, zap.NewNop())

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.Score != 0 || r.VectorScore != 0 || r.LexicalScore != 0 {
			t.Errorf("result %d scores = %v/%v/%v, want all zero", i, r.Score, r.VectorScore, r.LexicalScore)
		}
	}
}

func TestRetrieve_ScoreBounds(t *testing.T) {
	searcher := &mockSearcher{hits: []index.Hit{
		makeHit("alpha", 0),
		makeHit("beta", 0.3),
		makeHit("gamma", 2.5),
		makeHit("delta", 9),
	}}
	lexical := &fixedScorer{scores: []float64{0, 4.2, 1.1, 0.7}}

	svc := New(searcher, &mockEmbedder{}, lexical, zap.NewNop())

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		for name, v := range map[string]float64{"score": r.Score, "vector": r.VectorScore, "lexical": r.LexicalScore} {
			if v < 0 || v > 1 {
				t.Errorf("result %d %s score %v out of [0,1]", i, name, v)
			}
		}
	}
}

func TestRetrieve_TruncatesToTopK(t *testing.T) {
	hits := make([]index.Hit, 8)
	scores := make([]float64, 8)
	for i := range hits {
		hits[i] = makeHit("text", float64(i)*0.1)
		scores[i] = float64(8 - i)
	}
	searcher := &mockSearcher{hits: hits}

	svc := New(searcher, &mockEmbedder{}, &fixedScorer{scores: scores}, zap.NewNop())

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("results = %d, want 3", len(results))
	}
}

func TestRetrieve_FilterPushedDown(t *testing.T) {
	searcher := &mockSearcher{}
	svc := New(searcher, &mockEmbedder{}, &fixedScorer{}, zap.NewNop())

	filter := &domain.AccessFilter{Visibilities: []string{"public"}}
	if _, err := svc.Retrieve(context.Background(), Request{Query: "q", Filter: filter}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.filter != filter {
		t.Error("expected access filter pushed down to the index")
	}
}

func TestRetrieve_CustomWeights(t *testing.T) {
	searcher := &mockSearcher{hits: []index.Hit{
		makeHit("first", 0),
		makeHit("second", 1),
	}}
	lexical := &fixedScorer{scores: []float64{0, 1}}

	svc := New(searcher, &mockEmbedder{}, lexical, zap.NewNop(), WithWeights(0.5, 0.5))

	results, err := svc.Retrieve(context.Background(), Request{Query: "q", TopK: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Both candidates score 0.5: one wins each signal outright.
	for i, r := range results {
		if !approx(r.Score, 0.5) {
			t.Errorf("result %d score = %v, want 0.5", i, r.Score)
		}
	}
}

func TestMinMaxNormalize(t *testing.T) {
	got := minMaxNormalize([]float64{2, 4, 6})
	want := []float64{0, 0.5, 1}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("norm[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := minMaxNormalize(nil); len(got) != 0 {
		t.Errorf("norm(nil) = %v, want empty", got)
	}
}
