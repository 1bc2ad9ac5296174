package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

// embeddingResponse mirrors the OpenAI-compatible API embedding response.
type embeddingResponse struct {
	Object string          `json:"object"`
	Data   []embeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type embeddingData struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingRequest struct {
	Input []string `json:"input"`
}

func writeEmbeddings(w http.ResponseWriter, tokens int, vecs ...embeddingData) {
	resp := embeddingResponse{Object: "list", Model: "test-model", Data: vecs}
	resp.Usage.PromptTokens = tokens
	resp.Usage.TotalTokens = tokens
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeAPIError(w http.ResponseWriter, status int, message, code string) {
	errObj := map[string]any{
		"message": message,
		"type":    "api_error",
	}
	if code != "" {
		errObj["code"] = code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": errObj})
}

func newTestEmbedder(serverURL string, dimensions int) *Embedder {
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		Model:      "test-model",
		Dimensions: dimensions,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		writeEmbeddings(w, 10, embeddingData{Object: "embedding", Embedding: expectedVec, Index: 0})
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 4)

	result, err := emb.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.PromptTokens != 10 || result.TotalTokens != 10 {
		t.Errorf("unexpected usage: prompt=%d total=%d", result.PromptTokens, result.TotalTokens)
	}
}

func TestEmbedder_Embed_PadsToDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, 5, embeddingData{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0})
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 6)

	result, err := emb.Embed(context.Background(), "short vector")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(result.Embedding) != 6 {
		t.Fatalf("expected vector padded to 6 dimensions, got %d", len(result.Embedding))
	}
	if result.Embedding[0] != 0.1 || result.Embedding[1] != 0.2 {
		t.Errorf("expected native values preserved, got %v", result.Embedding)
	}
	for i := 2; i < 6; i++ {
		if result.Embedding[i] != 0 {
			t.Errorf("expected zero padding at index %d, got %f", i, result.Embedding[i])
		}
	}
}

func TestEmbedder_Embed_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, 0)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 4)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider for empty response, got %v", err)
	}
}

func TestEmbedder_Embed_QuotaExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests, "you have run out of credits", "insufficient_quota")
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 4)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded for insufficient_quota, got %v", err)
	}
}

func TestEmbedder_Embed_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 4)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for plain 429, got %v", err)
	}
	if errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatal("plain 429 must not map to ErrQuotaExceeded")
	}
}

func TestEmbedder_Embed_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusInternalServerError, "boom", "")
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 4)

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider for 500, got %v", err)
	}
}

func TestEmbedder_EmbedBatch(t *testing.T) {
	vec1 := []float32{0.1, 0.2}
	vec2 := []float32{0.3, 0.4}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// vectors returned out of order to exercise index-based placement
		writeEmbeddings(w, 20,
			embeddingData{Object: "embedding", Embedding: vec2, Index: 1},
			embeddingData{Object: "embedding", Embedding: vec1, Index: 0},
		)
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	result, err := emb.EmbedBatch(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	if result.Embeddings[0][0] != 0.1 {
		t.Errorf("expected first vec[0]=0.1, got %f", result.Embeddings[0][0])
	}
	if result.Embeddings[1][0] != 0.3 {
		t.Errorf("expected second vec[0]=0.3, got %f", result.Embeddings[1][0])
	}
	if result.TotalTokens != 20 {
		t.Errorf("expected TotalTokens=20, got %d", result.TotalTokens)
	}
	if result.Degraded() != 0 {
		t.Errorf("expected no degraded slots, got %d", result.Degraded())
	}
}

func TestEmbedder_EmbedBatch_Empty(t *testing.T) {
	emb := newTestEmbedder("http://unused", 2)

	result, err := emb.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embeddings != nil {
		t.Errorf("expected nil embeddings for empty input, got %v", result.Embeddings)
	}
}

func TestEmbedder_EmbedBatch_MissingSlotDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// one vector for two inputs
		writeEmbeddings(w, 5, embeddingData{Object: "embedding", Embedding: []float32{0.1, 0.2}, Index: 0})
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	result, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(result.Embeddings) != 2 {
		t.Fatalf("expected aligned output, got %d embeddings", len(result.Embeddings))
	}
	if result.ItemErrs[0] != nil {
		t.Errorf("expected first slot healthy, got %v", result.ItemErrs[0])
	}
	if result.ItemErrs[1] == nil {
		t.Fatal("expected item error for missing slot")
	}
	for _, v := range result.Embeddings[1] {
		if v != 0 {
			t.Fatalf("expected zero vector for degraded slot, got %v", result.Embeddings[1])
		}
	}
	if result.Degraded() != 1 {
		t.Errorf("expected 1 degraded slot, got %d", result.Degraded())
	}
}

func TestEmbedder_EmbedBatch_FallsBackPerItem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) > 1 {
			writeAPIError(w, http.StatusInternalServerError, "batch too large", "")
			return
		}
		writeEmbeddings(w, 3, embeddingData{Object: "embedding", Embedding: []float32{0.5, 0.6}, Index: 0})
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	result, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("expected per-item fallback to succeed, got %v", err)
	}
	if len(result.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(result.Embeddings))
	}
	for i, vec := range result.Embeddings {
		if vec[0] != 0.5 {
			t.Errorf("vec[%d][0] = %f, expected 0.5", i, vec[0])
		}
		if result.ItemErrs[i] != nil {
			t.Errorf("unexpected item error at %d: %v", i, result.ItemErrs[i])
		}
	}
	if result.TotalTokens != 6 {
		t.Errorf("expected TotalTokens=6 (2 * 3), got %d", result.TotalTokens)
	}
}

func TestEmbedder_EmbedBatch_PartialItemFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Input) > 1 || (len(req.Input) == 1 && req.Input[0] == "bad") {
			writeAPIError(w, http.StatusInternalServerError, "cannot embed", "")
			return
		}
		writeEmbeddings(w, 3, embeddingData{Object: "embedding", Embedding: []float32{0.5, 0.6}, Index: 0})
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	result, err := emb.EmbedBatch(context.Background(), []string{"ok", "bad"})
	if err != nil {
		t.Fatalf("expected degraded result, got error: %v", err)
	}
	if result.ItemErrs[0] != nil {
		t.Errorf("expected first item healthy, got %v", result.ItemErrs[0])
	}
	if result.ItemErrs[1] == nil {
		t.Fatal("expected item error for failed item")
	}
	if result.Embeddings[1][0] != 0 || result.Embeddings[1][1] != 0 {
		t.Errorf("expected zero vector for failed item, got %v", result.Embeddings[1])
	}
}

func TestEmbedder_EmbedBatch_QuotaAbortsWholeBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests, "no credits left", "insufficient_quota")
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	_, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded to abort the batch, got %v", err)
	}
}

func TestEmbedder_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": []any{}})
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
}

func TestEmbedder_HealthCheck_Down(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusServiceUnavailable, "down", "")
	}))
	defer server.Close()

	emb := newTestEmbedder(server.URL, 2)

	if err := emb.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected HealthCheck error when provider is down")
	}
}
