package dedupe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeEmbedOptions(t *testing.T) {
	t.Parallel()

	got := normalizeEmbedOptions(EmbedOptions{Limit: 10})
	if got.BatchSize != 10 {
		t.Fatalf("batch size should clamp to limit, got %d", got.BatchSize)
	}
	if got.Endpoint != DefaultEmbeddingEndpoint {
		t.Fatalf("endpoint = %s, want default", got.Endpoint)
	}
	if got.MaxLength != DefaultEmbeddingMaxLength {
		t.Fatalf("max length = %d, want default", got.MaxLength)
	}
	if got.RequestTimeout != DefaultEmbeddingRequestTimeout {
		t.Fatalf("timeout = %v, want default", got.RequestTimeout)
	}
}

func TestNormalizeEmbeddingEndpoint(t *testing.T) {
	t.Parallel()

	if got := normalizeEmbeddingEndpoint(""); got != DefaultEmbeddingEndpoint {
		t.Fatalf("empty endpoint = %s, want default", got)
	}
	if got := normalizeEmbeddingEndpoint("http://embedder:9000"); got != "http://embedder:9000/embed" {
		t.Fatalf("bare host = %s, want /embed appended", got)
	}
	if got := normalizeEmbeddingEndpoint("http://embedder:9000/v1/embeddings"); got != "http://embedder:9000/v1/embeddings" {
		t.Fatalf("explicit path = %s, want unchanged", got)
	}
}

func TestEmbeddingInput(t *testing.T) {
	t.Parallel()

	lesson := embeddingPendingLesson{Title: " Garden Salsa ", Summary: "", Content: "Harvest and chop."}
	if got := embeddingInput(lesson); got != "Garden Salsa\n\nHarvest and chop." {
		t.Fatalf("unexpected input: %q", got)
	}

	empty := embeddingPendingLesson{}
	if got := embeddingInput(empty); got != "" {
		t.Fatalf("empty lesson input = %q, want empty string", got)
	}
}

func TestRequestEmbeddingsNativeFormat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Texts) != 2 {
			t.Errorf("texts = %d, want 2", len(req.Texts))
		}
		elapsed := 12.5
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float64{{0.1, 0.2}, {0.3, 0.4}},
			ElapsedMS:  &elapsed,
		})
	}))
	defer server.Close()

	opts := normalizeEmbedOptions(EmbedOptions{Limit: 2, Endpoint: server.URL + "/embed", RequestTimeout: 2 * time.Second})
	vectors, elapsed, err := requestEmbeddings(context.Background(), opts, []string{"a", "b"})
	if err != nil {
		t.Fatalf("requestEmbeddings returned error: %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 0.4 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if elapsed == nil || *elapsed != 12.5 {
		t.Fatalf("elapsed = %v, want 12.5", elapsed)
	}
}

func TestRequestEmbeddingsOpenAIFormat(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) != 1 || len(req.Texts) != 0 {
			t.Errorf("expected input field payload, got texts=%d input=%d", len(req.Texts), len(req.Input))
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5,0.6]}]}`))
	}))
	defer server.Close()

	opts := normalizeEmbedOptions(EmbedOptions{Limit: 1, Endpoint: server.URL + "/v1/embeddings", RequestTimeout: 2 * time.Second})
	vectors, _, err := requestEmbeddings(context.Background(), opts, []string{"a"})
	if err != nil {
		t.Fatalf("requestEmbeddings returned error: %v", err)
	}
	if len(vectors) != 1 || vectors[0][0] != 0.5 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
}

func TestRequestEmbeddingsErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	opts := normalizeEmbedOptions(EmbedOptions{Limit: 1, Endpoint: server.URL + "/embed", RequestTimeout: 2 * time.Second})
	if _, _, err := requestEmbeddings(context.Background(), opts, []string{"a"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
