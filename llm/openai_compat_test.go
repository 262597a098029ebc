package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		EmbedModel:  "test-embed",
		RerankModel: "test-rerank",
		ChatModel:   "test-chat",
		Timeout:     5 * time.Second,
	}, nil)
}

func TestEmbedBatchesAndPreservesOrder(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		var resp embeddingResponse
		// Answer in reverse index order to exercise the sort.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		json.NewEncoder(w).Encode(resp)
	})

	texts := make([]string, embedBatchSize+4)
	for i := range texts {
		texts[i] = fmt.Sprintf("%0*d", i+1, 0)
	}
	vecs, err := c.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if got, want := v[0], float32(i+1); got != want {
			t.Errorf("vector %d = %v, want %v", i, got, want)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("got %d requests, want 2", got)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.Embed(context.Background(), nil); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("got %v, want ErrEmptyInput", err)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embeddingResponse{})
	})
	if _, err := c.Embed(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrBadResponse) {
		t.Errorf("got %v, want ErrBadResponse", err)
	}
}

func TestRerankSortsAndTruncates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TopN != 2 {
			t.Errorf("top_n = %d, want 2", req.TopN)
		}
		w.Write([]byte(`{"results":[
			{"index":0,"relevance_score":0.3},
			{"index":2,"relevance_score":0.9},
			{"index":1,"relevance_score":0.5}]}`))
	})
	results, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Index != 2 || results[1].Index != 1 {
		t.Errorf("got order [%d %d], want [2 1]", results[0].Index, results[1].Index)
	}
}

func TestRerankIndexOutOfRange(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"index":5,"relevance_score":0.9}]}`))
	})
	if _, err := c.Rerank(context.Background(), "q", []string{"a"}, 1); !errors.Is(err, ErrBadResponse) {
		t.Errorf("got %v, want ErrBadResponse", err)
	}
}

func TestDetectIntentStripsFences(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reply := "```json\n{\"intent\":\"audit_analysis\",\"retrieval_mode\":\"graph\",\"graph_hops\":3}\n```"
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": reply}}},
		})
	})
	intent, err := c.DetectIntent(context.Background(), "预算挪用问题的关联分析")
	if err != nil {
		t.Fatalf("DetectIntent: %v", err)
	}
	if intent.Intent != "audit_analysis" {
		t.Errorf("intent = %q, want audit_analysis", intent.Intent)
	}
	if intent.GraphHops != 3 {
		t.Errorf("graph_hops = %d, want 3", intent.GraphHops)
	}
}

func TestDetectIntentMissingIntentField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "{}"}}},
		})
	})
	if _, err := c.DetectIntent(context.Background(), "q"); !errors.Is(err, ErrBadResponse) {
		t.Errorf("got %v, want ErrBadResponse", err)
	}
}

func TestDoPostRetriesTransientStatus(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var resp embeddingResponse
		resp.Data = append(resp.Data, struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}{Index: 0, Embedding: []float32{1}})
		json.NewEncoder(w).Encode(resp)
	})
	if _, err := c.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("Embed after retries: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("got %d calls, want 3", got)
	}
}

func TestDoPostDoesNotRetryClientError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})
	if _, err := c.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("got %d calls, want 1", got)
	}
}

func TestGenerateReportsUsage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"choices":[{"message":{"content":"根据 [S 1],财务部存在预算挪用问题。"}}],
			"usage":{"prompt_tokens":100,"completion_tokens":20,"total_tokens":120}}`))
	})
	ans, err := c.Generate(context.Background(), "财务部有什么问题", []SourceContext{
		{SourceID: "S 1", Title: "审计报告", Text: "财务部预算挪用 500 万元。"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ans.TotalTokens != 120 {
		t.Errorf("total tokens = %d, want 120", ans.TotalTokens)
	}
	if ans.Text == "" {
		t.Error("empty answer text")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"9999", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
