package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	embedBatchSize = 16
	maxRetries     = 6
	baseBackoff    = 500 * time.Millisecond
)

// Client talks to an OpenAI-compatible HTTP endpoint. It implements
// EmbeddingProvider, RerankProvider, IntentClassifier, AnswerGenerator
// and AnswerStreamer; wire only the capabilities you configure models for.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewClient builds a Client against cfg.BaseURL. A trailing slash on the
// base URL is tolerated.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// ---------------------------------------------------------------------------
// Embedding
// ---------------------------------------------------------------------------

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per text, in input order. Requests larger than
// the provider batch limit are split and issued sequentially.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := c.doPost(ctx, "/embeddings", embeddingRequest{
		Model: c.cfg.EmbedModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrBadResponse, len(resp.Data), len(texts))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// ---------------------------------------------------------------------------
// Rerank
// ---------------------------------------------------------------------------

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against query and returns at most topN results
// ordered by relevance descending.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, ErrEmptyInput
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}
	body, err := c.doPost(ctx, "/rerank", rerankRequest{
		Model:     c.cfg.RerankModel,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, err
	}
	var resp rerankResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	results := make([]RerankResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: rerank index %d out of range", ErrBadResponse, r.Index)
		}
		results = append(results, RerankResult{Index: r.Index, Score: r.RelevanceScore})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// ---------------------------------------------------------------------------
// Intent classification
// ---------------------------------------------------------------------------

const intentSystemPrompt = `你是一个检索意图分类器。根据用户问题判断查询意图并输出 JSON。
intent 取值: regulation_query, audit_query, audit_issue, audit_analysis, comprehensive_query。
可选字段: doc_types, retrieval_mode (vector/graph/hybrid), top_k, graph_hops, graph_top_k, use_rerank, hybrid_alpha。
只输出 JSON,不要输出其它内容。`

// DetectIntent asks the chat model to classify query. The response must be
// a JSON object matching Intent; anything else is an error and the caller
// falls back to its default plan.
func (c *Client) DetectIntent(ctx context.Context, query string) (*Intent, error) {
	resp, err := c.chat(ctx, chatRequest{
		Model: c.cfg.ChatModel,
		Messages: []chatMessage{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	var intent Intent
	if err := json.Unmarshal([]byte(extractJSONObject(resp.text)), &intent); err != nil {
		return nil, fmt.Errorf("%w: intent: %v", ErrBadResponse, err)
	}
	if intent.Intent == "" {
		return nil, fmt.Errorf("%w: intent: missing intent field", ErrBadResponse)
	}
	return &intent, nil
}

// extractJSONObject trims model chatter around the first top-level JSON
// object, including markdown fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// ---------------------------------------------------------------------------
// Answer generation
// ---------------------------------------------------------------------------

const answerSystemPrompt = `你是审计领域的问答助手。基于提供的资料回答问题,引用资料时使用其来源标记,例如 [S 1]。
资料中没有的内容不要编造;无法回答时直说。`

func buildAnswerMessages(query string, contexts []SourceContext) []chatMessage {
	var b strings.Builder
	for _, sc := range contexts {
		fmt.Fprintf(&b, "[%s] %s\n%s\n\n", sc.SourceID, sc.Title, sc.Text)
	}
	fmt.Fprintf(&b, "问题: %s", query)
	return []chatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: b.String()},
	}
}

// Generate produces a grounded answer from the retrieved contexts.
func (c *Client) Generate(ctx context.Context, query string, contexts []SourceContext) (*GeneratedAnswer, error) {
	resp, err := c.chat(ctx, chatRequest{
		Model:    c.cfg.ChatModel,
		Messages: buildAnswerMessages(query, contexts),
	})
	if err != nil {
		return nil, err
	}
	return &GeneratedAnswer{
		Text:             resp.text,
		Model:            c.cfg.ChatModel,
		PromptTokens:     resp.promptTokens,
		CompletionTokens: resp.completionTokens,
		TotalTokens:      resp.totalTokens,
	}, nil
}

// GenerateStream is Generate with incremental delivery. fn is called once
// per content delta; the returned answer carries the assembled text.
func (c *Client) GenerateStream(ctx context.Context, query string, contexts []SourceContext, fn StreamFunc) (*GeneratedAnswer, error) {
	req := chatRequest{
		Model:    c.cfg.ChatModel,
		Messages: buildAnswerMessages(query, contexts),
		Stream:   true,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("llm: chat stream: status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if fn != nil {
			if err := fn(delta); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &GeneratedAnswer{Text: full.String(), Model: c.cfg.ChatModel}, nil
}

// ---------------------------------------------------------------------------
// Chat plumbing
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type chatResult struct {
	text             string
	promptTokens     int
	completionTokens int
	totalTokens      int
}

func (c *Client) chat(ctx context.Context, req chatRequest) (*chatResult, error) {
	body, err := c.doPost(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrBadResponse)
	}
	return &chatResult{
		text:             resp.Choices[0].Message.Content,
		promptTokens:     resp.Usage.PromptTokens,
		completionTokens: resp.Usage.CompletionTokens,
		totalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// ---------------------------------------------------------------------------
// HTTP transport with retries
// ---------------------------------------------------------------------------

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func retryableStatusCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// doPost sends payload to path and returns the response body, retrying
// transient failures with exponential backoff. A Retry-After header, when
// present and sane, overrides the computed delay.
func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, lastErr)
			c.logger.Warn("retrying llm request",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return data, nil
		}
		lastErr = &statusError{
			code:       resp.StatusCode,
			body:       strings.TrimSpace(string(data)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if !retryableStatusCode(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("llm: %s: giving up after %d attempts: %w", path, maxRetries, lastErr)
}

type statusError struct {
	code       int
	body       string
	retryAfter time.Duration
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("llm: status %d", e.code)
	}
	return fmt.Sprintf("llm: status %d: %s", e.code, e.body)
}

func backoffDelay(attempt int, lastErr error) time.Duration {
	if se, ok := lastErr.(*statusError); ok && se.retryAfter > 0 {
		return se.retryAfter
	}
	delay := baseBackoff * time.Duration(1<<uint(attempt-1))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 4))
	return delay + jitter
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 && secs <= 120 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
