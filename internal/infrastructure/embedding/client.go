// Package embedding 提供 Embedding 服务客户端
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"storyscape/internal/config"
	apperrors "storyscape/pkg/errors"
	"storyscape/pkg/metrics"
)

// Client Embedding 服务 HTTP 客户端。
// 同一文本、同一模型版本的嵌入结果由服务端保证确定性。
type Client struct {
	endpoint    string
	model       string
	dimension   int
	maxInputLen int
	httpClient  *http.Client
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func NewClient(cfg *config.EmbeddingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxInputLen := cfg.MaxInputLen
	if maxInputLen <= 0 {
		maxInputLen = 8192
	}
	return &Client{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		maxInputLen: maxInputLen,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Dimension 返回嵌入向量维度
func (c *Client) Dimension() int {
	return c.dimension
}

// Embed 批量嵌入文本。
// 空白文本和超长文本在发起请求前即拒绝。
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "embedding input is empty").
				WithDetail(fmt.Sprintf("text index %d", i))
		}
		if utf8.RuneCountInString(text) > c.maxInputLen {
			return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "embedding input exceeds max length").
				WithDetail(fmt.Sprintf("text index %d: %d runes, limit %d", i, utf8.RuneCountInString(text), c.maxInputLen))
		}
	}

	start := time.Now()
	resp, err := c.doEmbed(ctx, texts)
	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EmbeddingTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		metrics.EmbeddingTotal.WithLabelValues("error").Inc()
		return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "embedding count mismatch").
			WithDetail(fmt.Sprintf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts)))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) != c.dimension {
			metrics.EmbeddingTotal.WithLabelValues("error").Inc()
			return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "embedding dimension mismatch").
				WithDetail(fmt.Sprintf("text index %d: got %d, want %d", i, len(vec), c.dimension))
		}
	}

	metrics.EmbeddingTotal.WithLabelValues("success").Inc()
	return resp.Embeddings, nil
}

// EmbedOne 嵌入单条文本
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	reqBody, err := json.Marshal(&embedRequest{
		Texts: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "embedding endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid embedding endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/embed"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embedding request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, apperrors.New(apperrors.CodeEmbeddingFailed, "embedding request failed").
			WithDetail(fmt.Sprintf("status=%d", httpResp.StatusCode))
	}

	var resp embedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to decode embed response")
	}
	return &resp, nil
}
