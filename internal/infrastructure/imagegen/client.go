// Package imagegen 提供图像生成服务客户端
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyscape/internal/config"
	apperrors "storyscape/pkg/errors"
	"storyscape/pkg/metrics"
)

// Client 图像生成服务 HTTP 客户端
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
	Style  string `json:"style,omitempty"`
}

type generateResponse struct {
	ImageURL string `json:"image_url"`
}

func NewClient(cfg *config.ModelConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Generate 生成图像并返回图像引用（URL 或存储键）
func (c *Client) Generate(ctx context.Context, prompt, style string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.New(apperrors.CodeGenerationFailed, "image prompt is empty")
	}

	reqBody, err := json.Marshal(&generateRequest{
		Prompt: prompt,
		Model:  c.model,
		Style:  strings.TrimSpace(style),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal image request: %w", err)
	}

	endpoint := strings.TrimRight(c.endpoint, "/")
	if endpoint == "" {
		return "", apperrors.New(apperrors.CodeGenerationFailed, "image endpoint is empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid image endpoint: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/generate"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	metrics.ModelCallDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallTotal.WithLabelValues(c.model, "error").Inc()
		return "", apperrors.Wrap(err, apperrors.CodeGenerationFailed, "image request failed")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		metrics.ModelCallTotal.WithLabelValues(c.model, "error").Inc()
		return "", apperrors.New(apperrors.CodeGenerationFailed, "image request failed").
			WithDetail(fmt.Sprintf("status=%d", httpResp.StatusCode))
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		metrics.ModelCallTotal.WithLabelValues(c.model, "error").Inc()
		return "", apperrors.Wrap(err, apperrors.CodeGenerationFailed, "failed to decode image response")
	}
	if resp.ImageURL == "" {
		metrics.ModelCallTotal.WithLabelValues(c.model, "error").Inc()
		return "", apperrors.New(apperrors.CodeGenerationFailed, "image service returned empty url")
	}

	metrics.ModelCallTotal.WithLabelValues(c.model, "success").Inc()
	return resp.ImageURL, nil
}
