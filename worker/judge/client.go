package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/models"
)

const maxReplyBytes = 1 << 20

type Judge interface {
	Judge(ctx context.Context, in Input) models.Verdict
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Client talks to an OpenAI compatible chat completions endpoint that
// accepts image parts.
type Client struct {
	cfg    config.VLMConfig
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg config.VLMConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout.Duration},
		logger: logger,
	}
}

// Judge always returns a verdict; failures come back as a degraded one.
func (c *Client) Judge(ctx context.Context, in Input) (v models.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic during judgment", zap.Any("error", r))
			v = models.DegradedVerdict(fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := c.judge(ctx, in)
	if err != nil {
		c.logger.Warn("VLM analysis failed",
			zap.String("url", in.URL),
			zap.Error(err),
		)
		return models.DegradedVerdict(err)
	}
	return v
}

func (c *Client) judge(ctx context.Context, in Input) (models.Verdict, error) {
	body, err := json.Marshal(c.buildRequest(in))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("vlm request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return models.Verdict{}, fmt.Errorf("read vlm reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Verdict{}, fmt.Errorf("vlm endpoint returned %d: %s", resp.StatusCode, models.Truncate(string(data), 200))
	}

	v := ParseVerdict(replyContent(data))
	c.logger.Debug("VLM verdict parsed",
		zap.String("label", v.Label),
		zap.Float64("confidence", v.Confidence),
		zap.Bool("is_threat", v.IsThreat),
	)
	return v, nil
}

func (c *Client) buildRequest(in Input) chatRequest {
	parts := []contentPart{{
		Type: "text",
		Text: BuildPrompt(in, c.cfg.HTMLPromptChars, c.cfg.OCRPromptChars),
	}}
	if len(in.Image) > 0 {
		mime := in.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(in.Image)},
		})
	}

	return chatRequest{
		Model:          c.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: parts}},
		MaxTokens:      c.cfg.MaxTokens,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
}

func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
