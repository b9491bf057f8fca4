package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const AnthropicProviderName = "anthropic"

// AnthropicConfig configures the fallback provider client.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	RPM        int
	MaxRetries int
	Timeout    time.Duration
	BaseURL    string
	HTTPClient *http.Client
}

// AnthropicClient implements Client only — per SPEC_FULL.md §4.4 the
// fallback provider never needs the file-upload contract.
type AnthropicClient struct {
	model   string
	client  anthropic.Client
	limiter *RateLimiter
}

// NewAnthropicClient builds a client over the official SDK.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.RPM <= 0 {
		cfg.RPM = 300
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		model:   cfg.Model,
		client:  anthropic.NewClient(opts...),
		limiter: NewRateLimiter(cfg.RPM),
	}
}

func (c *AnthropicClient) Name() string             { return AnthropicProviderName }
func (c *AnthropicClient) RateLimiter() *RateLimiter { return c.limiter }

func (c *AnthropicClient) ExtractImage(ctx context.Context, image []byte, mimeType, prompt string, opts CallOpts) (ExtractResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ExtractResult{}, classifyTransportError(err)
	}

	maxTokens, err := c.resolveMaxTokens(opts)
	if err != nil {
		return ExtractResult{}, err
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, encodeBase64(image)),
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	if err != nil {
		return ExtractResult{}, c.mapError(err)
	}

	return ExtractResult{
		Text:      concatTextBlocks(msg),
		Provider:  AnthropicProviderName,
		ModelUsed: string(msg.Model),
	}, nil
}

func (c *AnthropicClient) Boost(ctx context.Context, text, prompt string, opts CallOpts) (ExtractResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ExtractResult{}, classifyTransportError(err)
	}

	maxTokens, err := c.resolveMaxTokens(opts)
	if err != nil {
		return ExtractResult{}, err
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System:    []anthropic.TextBlockParam{{Text: prompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return ExtractResult{}, c.mapError(err)
	}

	return ExtractResult{
		Text:      concatTextBlocks(msg),
		Provider:  AnthropicProviderName,
		ModelUsed: string(msg.Model),
	}, nil
}

func (c *AnthropicClient) resolveMaxTokens(opts CallOpts) (int, error) {
	if opts.MaxOutputTokens > 0 {
		return opts.MaxOutputTokens, nil
	}
	return TokenLimit(c.model)
}

func concatTextBlocks(msg *anthropic.Message) string {
	var out string
	for _, block := range msg.Content {
		if text := block.AsText(); text.Text != "" {
			out += text.Text
		}
	}
	return out
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func (c *AnthropicClient) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		retryAfter := time.Duration(0)
		if apiErr.Response != nil {
			retryAfter = parseRetryAfterHeader(apiErr.Response.Header.Get("Retry-After"))
		}
		return classifyHTTPStatus(AnthropicProviderName, apiErr.StatusCode, retryAfter, apiErr)
	}
	return classifyTransportError(err)
}
