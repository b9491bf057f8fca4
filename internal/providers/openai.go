package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/quebec-foncier/ocrworkerd/internal/ocrerrors"
)

// namedReader lets the SDK's multipart encoder pick up a filename for an
// in-memory upload, the same way it would for an *os.File.
type namedReader struct {
	*bytes.Reader
	name string
}

func (n *namedReader) Name() string { return n.name }

func fileUploadReader(data []byte, name string) *namedReader {
	return &namedReader{Reader: bytes.NewReader(data), name: name}
}

const OpenAIProviderName = "openai"

// OpenAIConfig configures the primary provider client.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	RPM        int
	MaxRetries int
	Timeout    time.Duration
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIClient implements Client and FileClient — the only binding
// required to support both, per SPEC_FULL.md §4.4.
type OpenAIClient struct {
	model   string
	client  openai.Client
	limiter *RateLimiter
}

// NewOpenAIClient builds a client over the official SDK.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.RPM <= 0 {
		cfg.RPM = 500
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

	return &OpenAIClient{
		model:   cfg.Model,
		client:  openai.NewClient(opts...),
		limiter: NewRateLimiter(cfg.RPM),
	}
}

func (c *OpenAIClient) Name() string               { return OpenAIProviderName }
func (c *OpenAIClient) RateLimiter() *RateLimiter   { return c.limiter }

func (c *OpenAIClient) ExtractImage(ctx context.Context, image []byte, mimeType, prompt string, opts CallOpts) (ExtractResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ExtractResult{}, classifyTransportError(err)
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	maxTokens, err := c.resolveMaxTokens(opts)
	if err != nil {
		return ExtractResult{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
			openai.UserMessage(openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
				},
			}),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ExtractResult{}, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return ExtractResult{}, fmt.Errorf("openai: empty completion choices: %w", ocrerrors.ErrProviderTransient)
	}

	return ExtractResult{
		Text:      resp.Choices[0].Message.Content,
		Provider:  OpenAIProviderName,
		ModelUsed: resp.Model,
	}, nil
}

func (c *OpenAIClient) Boost(ctx context.Context, text, prompt string, opts CallOpts) (ExtractResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ExtractResult{}, classifyTransportError(err)
	}

	maxTokens, err := c.resolveMaxTokens(opts)
	if err != nil {
		return ExtractResult{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(text),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ExtractResult{}, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return ExtractResult{}, fmt.Errorf("openai: empty completion choices: %w", ocrerrors.ErrProviderTransient)
	}

	return ExtractResult{
		Text:      resp.Choices[0].Message.Content,
		Provider:  OpenAIProviderName,
		ModelUsed: resp.Model,
	}, nil
}

func (c *OpenAIClient) Upload(ctx context.Context, pdf []byte) (FileRef, FileState, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", FileFailed, classifyTransportError(err)
	}

	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    fileUploadReader(pdf, "document.pdf"),
		Purpose: openai.FilePurposeUserData,
	})
	if err != nil {
		return "", FileFailed, c.mapError(err)
	}

	return FileRef(file.ID), mapOpenAIFileStatus(file.Status), nil
}

func (c *OpenAIClient) AwaitReady(ctx context.Context, ref FileRef, timeout time.Duration) (FileState, error) {
	deadline := time.Now().Add(timeout)
	for {
		if time.Now().After(deadline) {
			return FileTimedOut, nil
		}

		file, err := c.client.Files.Get(ctx, string(ref))
		if err != nil {
			return FileFailed, c.mapError(err)
		}

		state := mapOpenAIFileStatus(file.Status)
		if state == FileActive || state == FileFailed {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return FileFailed, classifyTransportError(ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *OpenAIClient) ExtractFile(ctx context.Context, ref FileRef, prompt string, opts CallOpts) (ExtractResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return ExtractResult{}, classifyTransportError(err)
	}

	maxTokens, err := c.resolveMaxTokens(opts)
	if err != nil {
		return ExtractResult{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
			openai.UserMessage(openai.ChatCompletionContentPartUnionParam{
				OfFile: &openai.ChatCompletionContentPartFileParam{
					File: openai.ChatCompletionContentPartFileFileParam{FileID: openai.String(string(ref))},
				},
			}),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ExtractResult{}, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return ExtractResult{}, fmt.Errorf("openai: empty completion choices: %w", ocrerrors.ErrProviderTransient)
	}

	return ExtractResult{
		Text:      resp.Choices[0].Message.Content,
		Provider:  OpenAIProviderName,
		ModelUsed: resp.Model,
	}, nil
}

// DeleteFile is best-effort: callers ignore its error on the path of an
// existing failure, per the scoped-acquisition guarantee in SPEC_FULL.md
// §4.7.
func (c *OpenAIClient) DeleteFile(ctx context.Context, ref FileRef) error {
	_, err := c.client.Files.Delete(ctx, string(ref))
	if err != nil {
		return c.mapError(err)
	}
	return nil
}

func (c *OpenAIClient) resolveMaxTokens(opts CallOpts) (int, error) {
	if opts.MaxOutputTokens > 0 {
		return opts.MaxOutputTokens, nil
	}
	return TokenLimit(c.model)
}

func mapOpenAIFileStatus(status string) FileState {
	switch status {
	case "processed":
		return FileActive
	case "error":
		return FileFailed
	default:
		return FileProcessing
	}
}

func (c *OpenAIClient) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		retryAfter := time.Duration(0)
		if apiErr.Response != nil {
			retryAfter = parseRetryAfterHeader(apiErr.Response.Header.Get("Retry-After"))
		}
		return classifyHTTPStatus(OpenAIProviderName, apiErr.StatusCode, retryAfter, apiErr)
	}
	return classifyTransportError(err)
}

func parseRetryAfterHeader(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
