// Package providers wraps the two LLM vendors the Unified Processor calls
// behind one contract: an image-prompt path every provider supports, and a
// file-prompt path only the primary provider supports.
package providers

import (
	"context"
	"time"
)

// FileState is the upload lifecycle state reported by AwaitReady.
type FileState int

const (
	FileProcessing FileState = iota
	FileActive
	FileFailed
	FileTimedOut
)

func (s FileState) String() string {
	switch s {
	case FileProcessing:
		return "processing"
	case FileActive:
		return "active"
	case FileFailed:
		return "failed"
	case FileTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// CallOpts carries the dynamic named parameters enumerated in the
// configuration contract: there are no other recognized keys.
type CallOpts struct {
	Temperature     float64
	MaxOutputTokens int
}

// ExtractResult is the text output of an extract or boost call.
type ExtractResult struct {
	Text      string
	Provider  string
	ModelUsed string
}

// FileRef identifies an uploaded file on the primary provider.
type FileRef string

// Client is the common contract both vendor bindings implement. Only the
// primary binding also implements FileClient.
type Client interface {
	// Name returns the provider identifier ("openai", "anthropic").
	Name() string

	// ExtractImage runs the vision extraction prompt against one page
	// image. mimeType is e.g. "image/png".
	ExtractImage(ctx context.Context, image []byte, mimeType, prompt string, opts CallOpts) (ExtractResult, error)

	// Boost runs the domain-correction pass over extracted text.
	Boost(ctx context.Context, text, prompt string, opts CallOpts) (ExtractResult, error)

	// RateLimiter returns this client's own local token-bucket pacer,
	// independent of the process-wide Rate Budget.
	RateLimiter() *RateLimiter
}

// FileClient is the additional contract the primary provider implements:
// upload, status-poll, whole-document extract, and delete.
type FileClient interface {
	Client

	// Upload submits the whole PDF and returns a reference plus its
	// initial state (normally Processing).
	Upload(ctx context.Context, pdf []byte) (FileRef, FileState, error)

	// AwaitReady polls the file's state until Active, Failed, or the
	// deadline implied by timeout elapses (returning TimedOut).
	AwaitReady(ctx context.Context, ref FileRef, timeout time.Duration) (FileState, error)

	// ExtractFile runs the extraction prompt against the whole
	// uploaded document. ref must be Active.
	ExtractFile(ctx context.Context, ref FileRef, prompt string, opts CallOpts) (ExtractResult, error)

	// DeleteFile is best-effort: callers invoke it on every exit path
	// (success, error, panic, shutdown) and ignore a failure here
	// rather than let it mask the caller's own error.
	DeleteFile(ctx context.Context, ref FileRef) error
}
