package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockClient is a scripted Client/FileClient used by pipeline and
// processor tests in place of a real vendor SDK.
type MockClient struct {
	ProviderName string
	Latency      time.Duration

	// ShouldFail causes every call to fail; FailAfter causes calls
	// after the Nth to fail (0 disables it).
	ShouldFail bool
	FailAfter  int
	FailErr    error

	ExtractText string
	BoostText   string

	// FileState is returned by AwaitReady; defaults to FileActive.
	FileState FileState

	SupportsFile bool

	requestCount atomic.Int64
	uploads      atomic.Int64
	deletes      atomic.Int64
}

// NewMockClient returns a mock configured to succeed with canned text.
func NewMockClient(name string) *MockClient {
	return &MockClient{
		ProviderName: name,
		Latency:      time.Millisecond,
		ExtractText:  "EXTRACTION_COMPLETE: mock extracted text",
		BoostText:    "BOOST_COMPLETE: mock boosted text",
		FileState:    FileActive,
		SupportsFile: true,
	}
}

func (m *MockClient) Name() string             { return m.ProviderName }
func (m *MockClient) RateLimiter() *RateLimiter { return NewRateLimiter(10000) }

func (m *MockClient) RequestCount() int64 { return m.requestCount.Load() }
func (m *MockClient) UploadCount() int64  { return m.uploads.Load() }
func (m *MockClient) DeleteCount() int64  { return m.deletes.Load() }

func (m *MockClient) shouldFailNow() bool {
	count := m.requestCount.Add(1)
	if m.ShouldFail {
		return true
	}
	return m.FailAfter > 0 && int(count) > m.FailAfter
}

func (m *MockClient) wait(ctx context.Context) error {
	select {
	case <-time.After(m.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockClient) failure() error {
	if m.FailErr != nil {
		return m.FailErr
	}
	return fmt.Errorf("%s: mock client configured to fail", m.ProviderName)
}

func (m *MockClient) ExtractImage(ctx context.Context, _ []byte, _ string, _ string, _ CallOpts) (ExtractResult, error) {
	if m.shouldFailNow() {
		return ExtractResult{}, m.failure()
	}
	if err := m.wait(ctx); err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{Text: m.ExtractText, Provider: m.ProviderName, ModelUsed: "mock-model"}, nil
}

func (m *MockClient) Boost(ctx context.Context, _ string, _ string, _ CallOpts) (ExtractResult, error) {
	if m.shouldFailNow() {
		return ExtractResult{}, m.failure()
	}
	if err := m.wait(ctx); err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{Text: m.BoostText, Provider: m.ProviderName, ModelUsed: "mock-model"}, nil
}

func (m *MockClient) Upload(ctx context.Context, pdf []byte) (FileRef, FileState, error) {
	if !m.SupportsFile {
		return "", FileFailed, fmt.Errorf("%s: does not support file upload", m.ProviderName)
	}
	if m.shouldFailNow() {
		return "", FileFailed, m.failure()
	}
	if err := m.wait(ctx); err != nil {
		return "", FileFailed, err
	}
	m.uploads.Add(1)
	return FileRef(fmt.Sprintf("mock-file-%d", m.uploads.Load())), FileProcessing, nil
}

func (m *MockClient) AwaitReady(ctx context.Context, _ FileRef, _ time.Duration) (FileState, error) {
	if err := m.wait(ctx); err != nil {
		return FileFailed, err
	}
	return m.FileState, nil
}

func (m *MockClient) ExtractFile(ctx context.Context, _ FileRef, _ string, _ CallOpts) (ExtractResult, error) {
	if m.shouldFailNow() {
		return ExtractResult{}, m.failure()
	}
	if err := m.wait(ctx); err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{Text: m.ExtractText, Provider: m.ProviderName, ModelUsed: "mock-model"}, nil
}

func (m *MockClient) DeleteFile(ctx context.Context, _ FileRef) error {
	m.deletes.Add(1)
	return m.wait(ctx)
}

var _ Client = (*MockClient)(nil)
var _ FileClient = (*MockClient)(nil)
