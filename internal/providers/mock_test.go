package providers

import (
	"context"
	"strings"
	"testing"
)

func TestMockClientExtractImageSucceeds(t *testing.T) {
	c := NewMockClient("mock-primary")
	res, err := c.ExtractImage(context.Background(), []byte("png-bytes"), "image/png", "extract", CallOpts{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Text, "EXTRACTION_COMPLETE") {
		t.Errorf("expected completion sentinel in result, got %q", res.Text)
	}
}

func TestMockClientFailAfterBudget(t *testing.T) {
	c := NewMockClient("mock-primary")
	c.FailAfter = 1

	if _, err := c.Boost(context.Background(), "text", "boost", CallOpts{}); err != nil {
		t.Fatalf("first call should succeed: %v", err)
	}
	if _, err := c.Boost(context.Background(), "text", "boost", CallOpts{}); err == nil {
		t.Fatalf("second call should fail once FailAfter budget is exceeded")
	}
}

func TestMockClientFileLifecycle(t *testing.T) {
	c := NewMockClient("mock-primary")

	ref, state, err := c.Upload(context.Background(), []byte("pdf-bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if state != FileProcessing {
		t.Errorf("initial state = %v, want Processing", state)
	}

	ready, err := c.AwaitReady(context.Background(), ref, 0)
	if err != nil {
		t.Fatalf("await ready: %v", err)
	}
	if ready != FileActive {
		t.Errorf("ready state = %v, want Active", ready)
	}

	if _, err := c.ExtractFile(context.Background(), ref, "extract", CallOpts{}); err != nil {
		t.Fatalf("extract file: %v", err)
	}

	if err := c.DeleteFile(context.Background(), ref); err != nil {
		t.Fatalf("delete file: %v", err)
	}
	if c.DeleteCount() != 1 {
		t.Errorf("delete count = %d, want 1", c.DeleteCount())
	}
}
