package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/quebec-foncier/ocrworkerd/internal/kv"
	"github.com/quebec-foncier/ocrworkerd/internal/processor"
	"github.com/quebec-foncier/ocrworkerd/internal/providers"
	"github.com/quebec-foncier/ocrworkerd/internal/ratebudget"
	"github.com/quebec-foncier/ocrworkerd/internal/sanitize"
)

func TestMarshalDocumentProducesParseableJSON(t *testing.T) {
	doc := &sanitize.SanitizedDocument{Pages: []sanitize.Page{{PageNumber: 1, Inscriptions: []sanitize.Inscription{}}}}
	data, err := marshalDocument(doc)
	if err != nil {
		t.Fatalf("marshalDocument: %v", err)
	}
	var round sanitize.SanitizedDocument
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(round.Pages) != 1 {
		t.Errorf("round-tripped doc has %d pages, want 1", len(round.Pages))
	}
}

func TestEmptyDocumentResultCompletesWithNoPages(t *testing.T) {
	result, err := emptyDocumentResult()
	if err != nil {
		t.Fatalf("emptyDocumentResult: %v", err)
	}
	var doc sanitize.SanitizedDocument
	if err := json.Unmarshal([]byte(result.FileContent), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Pages) != 0 {
		t.Errorf("pages = %v, want empty", doc.Pages)
	}
}

func newTestPipeline(t *testing.T, primary, fallback *providers.MockClient) *Pipeline {
	t.Helper()
	registry := providers.NewRegistry()
	registry.SetPrimary(primary)
	registry.SetFallback(fallback)

	proc := processor.New(processor.Config{MaxProviderRetries: 1, MaxContinuations: 1}, registry, nil, nil)
	rb := ratebudget.New(kv.NewFakeStore(), map[string]ratebudget.Limit{
		"openai":    {RPM: 1000, TPM: 1_000_000},
		"anthropic": {RPM: 1000, TPM: 1_000_000},
	})
	return New(Config{Prompts: Prompts{ExtractPage: "extract", BoostDoc: "boost"}}, nil, proc, rb, nil, nil)
}

func writeFakeImage(t *testing.T, dir string, n int) string {
	t.Helper()
	path := filepath.Join(dir, "page.png")
	if err := os.WriteFile(path, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatalf("write fake image: %v", err)
	}
	return path
}

func TestExtractPagesAssemblesInOrder(t *testing.T) {
	primary := providers.NewMockClient("openai")
	primary.ExtractText = "page text"
	fallback := providers.NewMockClient("anthropic")
	p := newTestPipeline(t, primary, fallback)

	dir := t.TempDir()
	paths := []string{writeFakeImage(t, dir, 1), writeFakeImage(t, dir, 2)}

	texts := p.extractPages(context.Background(), "job-1", "openai", paths)
	if len(texts) != 2 {
		t.Fatalf("expected 2 page texts, got %d", len(texts))
	}
	for i, txt := range texts {
		if txt != "page text" {
			t.Errorf("page %d text = %q, want %q", i+1, txt, "page text")
		}
	}
}

func TestExtractOnePageContinuesOnTruncatedResponse(t *testing.T) {
	primary := providers.NewMockClient("openai")
	primary.ExtractText = "truncated page text, no sentinel"
	fallback := providers.NewMockClient("anthropic")

	registry := providers.NewRegistry()
	registry.SetPrimary(primary)
	registry.SetFallback(fallback)
	proc := processor.New(processor.Config{MaxProviderRetries: 1, MaxContinuations: 2}, registry, nil, nil)
	rb := ratebudget.New(kv.NewFakeStore(), map[string]ratebudget.Limit{
		"openai": {RPM: 1000, TPM: 1_000_000},
	})
	p := New(Config{Prompts: Prompts{ExtractPage: "extract", BoostDoc: "boost"}}, nil, proc, rb, nil, nil)

	dir := t.TempDir()
	path := writeFakeImage(t, dir, 1)

	text, err := p.extractOnePage(context.Background(), "job-3", "openai", 1, path)
	if err != nil {
		t.Fatalf("extractOnePage: %v", err)
	}
	if text == "" {
		t.Fatalf("expected accumulated text from continuation rounds, got empty")
	}
	if primary.RequestCount() < 2 {
		t.Errorf("expected extractOnePage to request a continuation round on truncated output, got %d requests", primary.RequestCount())
	}
}

func TestExtractPagesDegradesToEmptyOnBothProvidersFailing(t *testing.T) {
	primary := providers.NewMockClient("openai")
	primary.ShouldFail = true
	fallback := providers.NewMockClient("anthropic")
	fallback.ShouldFail = true
	p := newTestPipeline(t, primary, fallback)

	dir := t.TempDir()
	paths := []string{writeFakeImage(t, dir, 1)}

	texts := p.extractPages(context.Background(), "job-2", "openai", paths)
	if len(texts) != 1 || texts[0] != "" {
		t.Fatalf("expected a single empty page on total failure, got %+v", texts)
	}
}
