package index

import "testing"

func TestCountPagesErrorsOnMissingFile(t *testing.T) {
	if _, err := countPages("/nonexistent/document.pdf"); err == nil {
		t.Fatal("expected error for missing PDF")
	}
}

func TestRenderPagesErrorsOnMissingFile(t *testing.T) {
	if _, err := renderPages("/nonexistent/document.pdf", t.TempDir(), 300); err == nil {
		t.Fatal("expected error for missing PDF")
	}
}
