// Package index implements the index document pipeline: PDF to per-page
// PNG tiles, bounded-parallel vision extraction, a single whole-document
// boost, then sanitization into a SanitizedDocument.
package index

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// renderPages converts every page of the PDF at pdfPath to a PNG at dpi
// dots-per-inch, written into outDir as page_0001.png, page_0002.png,
// etc. Rendering is parallel across pages; the caller sees strict
// page-order results regardless of completion order.
func renderPages(pdfPath, outDir string, dpi int) ([]string, error) {
	pageCount, err := countPages(pdfPath)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, nil
	}

	type outcome struct {
		page int
		path string
		err  error
	}

	sem := make(chan struct{}, maxRenderConcurrency())
	results := make(chan outcome, pageCount)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{}
		go func(p int) {
			defer func() { <-sem }()
			path, err := renderPage(pdfPath, outDir, p, dpi)
			results <- outcome{page: p, path: path, err: err}
		}(page)
	}

	paths := make([]string, pageCount)
	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			return nil, fmt.Errorf("index: render page %d: %w", r.page, r.err)
		}
		paths[r.page-1] = r.path
	}
	return paths, nil
}

func maxRenderConcurrency() int {
	return 4
}

// countPages reads the PDF's page count via pdfcpu, avoiding a shell-out
// just to learn how many pages to render.
func countPages(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("index: open %s: %w", pdfPath, err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("index: page count %s: %w", pdfPath, err)
	}
	return n, nil
}

// renderPage shells out to pdftoppm (poppler-utils) to rasterize a
// single page at dpi, returning the path to the written PNG.
func renderPage(pdfPath, outDir string, page, dpi int) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ocrworkerd-page-*")
	if err != nil {
		return "", fmt.Errorf("index: temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")
	pageStr := fmt.Sprintf("%d", page)
	cmd := exec.Command("pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", fmt.Sprintf("%d", dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("index: pdftoppm: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("index: read rendered page %d: %w", page, err)
	}

	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", page))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return "", fmt.Errorf("index: write rendered page %d: %w", page, err)
	}
	return dstPath, nil
}
