package index

import "testing"

func TestAssemblePagesUsesLiteralSeparator(t *testing.T) {
	got := assemblePages([]string{"first", "second"})
	want := "--- Page 1 ---\nfirst\n--- Page 2 ---\nsecond\n"
	if got != want {
		t.Errorf("assemblePages = %q, want %q", got, want)
	}
}

func TestAssemblePagesPreservesOrderRegardlessOfInputOrder(t *testing.T) {
	pages := make([]string, 3)
	pages[2] = "p3"
	pages[1] = "p2"
	pages[0] = "p1"
	got := assemblePages(pages)
	if got != "--- Page 1 ---\np1\n--- Page 2 ---\np2\n--- Page 3 ---\np3\n" {
		t.Errorf("unexpected assembly: %q", got)
	}
}
