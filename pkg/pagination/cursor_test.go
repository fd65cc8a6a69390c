package pagination

import "testing"

func links(pairs ...string) map[string]string {
	m := make(map[string]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[pairs[i]] = pairs[i+1]
	}
	return m
}

func TestCursor_LastLinkIsAuthoritative(t *testing.T) {
	cur := newCursor()
	cur.observe(links(
		"next", "https://c.example.com/x?page=2",
		"last", "https://c.example.com/x?page=17",
	), 1, 100, 100)

	if !cur.LastPageKnown() {
		t.Error("last link should fix the page count")
	}
	if cur.TotalPages() != 17 {
		t.Errorf("TotalPages = %d, want 17", cur.TotalPages())
	}

	// Later speculative evidence must not move a fixed count.
	cur.observe(links("next", "https://c.example.com/x?page=18"), 17, 100, 100)
	if cur.TotalPages() != 17 {
		t.Errorf("TotalPages moved to %d after fix", cur.TotalPages())
	}
}

func TestCursor_LastLinkAtCursorStart(t *testing.T) {
	cur := newCursor()
	cur.observe(links("last", "https://c.example.com/x?page=first"), 1, 4, 100)

	if !cur.LastPageKnown() || cur.TotalPages() != 1 {
		t.Errorf("cursor-start last link should mean exactly one page, got %d known=%v",
			cur.TotalPages(), cur.LastPageKnown())
	}
	if cur.Mode() != ModeNumeric {
		t.Error("single-page cursor start is not bookmark mode")
	}
}

func TestCursor_SeedsEstimateFromNextLink(t *testing.T) {
	cur := newCursor()
	cur.observe(links("next", "https://c.example.com/x?page=2"), 1, 100, 100)

	if cur.LastPageKnown() {
		t.Error("estimate should be speculative")
	}
	if cur.TotalPages() != 3 {
		t.Errorf("TotalPages = %d, want next+1 = 3", cur.TotalPages())
	}
}

func TestCursor_GrowsMonotonically(t *testing.T) {
	cur := newCursor()
	cur.observe(links("next", "https://c.example.com/x?page=2"), 1, 100, 100)
	estimate := cur.TotalPages()

	// Full frontier page with a numeric next link extends the estimate.
	cur.observe(links("next", "https://c.example.com/x?page=4"), 3, 100, 100)
	if cur.TotalPages() != estimate+speculativeGrowth {
		t.Errorf("TotalPages = %d, want %d", cur.TotalPages(), estimate+speculativeGrowth)
	}

	// A short page on the frontier does not grow the estimate.
	grown := cur.TotalPages()
	cur.observe(links("next", "https://c.example.com/x?page=14"), grown, 12, 100)
	if cur.TotalPages() != grown {
		t.Errorf("short page grew estimate to %d", cur.TotalPages())
	}
}

func TestCursor_NoNextMeansTerminal(t *testing.T) {
	cur := newCursor()
	cur.observe(links("next", "https://c.example.com/x?page=2"), 1, 100, 100)
	cur.observe(links("current", "https://c.example.com/x?page=2"), 2, 37, 100)

	if !cur.LastPageKnown() {
		t.Error("missing next link should fix the count")
	}
	if cur.TotalPages() != 2 {
		t.Errorf("TotalPages = %d, want 2", cur.TotalPages())
	}
}

func TestCursor_EmptyPageIsTerminal(t *testing.T) {
	cur := newCursor()
	cur.observe(links("next", "https://c.example.com/x?page=2"), 1, 100, 100)
	cur.observe(links("next", "https://c.example.com/x?page=5"), 4, 0, 100)

	if !cur.LastPageKnown() || cur.TotalPages() != 4 {
		t.Errorf("empty page should be terminal, got %d known=%v", cur.TotalPages(), cur.LastPageKnown())
	}
}

func TestCursor_BookmarkModeIsPermanent(t *testing.T) {
	cur := newCursor()
	cur.observe(links("next", "https://c.example.com/x?page=bookmark:WzFd"), 1, 100, 100)

	if cur.Mode() != ModeBookmark {
		t.Fatal("opaque next token should enter bookmark mode")
	}
	if got := cur.takeNext(); got != "https://c.example.com/x?page=bookmark:WzFd" {
		t.Errorf("takeNext() = %q", got)
	}
	if got := cur.takeNext(); got != "" {
		t.Errorf("takeNext() should consume the cursor, got %q", got)
	}

	// Numeric-looking evidence later never re-enables speculation.
	cur.observe(links("next", "https://c.example.com/x?page=3", "last", "https://c.example.com/x?page=9"), 2, 100, 100)
	if cur.Mode() != ModeBookmark {
		t.Error("bookmark mode must be permanent")
	}
	if cur.takeNext() != "https://c.example.com/x?page=3" {
		t.Error("bookmark mode should keep following next links verbatim")
	}
}

func TestCursor_BookmarkTerminatesWithoutNext(t *testing.T) {
	cur := newCursor()
	cur.observe(links("next", "https://c.example.com/x?page=bookmark:WzFd"), 1, 100, 100)
	cur.takeNext()
	cur.observe(links("current", "https://c.example.com/x?page=bookmark:WzFd"), 0, 40, 100)

	if got := cur.takeNext(); got != "" {
		t.Errorf("takeNext() after terminal bookmark page = %q, want empty", got)
	}
}
