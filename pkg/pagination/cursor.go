package pagination

// Mode distinguishes the two Canvas pagination schemes.
type Mode int

const (
	// ModeNumeric pages are addressed by page number and may be fetched
	// speculatively in concurrent batches.
	ModeNumeric Mode = iota

	// ModeBookmark pages are addressed by opaque cursors; each cursor is
	// only discoverable from the prior page's response, so fetching is
	// strictly sequential. Entering this mode is permanent for the
	// resource: numeric speculation is never re-attempted.
	ModeBookmark
)

// estimate is the page-count knowledge state: unknown until the first
// next link is seen, speculative while the estimate grows, known once a
// rel="last" link (or terminal evidence) fixes it.
type estimate int

const (
	estimateUnknown estimate = iota
	estimateSpeculative
	estimateKnown
)

// speculativeGrowth is how far the page estimate extends each time the
// frontier page is still full with the true last page unknown.
const speculativeGrowth = 10

// Cursor tracks one resource's pagination state. The page estimate only
// ever grows; it is corrected by an authoritative last-page signal and
// never decremented speculatively.
type Cursor struct {
	mode       Mode
	totalPages int
	state      estimate
	nextURL    string
}

func newCursor() *Cursor {
	return &Cursor{totalPages: 1}
}

// Mode returns the pagination scheme observed so far.
func (c *Cursor) Mode() Mode {
	return c.mode
}

// TotalPages returns the current known or estimated page count.
func (c *Cursor) TotalPages() int {
	return c.totalPages
}

// LastPageKnown reports whether the page count is authoritative.
func (c *Cursor) LastPageKnown() bool {
	return c.state == estimateKnown
}

// takeNext consumes the pending bookmark URL, if any.
func (c *Cursor) takeNext() string {
	next := c.nextURL
	c.nextURL = ""
	return next
}

// observe folds one page response's Link evidence into the cursor.
// page is the 1-based index the response belongs to, itemCount the
// number of records it carried, perPage the requested page size.
func (c *Cursor) observe(links map[string]string, page, itemCount, perPage int) {
	if c.mode == ModeBookmark {
		c.nextURL = links["next"]
		return
	}
	if c.state == estimateKnown {
		return
	}

	// A non-bookmark last link is authoritative.
	if last, ok := links["last"]; ok {
		if token, ok := pageParam(last); ok {
			if n, numeric := numericPage(token); numeric {
				c.fix(n)
				return
			}
			if token == cursorStartToken {
				c.fix(1)
				return
			}
		}
	}

	next, hasNext := links["next"]
	if !hasNext || itemCount == 0 {
		// No onward link, or an empty page past the end: this page
		// index is terminal.
		c.fix(page)
		return
	}

	token, ok := pageParam(next)
	if !ok {
		c.fix(page)
		return
	}

	if n, numeric := numericPage(token); numeric {
		if c.state == estimateUnknown {
			// Seed deliberately low, ramping up: bounds wasted requests
			// on small collections while still overlapping work.
			c.estimateAtLeast(n + 1)
		} else if page >= c.totalPages && itemCount >= perPage {
			// The frontier page is still full and the end is unseen.
			c.estimateAtLeast(c.totalPages + speculativeGrowth)
		}
		return
	}

	// Opaque token: the resource paginates by bookmark.
	c.mode = ModeBookmark
	c.nextURL = next
}

// fix sets the authoritative page count. First authoritative signal
// wins; the count is permanent afterwards.
func (c *Cursor) fix(n int) {
	c.totalPages = n
	c.state = estimateKnown
}

// estimateAtLeast grows the speculative estimate monotonically.
func (c *Cursor) estimateAtLeast(n int) {
	if n > c.totalPages {
		c.totalPages = n
	}
	c.state = estimateSpeculative
}
