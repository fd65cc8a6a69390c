// Package testutil provides a configurable mock Canvas server for
// exercising the scheduling, retry and pagination engine in tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// collection is one paginated resource served by the mock.
type collection struct {
	items    []map[string]any
	bookmark bool
	noLast   bool
}

// MockCanvas is a mock Canvas instance. It serves paginated collections
// with real Link headers in both numeric and bookmark schemes, and can
// inject rate-limit rejections per path.
type MockCanvas struct {
	server *httptest.Server

	mu          sync.Mutex
	collections map[string]*collection
	rejections  map[string]int
	handlers    map[string]http.HandlerFunc

	// RejectRemaining is the x-rate-limit-remaining value advertised on
	// injected rejections. Tuned low-cost by default so computed
	// backoffs stay around a millisecond in tests.
	RejectRemaining string
	RejectCost      string

	requestCount int
	pathCounts   map[string]int
	inFlight     int
	maxInFlight  int
}

// NewMockCanvas starts a mock Canvas server.
func NewMockCanvas() *MockCanvas {
	m := &MockCanvas{
		collections:     make(map[string]*collection),
		rejections:      make(map[string]int),
		handlers:        make(map[string]http.HandlerFunc),
		pathCounts:      make(map[string]int),
		RejectRemaining: "300",
		RejectCost:      "0.001",
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server URL.
func (m *MockCanvas) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCanvas) Close() {
	m.server.Close()
}

// SetCollection serves a numeric-paginated collection at path.
func (m *MockCanvas) SetCollection(path string, items []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[path] = &collection{items: items}
}

// SetCollectionNoLast serves a numeric collection that never reveals a
// rel="last" link, forcing speculative page-count discovery.
func (m *MockCanvas) SetCollectionNoLast(path string, items []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[path] = &collection{items: items, noLast: true}
}

// SetBookmarkCollection serves a bookmark-paginated collection at path.
func (m *MockCanvas) SetBookmarkCollection(path string, items []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[path] = &collection{items: items, bookmark: true}
}

// SetHandler installs a raw handler for a path, overriding collections.
func (m *MockCanvas) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// RejectNext makes the next n requests to path fail with a 403 carrying
// the rate-limit marker and budget headers.
func (m *MockCanvas) RejectNext(path string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[path] = n
}

// RequestCount returns the total requests served.
func (m *MockCanvas) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// Requests returns the requests served for one path.
func (m *MockCanvas) Requests(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pathCounts[path]
}

// MaxInFlight returns the highest number of concurrently served
// requests observed.
func (m *MockCanvas) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInFlight
}

func (m *MockCanvas) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.pathCounts[r.URL.Path]++
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	reject := false
	if m.rejections[r.URL.Path] > 0 {
		m.rejections[r.URL.Path]--
		reject = true
	}
	handler := m.handlers[r.URL.Path]
	col := m.collections[r.URL.Path]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if reject {
		w.Header().Set("X-Rate-Limit-Remaining", m.RejectRemaining)
		w.Header().Set("X-Request-Cost", m.RejectCost)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "403 Forbidden (Rate Limit Exceeded)")
		return
	}

	if handler != nil {
		handler(w, r)
		return
	}

	if col == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[{"message":"The specified resource does not exist."}]}`)
		return
	}

	m.servePage(w, r, col)
}

// servePage slices the collection per page/per_page and emits Canvas
// style Link headers.
func (m *MockCanvas) servePage(w http.ResponseWriter, r *http.Request, col *collection) {
	perPage := 10
	if pp := r.URL.Query().Get("per_page"); pp != "" {
		if n, err := strconv.Atoi(pp); err == nil && n > 0 {
			perPage = n
		}
	}

	page := 1
	token := r.URL.Query().Get("page")
	if col.bookmark {
		page = m.bookmarkPage(token)
	} else if token != "" {
		if n, err := strconv.Atoi(token); err == nil && n > 0 {
			page = n
		}
	}

	totalPages := (len(col.items) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > len(col.items) {
		start = len(col.items)
	}
	if end > len(col.items) {
		end = len(col.items)
	}
	items := col.items[start:end]

	base := m.server.URL + r.URL.Path
	var links []string
	link := func(rel, pageToken string) string {
		return fmt.Sprintf(`<%s?page=%s&per_page=%d>; rel="%s"`, base, pageToken, perPage, rel)
	}

	if col.bookmark {
		links = append(links, link("current", m.bookmarkToken(page)))
		if page < totalPages {
			links = append(links, link("next", m.bookmarkToken(page+1)))
		}
		if totalPages == 1 {
			links = append(links, link("last", "first"))
		}
	} else {
		links = append(links, link("current", strconv.Itoa(page)))
		if page < totalPages {
			links = append(links, link("next", strconv.Itoa(page+1)))
		}
		if !col.noLast {
			links = append(links, link("last", strconv.Itoa(totalPages)))
		}
	}

	w.Header().Set("Link", strings.Join(links, ","))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Rate-Limit-Remaining", "650")
	w.Header().Set("X-Request-Cost", "0.5")
	json.NewEncoder(w).Encode(items)
}

// bookmarkToken encodes a page index as an opaque cursor.
func (m *MockCanvas) bookmarkToken(page int) string {
	if page == 1 {
		return "first"
	}
	return fmt.Sprintf("bookmark:W3sicCI6%d", page)
}

// bookmarkPage decodes a cursor back to its page index.
func (m *MockCanvas) bookmarkPage(token string) int {
	if token == "" || token == "first" {
		return 1
	}
	var page int
	if _, err := fmt.Sscanf(token, "bookmark:W3sicCI6%d", &page); err != nil {
		return 1
	}
	return page
}

// GenerateItems builds n records with sequential ids for collections.
func GenerateItems(n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		items[i] = map[string]any{
			"id":   i + 1,
			"name": fmt.Sprintf("item-%d", i+1),
		}
	}
	return items
}
