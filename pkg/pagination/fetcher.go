package pagination

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/campusops/canvas-client/pkg/client"
	"github.com/campusops/canvas-client/pkg/transport"
)

// PageClient is what the pagination engine needs from the Canvas
// client: authorized request construction and the retry-controlled
// submission path. *client.Client implements it.
type PageClient interface {
	NewRequest(method, url string, body any) *transport.RequestConfig
	Process(ctx context.Context, cfg *transport.RequestConfig, ledger *client.RetryLedger) *transport.ResponseEnvelope
}

// Options holds pagination fetch parameters.
type Options struct {
	// PerPage is the requested page size.
	PerPage int

	// MaxBatch is the maximum number of concurrent page requests.
	MaxBatch int

	// BatchDelay is the idle time inserted between batches to stay
	// under steady-state rate limits.
	BatchDelay time.Duration

	// PrefixQuery forces the page parameters to be appended with "&";
	// URLs already containing "?" are detected automatically.
	PrefixQuery bool
}

// DefaultOptions returns the default fetch parameters.
func DefaultOptions() Options {
	return Options{
		PerPage:    100,
		MaxBatch:   40,
		BatchDelay: 300 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.PerPage <= 0 {
		o.PerPage = 100
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = 40
	}
	if o.BatchDelay <= 0 {
		o.BatchDelay = 300 * time.Millisecond
	}
	return o
}

// Fetcher fetches every page of one paginated collection.
type Fetcher struct {
	api    PageClient
	opts   Options
	logger zerolog.Logger
}

// NewFetcher creates a fetcher over the given client.
func NewFetcher(api PageClient, opts Options) *Fetcher {
	return &Fetcher{
		api:    api,
		opts:   opts.withDefaults(),
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll returns the full records of every page, appended in page
// order. Failure to obtain the first page is fatal; later page failures
// are logged and skipped.
func (f *Fetcher) FetchAll(ctx context.Context, baseURL string) ([]any, error) {
	rs := newResultSet("")
	if err := f.run(ctx, baseURL, rs); err != nil {
		return nil, err
	}
	return rs.items, nil
}

// FetchField fetches one attribute across all pages cheaply. The result
// maps item id to {field: value}; duplicate ids are last-write-wins.
func (f *Fetcher) FetchField(ctx context.Context, baseURL, field string) (map[string]map[string]any, error) {
	rs := newResultSet(field)
	if err := f.run(ctx, baseURL, rs); err != nil {
		return nil, err
	}
	return rs.fields, nil
}

func (f *Fetcher) run(ctx context.Context, baseURL string, rs *resultSet) error {
	start := time.Now()
	ledger := client.NewRetryLedger()
	logger := f.logger.With().Str("op_id", uuid.NewString()).Str("endpoint", baseURL).Logger()

	firstURL := pageURL(baseURL, 1, f.opts)
	env := f.api.Process(ctx, f.api.NewRequest("GET", firstURL, nil), ledger)
	if env == nil || !env.OK() {
		return fmt.Errorf("%w: %s", client.ErrFirstPageFailed, baseURL)
	}

	items := pageItems(env)
	rs.merge(items)

	cur := newCursor()
	cur.observe(parseLinks(env.Header("link")), 1, len(items), f.opts.PerPage)

	logger.Debug().
		Int("total_pages", cur.TotalPages()).
		Bool("last_known", cur.LastPageKnown()).
		Bool("bookmark", cur.Mode() == ModeBookmark).
		Msg("First page inspected")

	if cur.Mode() == ModeNumeric {
		f.runNumeric(ctx, logger, baseURL, cur, ledger, rs)
	}
	if cur.Mode() == ModeBookmark {
		f.runBookmark(ctx, logger, cur, ledger, rs)
	}

	logger.Info().
		Int("pages", rs.pages).
		Int("items", rs.size()).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return nil
}

// runNumeric fetches pages 2..N in concurrent batches, growing the page
// estimate from batch evidence until a last-page signal fixes it.
func (f *Fetcher) runNumeric(ctx context.Context, logger zerolog.Logger, baseURL string, cur *Cursor, ledger *client.RetryLedger, rs *resultSet) {
	page := 2
	for cur.Mode() == ModeNumeric && page <= cur.TotalPages() {
		end := page + f.opts.MaxBatch - 1
		if end > cur.TotalPages() {
			end = cur.TotalPages()
		}

		envs := f.fetchBatch(ctx, baseURL, page, end, ledger)
		for i, env := range envs {
			p := page + i
			if env == nil {
				logger.Warn().Int("page", p).Msg("Page dropped after retries")
				continue
			}
			items := pageItems(env)
			rs.merge(items)
			cur.observe(parseLinks(env.Header("link")), p, len(items), f.opts.PerPage)
		}

		page = end + 1
		if cur.Mode() == ModeNumeric && page <= cur.TotalPages() {
			f.idle(ctx)
		}
	}
}

// runBookmark walks the cursor chain one page at a time. Exactly one
// request is in flight regardless of MaxBatch; a broken chain ends the
// walk with whatever accumulated.
func (f *Fetcher) runBookmark(ctx context.Context, logger zerolog.Logger, cur *Cursor, ledger *client.RetryLedger, rs *resultSet) {
	for {
		next := cur.takeNext()
		if next == "" {
			return
		}

		env := f.api.Process(ctx, f.api.NewRequest("GET", next, nil), ledger)
		if env == nil || !env.OK() {
			logger.Warn().Str("cursor", next).Msg("Bookmark page dropped, chain ends")
			return
		}

		items := pageItems(env)
		rs.merge(items)
		cur.observe(parseLinks(env.Header("link")), 0, len(items), f.opts.PerPage)
	}
}

// fetchBatch dispatches pages first..last concurrently in index order
// and waits for all of them. Per-page retries run inside Process and do
// not block sibling pages.
func (f *Fetcher) fetchBatch(ctx context.Context, baseURL string, first, last int, ledger *client.RetryLedger) []*transport.ResponseEnvelope {
	envs := make([]*transport.ResponseEnvelope, last-first+1)
	var wg sync.WaitGroup
	for p := first; p <= last; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			url := pageURL(baseURL, p, f.opts)
			envs[p-first] = f.api.Process(ctx, f.api.NewRequest("GET", url, nil), ledger)
		}(p)
	}
	wg.Wait()
	return envs
}

func (f *Fetcher) idle(ctx context.Context) {
	select {
	case <-time.After(f.opts.BatchDelay):
	case <-ctx.Done():
	}
}

// pageURL appends the pagination parameters to a collection URL.
func pageURL(base string, page int, opts Options) string {
	sep := "?"
	if opts.PrefixQuery || strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sper_page=%d&page=%d", base, sep, opts.PerPage, page)
}

// resultSet accumulates fetched records. With a field configured the
// canonical merge is an id-keyed map, last-write-wins on duplicates;
// otherwise full records append in page order.
type resultSet struct {
	field  string
	items  []any
	fields map[string]map[string]any
	pages  int
}

func newResultSet(field string) *resultSet {
	rs := &resultSet{field: field}
	if field != "" {
		rs.fields = make(map[string]map[string]any)
	}
	return rs
}

func (r *resultSet) merge(items []any) {
	r.pages++
	if r.field == "" {
		r.items = append(r.items, items...)
		return
	}
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := record["id"]
		if !ok {
			continue
		}
		value, ok := record[r.field]
		if !ok {
			continue
		}
		r.fields[idKey(id)] = map[string]any{r.field: value}
	}
}

func (r *resultSet) size() int {
	if r.field != "" {
		return len(r.fields)
	}
	return len(r.items)
}

// idKey canonicalizes a record id for map keying. JSON numbers decode
// as float64 and must not render in exponent notation.
func idKey(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// pageItems extracts the record array from a page envelope. Canvas list
// endpoints always return arrays; anything else counts as empty.
func pageItems(env *transport.ResponseEnvelope) []any {
	items, ok := env.Data.([]any)
	if !ok {
		return nil
	}
	return items
}
