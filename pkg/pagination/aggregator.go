package pagination

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/campusops/canvas-client/pkg/client"
	"github.com/campusops/canvas-client/pkg/transport"
)

// KeyPlaceholder is the substring of a URL template replaced by each
// key, e.g. "/api/v1/courses/{key}/assignments".
const KeyPlaceholder = "{key}"

// Aggregator runs page discovery across many resource keys at once.
// Newly discovered pages from every key are interleaved into one
// bounded work queue, so keys with many pages do not starve keys with
// few. Failed pages are dropped with a warning; the aggregator favors
// partial completeness over all-or-nothing failure.
type Aggregator struct {
	api    PageClient
	opts   Options
	logger zerolog.Logger
}

// NewAggregator creates an aggregator over the given client.
func NewAggregator(api PageClient, opts Options) *Aggregator {
	return &Aggregator{
		api:    api,
		opts:   opts.withDefaults(),
		logger: log.With().Str("component", "aggregator").Logger(),
	}
}

// task is one queued page request for one key.
type task struct {
	key  string
	url  string
	page int
}

// keyState is the per-key pagination cursor and accumulation buffer.
// It is created when the key is first scheduled and handed to the
// caller as the final result.
type keyState struct {
	cursor    *Cursor
	items     []any
	scheduled int
}

// FetchAllForKeys fetches every page of the templated collection for
// every key and returns the accumulated items per key. The template
// must contain KeyPlaceholder.
func (a *Aggregator) FetchAllForKeys(ctx context.Context, template string, keys []string) (map[string][]any, error) {
	if !strings.Contains(template, KeyPlaceholder) {
		return nil, fmt.Errorf("url template %q lacks %s placeholder", template, KeyPlaceholder)
	}

	start := time.Now()
	ledger := client.NewRetryLedger()
	logger := a.logger.With().Str("op_id", uuid.NewString()).Logger()

	states := make(map[string]*keyState, len(keys))
	var queue []task
	for _, key := range keys {
		states[key] = &keyState{cursor: newCursor(), scheduled: 1}
		queue = append(queue, task{
			key:  key,
			url:  pageURL(a.keyURL(template, key), 1, a.opts),
			page: 1,
		})
	}

	pagesFetched := 0
	pagesDropped := 0
	for len(queue) > 0 {
		n := len(queue)
		if n > a.opts.MaxBatch {
			n = a.opts.MaxBatch
		}
		batch := queue[:n]
		queue = append([]task(nil), queue[n:]...)

		envs := a.drain(ctx, batch, ledger)
		for i, tk := range batch {
			env := envs[i]
			state := states[tk.key]
			if env == nil || !env.OK() {
				pagesDropped++
				logger.Warn().
					Str("key", tk.key).
					Int("page", tk.page).
					Msg("Page dropped, sibling keys unaffected")
				continue
			}

			items := pageItems(env)
			state.items = append(state.items, items...)
			state.cursor.observe(parseLinks(env.Header("link")), tk.page, len(items), a.opts.PerPage)
			pagesFetched++

			queue = append(queue, a.discovered(template, tk, state)...)
		}

		if len(queue) > 0 {
			a.idle(ctx)
		}
	}

	results := make(map[string][]any, len(states))
	for key, state := range states {
		results[key] = state.items
	}

	logger.Info().
		Int("keys", len(keys)).
		Int("pages", pagesFetched).
		Int("dropped", pagesDropped).
		Dur("duration", time.Since(start)).
		Msg("Multi-key fetch complete")
	return results, nil
}

// discovered returns the page tasks newly revealed by one response:
// the next bookmark cursor, or the numeric pages between the highest
// page already scheduled and the current estimate.
func (a *Aggregator) discovered(template string, tk task, state *keyState) []task {
	if state.cursor.Mode() == ModeBookmark {
		if next := state.cursor.takeNext(); next != "" {
			return []task{{key: tk.key, url: next, page: tk.page + 1}}
		}
		return nil
	}

	var tasks []task
	base := a.keyURL(template, tk.key)
	for p := state.scheduled + 1; p <= state.cursor.TotalPages(); p++ {
		tasks = append(tasks, task{key: tk.key, url: pageURL(base, p, a.opts), page: p})
	}
	if state.cursor.TotalPages() > state.scheduled {
		state.scheduled = state.cursor.TotalPages()
	}
	return tasks
}

// drain runs one batch of tasks concurrently, dispatching in queue
// order and waiting for the whole batch.
func (a *Aggregator) drain(ctx context.Context, batch []task, ledger *client.RetryLedger) []*transport.ResponseEnvelope {
	envs := make([]*transport.ResponseEnvelope, len(batch))
	var wg sync.WaitGroup
	for i, tk := range batch {
		wg.Add(1)
		go func(i int, tk task) {
			defer wg.Done()
			envs[i] = a.api.Process(ctx, a.api.NewRequest("GET", tk.url, nil), ledger)
		}(i, tk)
	}
	wg.Wait()
	return envs
}

func (a *Aggregator) keyURL(template, key string) string {
	return strings.ReplaceAll(template, KeyPlaceholder, key)
}

func (a *Aggregator) idle(ctx context.Context) {
	select {
	case <-time.After(a.opts.BatchDelay):
	case <-ctx.Done():
	}
}
