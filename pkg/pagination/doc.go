// Package pagination discovers and fetches every page of a paginated
// Canvas collection.
//
// Canvas advertises pagination through the Link response header. Two
// schemes exist: numeric pages, where future page URLs can be computed
// and fetched speculatively in concurrent batches, and bookmark pages,
// where each page's URL is an opaque cursor only discoverable from the
// previous response and fetching must stay strictly sequential.
//
// The Fetcher handles one collection:
//
//	fetcher := pagination.NewFetcher(canvasClient, pagination.DefaultOptions())
//	items, err := fetcher.FetchAll(ctx, "/api/v1/courses/123/enrollments")
//
// The page-count estimate starts at one and only ever grows until a
// rel="last" link fixes it; overshooting costs a few wasted requests on
// small collections but overlaps work on large ones.
//
// The Aggregator runs the same discovery across many keys at once,
// interleaving newly discovered pages from all keys into one bounded
// queue so many-page keys do not starve few-page keys:
//
//	agg := pagination.NewAggregator(canvasClient, pagination.DefaultOptions())
//	byKey, err := agg.FetchAllForKeys(ctx, "/api/v1/courses/{key}/assignments", keys)
package pagination
