// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package explorer is the controlling session over the paper pipeline. It
// runs load cycles (manifest, fetch, decompress, dedupe, store, index),
// holds the view state (page, filters, sort view, search), and rejects
// search results that a newer query has superseded.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-explorer/internal/decompress"
	"github.com/pdiddy/paper-explorer/internal/fetch"
	"github.com/pdiddy/paper-explorer/internal/index"
	"github.com/pdiddy/paper-explorer/internal/ingest"
	"github.com/pdiddy/paper-explorer/internal/progress"
	"github.com/pdiddy/paper-explorer/internal/query"
	"github.com/pdiddy/paper-explorer/internal/store"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

var (
	// ErrLoadInProgress is returned when a load or reindex is started
	// while another is running.
	ErrLoadInProgress = errors.New("a load is already in progress")

	// ErrNoData is returned by queries before any papers are loaded.
	ErrNoData = errors.New("no papers loaded")

	// ErrSearchNotReady is returned by Search before the index reports
	// ready. The query is kept and issued once it does.
	ErrSearchNotReady = errors.New("search index is not ready")

	// ErrSearchUnavailable is returned once the index has failed.
	ErrSearchUnavailable = errors.New("search index is not available")
)

// Options are the collaborators of an Explorer. Every field is optional.
type Options struct {
	HTTPClient   *http.Client
	Registerer   prometheus.Registerer
	IndexBackend index.BackendFactory
	OnProgress   progress.Sink
}

// Status is a snapshot of the session.
type Status struct {
	Loading       bool            `json:"loading" yaml:"loading"`
	DataReady     bool            `json:"data_ready" yaml:"data_ready"`
	SearchReady   bool            `json:"search_ready" yaml:"search_ready"`
	SearchFailed  bool            `json:"search_failed" yaml:"search_failed"`
	Progress      float64         `json:"progress" yaml:"progress"`
	Page          int             `json:"page" yaml:"page"`
	Filters       types.FilterSet `json:"filters" yaml:"filters"`
	View          types.View      `json:"view" yaml:"view"`
	Query         string          `json:"query,omitempty" yaml:"query,omitempty"`
	SearchPending bool            `json:"search_pending" yaml:"search_pending"`
	SearchActive  bool            `json:"search_active" yaml:"search_active"`
	SearchError   string          `json:"search_error,omitempty" yaml:"search_error,omitempty"`
}

// Explorer owns the store, the index worker, and the view state.
type Explorer struct {
	cfg     types.ExplorerConfig
	log     zerolog.Logger
	store   *store.Store
	fetcher *fetch.Orchestrator
	coord   *ingest.Coordinator
	index   *index.Client
	feeder  *index.Feeder
	engine  *query.Engine
	tracker *progress.Tracker
	metrics *Metrics
	search  *debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	changed      chan struct{}
	loading      bool
	dataReady    bool
	searchReady  bool
	searchFailed bool

	// cycle numbers load and reindex cycles. Index events tagged with an
	// older cycle are ignored. fedCycle is the cycle whose feed last
	// started; feedDone closes when that feed's goroutine exits.
	cycle       uint64
	fedCycle    uint64
	indexCancel context.CancelFunc
	feedDone    chan struct{}

	page    int
	filters types.FilterSet
	view    types.View

	// query is the text last given to Search. activeQuery is the trimmed
	// query awaiting results; only results for it are accepted.
	query       string
	activeQuery string
	pending     bool
	searchIDs   []string
	searchErr   string
}

type indexerFunc func(ctx context.Context, papers []types.Paper) error

func (f indexerFunc) Index(ctx context.Context, papers []types.Paper) error {
	return f(ctx, papers)
}

// New opens the store under cfg.Store.DataDir and starts the index
// worker. Papers already in the store are available to queries at once;
// searching them needs Reindex.
func New(cfg types.ExplorerConfig, opts Options, log zerolog.Logger) (*Explorer, error) {
	cfg = cfg.WithDefaults()
	e := &Explorer{
		cfg:     cfg,
		log:     log.With().Str("component", "explorer").Logger(),
		metrics: NewMetrics(opts.Registerer),
		changed: make(chan struct{}),
		page:    1,
		view:    types.ViewDateAdded,
	}
	e.tracker = progress.NewTracker(func(u progress.Update) {
		e.metrics.Progress.Set(u.Percent)
		if opts.OnProgress != nil {
			opts.OnProgress(u)
		}
	})

	s, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	e.store = s

	e.fetcher, err = fetch.NewOrchestrator(opts.HTTPClient, cfg.Fetch, e.tracker, log)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("configuring fetch: %w", err)
	}

	n, err := s.Count(context.Background())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("counting stored papers: %w", err)
	}
	e.dataReady = n > 0

	factory := opts.IndexBackend
	if factory == nil {
		factory = index.NewFTSBackend
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.index = index.Start(e.ctx, factory, log)
	e.feeder = index.NewFeeder(e.index, cfg.Index, e.tracker, log)
	e.feeder.OnBatch = func(int) { e.metrics.IndexBatches.Inc() }
	e.coord = ingest.NewCoordinator(s, indexerFunc(e.startIndexing), e.tracker, log)
	e.engine = query.NewEngine(s, cfg.Query)
	e.search = newDebouncer(cfg.Query.SearchDebounce, func(q string) {
		if err := e.Search(q); err != nil && !errors.Is(err, ErrSearchNotReady) {
			e.log.Warn().Err(err).Str("query", q).Msg("search not issued")
		}
	})

	e.wg.Add(1)
	go e.consumeIndexEvents()

	e.log.Debug().Int("stored", n).Str("data_dir", cfg.Store.DataDir).Msg("explorer opened")
	return e, nil
}

// Close stops the index worker and closes the store.
func (e *Explorer) Close() error {
	e.search.Close()
	e.cancel()
	e.index.Close()
	e.wg.Wait()
	return e.store.Close()
}

// Metrics returns the session's counters.
func (e *Explorer) Metrics() *Metrics {
	return e.metrics
}

// --- load cycle ---

// Load runs one load cycle: it clears the store, fetches the manifest and
// every shard, decodes them as they arrive, and once every shard has
// settled stores the deduplicated papers and starts indexing them.
// Shard failures are counted in the summary; only manifest and store
// failures are returned as errors. An index feed left running by the
// previous cycle is stopped before progress restarts.
func (e *Explorer) Load(ctx context.Context) (ingest.Summary, error) {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return ingest.Summary{}, ErrLoadInProgress
	}
	e.loading = true
	e.dataReady = false
	e.beginCycleLocked()
	e.page = 1
	e.filters = types.FilterSet{}
	e.activeQuery = ""
	e.pending = false
	e.searchIDs = nil
	e.searchErr = ""
	e.notify()
	e.mu.Unlock()

	start := time.Now()
	e.stopFeed()
	e.tracker.Reset()
	e.coord.Reset()

	sum, err := e.load(ctx)

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		e.log.Error().Err(err).Msg("load failed")
	case sum.NoData:
		outcome = "no_data"
	}
	e.metrics.Loads.WithLabelValues(outcome).Inc()
	e.metrics.LoadDuration.Observe(time.Since(start).Seconds())
	if !sum.DataReady {
		e.tracker.Finish()
	}

	e.mu.Lock()
	e.loading = false
	e.dataReady = sum.DataReady
	e.notify()
	e.mu.Unlock()
	return sum, err
}

func (e *Explorer) load(ctx context.Context) (ingest.Summary, error) {
	if err := e.store.Clear(ctx); err != nil {
		return ingest.Summary{}, fmt.Errorf("clearing store: %w", err)
	}

	refs, err := e.fetcher.LoadManifest(ctx)
	if err != nil {
		return ingest.Summary{}, err
	}
	tasks := e.coord.Begin(refs)
	if len(tasks) == 0 {
		return e.flush(ctx)
	}

	worker := decompress.NewWorker(e.log)
	defer func() {
		// Responses nobody will read must still be drained.
		go func() {
			worker.Close()
			for range worker.Responses() {
			}
		}()
	}()

	results := e.fetcher.Stream(ctx, refs)
	responses := worker.Responses()
	for {
		select {
		case <-ctx.Done():
			return ingest.Summary{Tasks: len(tasks)}, fmt.Errorf("loading papers: %w", ctx.Err())

		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			task := tasks[r.Position()]
			if !r.OK() {
				e.metrics.ShardsFailed.WithLabelValues("fetch").Inc()
				if e.coord.Settle(task.ID, nil, r.Err) {
					return e.flush(ctx)
				}
				continue
			}
			e.metrics.ShardsFetched.Inc()
			req := decompress.Request{ID: task.ID, Data: r.Data, FilePath: r.Ref.Path}
			if err := worker.Submit(req); err != nil && e.coord.Settle(task.ID, nil, err) {
				return e.flush(ctx)
			}

		case resp := <-responses:
			if resp.Err != nil {
				e.metrics.ShardsFailed.WithLabelValues("decode").Inc()
			}
			if e.coord.Settle(resp.ID, resp.Batch, resp.Err) {
				return e.flush(ctx)
			}
		}
	}
}

func (e *Explorer) flush(ctx context.Context) (ingest.Summary, error) {
	sum, err := e.coord.Flush(ctx)
	e.metrics.DuplicatesRemoved.Add(float64(sum.Duplicates))
	if err != nil {
		return sum, fmt.Errorf("storing papers: %w", err)
	}
	if sum.DataReady {
		e.metrics.PapersLoaded.Add(float64(sum.Unique))
	}
	return sum, nil
}

// Tasks returns the ingestion tasks of the current or last load cycle.
func (e *Explorer) Tasks() []types.IngestionTask {
	return e.coord.Tasks()
}

// Reindex feeds the papers already in the store to the index worker
// without fetching anything. It returns the number of papers sent.
func (e *Explorer) Reindex(ctx context.Context) (int, error) {
	e.mu.Lock()
	if e.loading {
		e.mu.Unlock()
		return 0, ErrLoadInProgress
	}
	e.loading = true
	e.beginCycleLocked()
	e.notify()
	e.mu.Unlock()
	e.stopFeed()

	papers, err := e.store.All(ctx)
	if err == nil && len(papers) > 0 {
		e.tracker.Reset()
		err = e.startIndexing(ctx, papers)
	}

	e.mu.Lock()
	e.loading = false
	e.dataReady = len(papers) > 0
	e.notify()
	e.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("reading stored papers: %w", err)
	}
	if len(papers) == 0 {
		return 0, ErrNoData
	}
	return len(papers), nil
}

// beginCycleLocked starts a new cycle. Search is disabled until the new
// cycle's feed reports ready. Callers hold e.mu.
func (e *Explorer) beginCycleLocked() {
	e.cycle++
	if !e.searchFailed {
		e.searchReady = false
	}
}

// stopFeed cancels the running index feed, if any, and waits for its
// goroutine to exit so it can no longer report progress.
func (e *Explorer) stopFeed() {
	e.mu.Lock()
	cancel, done := e.indexCancel, e.feedDone
	e.indexCancel, e.feedDone = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// startIndexing empties the index and streams papers into it in the
// background for the current cycle.
func (e *Explorer) startIndexing(_ context.Context, papers []types.Paper) error {
	e.stopFeed()

	e.mu.Lock()
	cycle := e.cycle
	e.fedCycle = cycle
	if !e.searchFailed {
		e.searchReady = false
	}
	ctx, cancel := context.WithCancel(e.ctx)
	done := make(chan struct{})
	e.indexCancel, e.feedDone = cancel, done
	e.notify()
	e.mu.Unlock()

	// The reset is queued ahead of the feed's first add.
	if err := e.index.Reset(cycle); err != nil {
		e.log.Warn().Err(err).Uint64("cycle", cycle).Msg("resetting search index failed")
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(done)
		err := e.feeder.Index(ctx, papers)
		switch {
		case err != nil && ctx.Err() != nil:
			e.log.Debug().Uint64("cycle", cycle).Msg("index feed superseded")
		case err != nil:
			e.log.Error().Err(err).Msg("index feed failed")
			e.tracker.Finish()
		case !e.index.Alive():
			e.tracker.Finish()
		}
	}()
	return nil
}

// --- index events ---

func (e *Explorer) consumeIndexEvents() {
	defer e.wg.Done()
	for ev := range e.index.Events() {
		switch ev.Type {
		case index.EventIndexStatus:
			e.indexReady(ev)
		case index.EventSearchResults:
			e.acceptResults(ev)
		case index.EventError:
			e.indexFailed(ev)
		}
	}
}

// indexReady enables search and re-issues the current query, if any.
func (e *Explorer) indexReady(ev index.Event) {
	if ev.Status != types.IndexReady {
		return
	}

	e.mu.Lock()
	if ev.Cycle != e.cycle {
		e.mu.Unlock()
		e.log.Debug().Uint64("cycle", ev.Cycle).Uint64("current", e.cycle).Msg("ignoring ready from superseded index feed")
		return
	}
	// Progress reaches 100 before search is reported ready.
	e.tracker.Finish()
	e.searchReady = true
	q := strings.TrimSpace(e.query)
	if q != "" {
		e.beginSearchLocked(q)
	}
	e.notify()
	e.mu.Unlock()

	e.log.Info().Msg("search ready")
	if q != "" {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.sendSearch(q)
		}()
	}
}

func (e *Explorer) indexFailed(ev index.Event) {
	e.log.Error().Str("message", ev.Message).Str("detail", ev.Detail).Msg("search index error")

	e.mu.Lock()
	if ev.Cycle == e.cycle && e.fedCycle == e.cycle {
		e.tracker.Finish()
	}
	e.searchReady = false
	e.searchFailed = true
	if e.pending {
		e.pending = false
		e.searchIDs = []string{}
		e.searchErr = ev.Message
	}
	e.notify()
	e.mu.Unlock()
}

// acceptResults applies a search answer only if it is for the query
// still awaiting results. Anything else is stale and dropped.
func (e *Explorer) acceptResults(ev index.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pending || ev.Query != e.activeQuery {
		e.metrics.StaleResults.Inc()
		e.log.Debug().Str("query", ev.Query).Str("active", e.activeQuery).Msg("discarding stale search results")
		return
	}

	e.pending = false
	if ev.Err != "" {
		e.searchIDs = []string{}
		e.searchErr = ev.Err
	} else {
		e.searchIDs = ev.Results
		if e.searchIDs == nil {
			e.searchIDs = []string{}
		}
		e.searchErr = ""
	}
	e.notify()
}

// --- search ---

// SetSearchQuery records keystroke input. The query is issued once input
// has been quiet for the configured debounce delay.
func (e *Explorer) SetSearchQuery(q string) {
	e.search.Trigger(q)
}

// Search issues q at once and resets to the first page. A blank query
// clears the search. Results arrive asynchronously; see AwaitSearch.
func (e *Explorer) Search(q string) error {
	e.mu.Lock()
	e.query = q
	e.page = 1
	trimmed := strings.TrimSpace(q)

	if trimmed == "" {
		e.activeQuery = ""
		e.pending = false
		e.searchIDs = nil
		e.searchErr = ""
		e.notify()
		e.mu.Unlock()
		return nil
	}
	if !e.searchReady {
		e.activeQuery = ""
		e.pending = false
		e.searchIDs = nil
		failed := e.searchFailed
		e.notify()
		e.mu.Unlock()
		if failed {
			return ErrSearchUnavailable
		}
		return ErrSearchNotReady
	}

	e.beginSearchLocked(trimmed)
	e.notify()
	e.mu.Unlock()
	return e.sendSearch(trimmed)
}

// beginSearchLocked marks q as the query awaiting results. Results shown
// for an earlier query are withdrawn.
func (e *Explorer) beginSearchLocked(q string) {
	e.activeQuery = q
	e.pending = true
	e.searchIDs = nil
	e.searchErr = ""
}

func (e *Explorer) sendSearch(q string) error {
	err := e.index.Search(q, e.cfg.Index.SearchLimit)
	if err == nil {
		return nil
	}
	e.log.Warn().Err(err).Str("query", q).Msg("sending search failed")
	e.mu.Lock()
	if e.pending && e.activeQuery == q {
		e.pending = false
		e.searchIDs = []string{}
		e.searchErr = err.Error()
		e.notify()
	}
	e.mu.Unlock()
	return err
}

// --- view state ---

// SetFilter sets one filter dimension; an empty value clears it.
func (e *Explorer) SetFilter(d types.FilterDimension, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = e.filters.With(d, value)
	e.page = 1
	e.notify()
}

// ClearFilters removes every filter.
func (e *Explorer) ClearFilters() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filters = types.FilterSet{}
	e.page = 1
	e.notify()
}

// SetView changes the sort view.
func (e *Explorer) SetView(v types.View) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = v
	e.page = 1
	e.notify()
}

// SetPage moves to page n.
func (e *Explorer) SetPage(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page = n
	e.notify()
}

// CurrentPage resolves the page selected by the view state.
func (e *Explorer) CurrentPage(ctx context.Context) (query.Page, error) {
	e.mu.Lock()
	if !e.dataReady {
		page := query.Page{Records: []types.Paper{}, Number: e.page}
		e.mu.Unlock()
		return page, ErrNoData
	}
	req := query.Request{
		Page:      e.page,
		Filters:   e.filters,
		View:      e.view,
		SearchIDs: e.searchIDs,
	}
	e.mu.Unlock()
	return e.engine.ResolvePage(ctx, req)
}

// Facets returns the filter values available in the loaded papers.
func (e *Explorer) Facets(ctx context.Context) (query.Facets, error) {
	e.mu.Lock()
	ready := e.dataReady
	e.mu.Unlock()
	if !ready {
		return query.Facets{}, ErrNoData
	}
	return e.engine.Facets(ctx)
}

// Status returns a snapshot of the session.
func (e *Explorer) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Loading:       e.loading,
		DataReady:     e.dataReady,
		SearchReady:   e.searchReady,
		SearchFailed:  e.searchFailed,
		Progress:      e.tracker.Percent(),
		Page:          e.page,
		Filters:       e.filters,
		View:          e.view,
		Query:         e.query,
		SearchPending: e.pending,
		SearchActive:  e.searchIDs != nil,
		SearchError:   e.searchErr,
	}
}

// --- waiting ---

// AwaitSearchReady blocks until the index reports ready or fails.
func (e *Explorer) AwaitSearchReady(ctx context.Context) error {
	if err := e.wait(ctx, func() bool { return e.searchReady || e.searchFailed }); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.searchFailed {
		return ErrSearchUnavailable
	}
	return nil
}

// AwaitSearch blocks until no search is awaiting results.
func (e *Explorer) AwaitSearch(ctx context.Context) error {
	return e.wait(ctx, func() bool { return !e.pending })
}

// notify wakes every waiter. Callers hold e.mu.
func (e *Explorer) notify() {
	close(e.changed)
	e.changed = make(chan struct{})
}

// wait blocks until cond, evaluated under e.mu, holds.
func (e *Explorer) wait(ctx context.Context, cond func() bool) error {
	for {
		e.mu.Lock()
		if cond() {
			e.mu.Unlock()
			return nil
		}
		ch := e.changed
		e.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
