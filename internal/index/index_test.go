package index

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-explorer/internal/progress"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

// --- test helpers ---

// fakeBackend matches a query against ids listed per field.
type fakeBackend struct {
	mu     sync.Mutex
	docs   []types.IndexDocument
	failOn string
	closed bool
}

func (b *fakeBackend) Add(_ context.Context, docs []types.IndexDocument) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range docs {
		if d.ID == b.failOn {
			return errors.New("backend rejected batch")
		}
	}
	b.docs = append(b.docs, docs...)
	return nil
}

func (b *fakeBackend) Search(_ context.Context, query string, limit int) ([][]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var titles, abstracts []string
	for _, d := range b.docs {
		if d.Title == query && len(titles) < limit {
			titles = append(titles, d.ID)
		}
		if d.Abstract == query && len(abstracts) < limit {
			abstracts = append(abstracts, d.ID)
		}
	}
	return [][]string{titles, abstracts}, nil
}

func (b *fakeBackend) Reset(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs = nil
	return nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBackend) ids() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []string
	for _, d := range b.docs {
		ids = append(ids, d.ID)
	}
	return ids
}

// gatedFactory returns a factory that blocks until release is closed.
func gatedFactory(b Backend, err error) (BackendFactory, chan struct{}) {
	release := make(chan struct{})
	return func(ctx context.Context) (Backend, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return b, err
	}, release
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case e, ok := <-c.Events():
		require.True(t, ok, "event channel closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func startWorker(t *testing.T, factory BackendFactory) *Client {
	t.Helper()
	c := Start(context.Background(), factory, zerolog.Nop())
	t.Cleanup(c.Close)
	return c
}

func docs(ids ...string) []types.IndexDocument {
	out := make([]types.IndexDocument, len(ids))
	for i, id := range ids {
		out[i] = types.IndexDocument{ID: id, Title: "t-" + id, Abstract: "shared"}
	}
	return out
}

// --- worker ---

func TestSearchBeforeReady(t *testing.T) {
	b := &fakeBackend{}
	factory, release := gatedFactory(b, nil)
	c := startWorker(t, factory)

	require.NoError(t, c.Search("shared", 10))
	e := nextEvent(t, c)
	assert.Equal(t, EventSearchResults, e.Type)
	assert.Equal(t, "shared", e.Query)
	assert.Equal(t, ErrTextNotReady, e.Err)
	assert.NotNil(t, e.Results)
	assert.Empty(t, e.Results)

	// Adds and the ready signal arrive before the backend exists.
	require.NoError(t, c.Add(docs("a", "b")))
	require.NoError(t, c.Add(docs("c")))
	require.NoError(t, c.SignalReady())
	close(release)

	e = nextEvent(t, c)
	assert.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, types.IndexReady, e.Status)
	assert.Equal(t, types.IndexReady, c.State())
	assert.Equal(t, []string{"a", "b", "c"}, b.ids(), "buffered adds flushed in order")

	require.NoError(t, c.Search("shared", 10))
	e = nextEvent(t, c)
	assert.Empty(t, e.Err)
	assert.Equal(t, []string{"a", "b", "c"}, e.Results)
}

func TestSearchMergesFieldsWithoutDuplicates(t *testing.T) {
	b := &fakeBackend{}
	c := startWorker(t, func(context.Context) (Backend, error) { return b, nil })

	require.NoError(t, c.Add([]types.IndexDocument{
		{ID: "1", Title: "x", Abstract: "y"},
		{ID: "2", Title: "y", Abstract: "x"},
		{ID: "3", Title: "x", Abstract: "x"},
	}))
	require.NoError(t, c.SignalReady())
	require.Equal(t, EventIndexStatus, nextEvent(t, c).Type)

	require.NoError(t, c.Search("x", 10))
	e := nextEvent(t, c)
	assert.Equal(t, []string{"1", "3", "2"}, e.Results)
}

func TestSearchResultsCappedAtLimit(t *testing.T) {
	b := &fakeBackend{}
	c := startWorker(t, func(context.Context) (Backend, error) { return b, nil })

	// Three title matches and three different abstract matches.
	require.NoError(t, c.Add([]types.IndexDocument{
		{ID: "1", Title: "x"},
		{ID: "2", Title: "x"},
		{ID: "3", Title: "x"},
		{ID: "4", Abstract: "x"},
		{ID: "5", Abstract: "x"},
		{ID: "6", Abstract: "x"},
	}))
	require.NoError(t, c.SignalReady())
	require.Equal(t, EventIndexStatus, nextEvent(t, c).Type)

	require.NoError(t, c.Search("x", 4))
	e := nextEvent(t, c)
	assert.Equal(t, []string{"1", "2", "3", "4"}, e.Results)
}

func TestResetClearsIndex(t *testing.T) {
	b := &fakeBackend{}
	c := startWorker(t, func(context.Context) (Backend, error) { return b, nil })

	require.NoError(t, c.Reset(1))
	require.NoError(t, c.Add(docs("old1", "old2")))
	require.NoError(t, c.SignalReady())
	e := nextEvent(t, c)
	require.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, uint64(1), e.Cycle)

	require.NoError(t, c.Reset(2))
	require.NoError(t, c.Search("shared", 10))
	e = nextEvent(t, c)
	assert.Equal(t, ErrTextNotReady, e.Err, "reset returns the worker to accepting writes")
	assert.Equal(t, uint64(2), e.Cycle)
	assert.Equal(t, types.IndexAcceptingWrites, c.State())

	require.NoError(t, c.Add(docs("new")))
	require.NoError(t, c.SignalReady())
	e = nextEvent(t, c)
	require.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, uint64(2), e.Cycle)

	require.NoError(t, c.Search("shared", 10))
	e = nextEvent(t, c)
	assert.Equal(t, []string{"new"}, e.Results)
	assert.Equal(t, []string{"new"}, b.ids())
}

func TestResetIgnoresOlderCycle(t *testing.T) {
	b := &fakeBackend{}
	c := startWorker(t, func(context.Context) (Backend, error) { return b, nil })

	require.NoError(t, c.Reset(3))
	require.NoError(t, c.Add(docs("a")))
	require.NoError(t, c.Reset(2))
	require.NoError(t, c.SignalReady())

	e := nextEvent(t, c)
	assert.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, uint64(3), e.Cycle)
	assert.Equal(t, []string{"a"}, b.ids())
}

func TestResetBeforeBackendDropsBuffered(t *testing.T) {
	b := &fakeBackend{}
	factory, release := gatedFactory(b, nil)
	c := startWorker(t, factory)

	require.NoError(t, c.Add(docs("stale")))
	require.NoError(t, c.SignalReady())
	require.NoError(t, c.Reset(1))
	require.NoError(t, c.Add(docs("fresh")))
	require.NoError(t, c.SignalReady())
	close(release)

	e := nextEvent(t, c)
	assert.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, uint64(1), e.Cycle)
	assert.Equal(t, []string{"fresh"}, b.ids())
}

func TestAddErrorSkipsBatch(t *testing.T) {
	b := &fakeBackend{failOn: "bad"}
	c := startWorker(t, func(context.Context) (Backend, error) { return b, nil })

	require.NoError(t, c.Add(docs("a")))
	require.NoError(t, c.Add(docs("bad", "b")))
	require.NoError(t, c.Add(append(docs("c"), types.IndexDocument{Title: "no id"})))
	require.NoError(t, c.SignalReady())

	e := nextEvent(t, c)
	assert.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, []string{"a", "c"}, b.ids())
}

func TestInitFailure(t *testing.T) {
	c := startWorker(t, func(context.Context) (Backend, error) {
		return nil, errors.New("no memory")
	})

	e := nextEvent(t, c)
	assert.Equal(t, EventError, e.Type)
	assert.Equal(t, ErrIndexInit.Error(), e.Message)
	assert.Equal(t, "no memory", e.Detail)

	require.NoError(t, c.Add(docs("a")))
	require.NoError(t, c.Search("a", 10))
	e = nextEvent(t, c)
	assert.Equal(t, EventSearchResults, e.Type)
	assert.Equal(t, ErrTextUnavailable, e.Err)
	assert.Equal(t, types.IndexUninitialized, c.State())
}

func TestCloseStopsWorker(t *testing.T) {
	b := &fakeBackend{}
	c := Start(context.Background(), func(context.Context) (Backend, error) { return b, nil }, zerolog.Nop())
	require.NoError(t, c.SignalReady())
	require.Equal(t, EventIndexStatus, nextEvent(t, c).Type)

	c.Close()
	assert.False(t, c.Alive())
	assert.ErrorIs(t, c.Add(docs("a")), ErrWorkerGone)
	assert.ErrorIs(t, c.Search("a", 1), ErrWorkerGone)
	_, ok := <-c.Events()
	assert.False(t, ok)
	assert.True(t, b.closed)

	c.Close()
}

// --- feeder ---

type recordingSender struct {
	mu        sync.Mutex
	batches   [][]string
	ready     int
	aliveFor  int
	addCalled int
}

func (s *recordingSender) Add(d []types.IndexDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalled++
	ids := make([]string, len(d))
	for i, doc := range d {
		ids[i] = doc.ID
	}
	s.batches = append(s.batches, ids)
	return nil
}

func (s *recordingSender) SignalReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready++
	return nil
}

func (s *recordingSender) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveFor < 0 || s.addCalled < s.aliveFor
}

func papers(ids ...string) []types.Paper {
	out := make([]types.Paper, len(ids))
	for i, id := range ids {
		out[i] = types.Paper{ID: id, Title: "T" + id, Abstract: "A" + id, Journal: "J"}
	}
	return out
}

func TestFeederBatchesAndSignalsReady(t *testing.T) {
	s := &recordingSender{aliveFor: -1}
	var updates []float64
	tracker := progress.NewTracker(func(u progress.Update) { updates = append(updates, u.Percent) })

	f := NewFeeder(s, types.IndexConfig{BatchSize: 2, BatchPause: time.Millisecond}, tracker, zerolog.Nop())
	var sent int
	f.OnBatch = func(n int) { sent += n }

	require.NoError(t, f.Index(context.Background(), papers("1", "2", "3", "4", "5")))

	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, s.batches)
	assert.Equal(t, 1, s.ready)
	assert.Equal(t, 5, sent)
	require.NotEmpty(t, updates)
	assert.Equal(t, progress.Index.Start, updates[0])
	assert.Equal(t, progress.Index.End, updates[len(updates)-1])
	assert.IsNonDecreasing(t, updates)
}

func TestFeederStopsWhenWorkerGone(t *testing.T) {
	s := &recordingSender{aliveFor: 1}
	f := NewFeeder(s, types.IndexConfig{BatchSize: 1}, nil, zerolog.Nop())

	require.NoError(t, f.Index(context.Background(), papers("1", "2", "3")))
	assert.Len(t, s.batches, 1)
	assert.Zero(t, s.ready)
}

func TestFeederEmptySignalsReady(t *testing.T) {
	s := &recordingSender{aliveFor: -1}
	f := NewFeeder(s, types.IndexConfig{}, nil, zerolog.Nop())

	require.NoError(t, f.Index(context.Background(), nil))
	assert.Empty(t, s.batches)
	assert.Equal(t, 1, s.ready)
}

func TestFeederHonoursCancellation(t *testing.T) {
	s := &recordingSender{aliveFor: -1}
	f := NewFeeder(s, types.IndexConfig{BatchSize: 1, BatchPause: time.Hour}, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Index(ctx, papers("1", "2"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, s.ready)
}

func TestFeederIntoWorker(t *testing.T) {
	b := &fakeBackend{}
	c := startWorker(t, func(context.Context) (Backend, error) { return b, nil })
	f := NewFeeder(c, types.IndexConfig{BatchSize: 2}, nil, zerolog.Nop())

	require.NoError(t, f.Index(context.Background(), papers("1", "2", "3")))
	e := nextEvent(t, c)
	assert.Equal(t, EventIndexStatus, e.Type)
	assert.Equal(t, []string{"1", "2", "3"}, b.ids())
}
