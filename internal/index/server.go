// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index runs the full-text search index in its own goroutine.
// The worker owns the index exclusively; callers talk to it only through
// an ordered, typed message channel and receive typed events back.
//
// The worker moves forward through three states. While uninitialized the
// backend is still being built: adds are buffered in arrival order and a
// ready signal is remembered. Once the backend exists the buffer is
// flushed and the worker accepts writes. A ready signal moves it to
// ready, after which searches are answered. A reset empties the index
// and returns a ready worker to accepting writes, so each load cycle is
// indexed from scratch.
package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-explorer/pkg/types"
)

// ErrWorkerGone is returned when sending to a worker that has exited.
var ErrWorkerGone = errors.New("index worker is not running")

// ErrIndexInit is reported in the error event when the backend cannot be
// built. Search stays unavailable for the rest of the session.
var ErrIndexInit = errors.New("failed to initialize search index")

const (
	inboxSize  = 16
	eventsSize = 64
)

type initResult struct {
	backend Backend
	err     error
}

// Client is the caller's handle on a running index worker.
type Client struct {
	inbox  chan Message
	events chan Event
	done   chan struct{}
	cancel context.CancelFunc
	state  atomic.Int32
	once   sync.Once
}

// worker is the state owned by the worker goroutine.
type worker struct {
	c        *Client
	factory  BackendFactory
	log      zerolog.Logger
	handlers map[MessageType]func(context.Context, Message)

	backend        Backend
	failed         bool
	buffered       [][]types.IndexDocument
	readyRequested bool
	cycle          uint64
}

// Start launches a worker that builds its backend with factory. The
// worker stops when ctx is cancelled or Close is called.
func Start(ctx context.Context, factory BackendFactory, log zerolog.Logger) *Client {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		inbox:  make(chan Message, inboxSize),
		events: make(chan Event, eventsSize),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	w := &worker{
		c:       c,
		factory: factory,
		log:     log.With().Str("component", "index").Logger(),
	}
	w.handlers = map[MessageType]func(context.Context, Message){
		MsgAdd:         w.handleAdd,
		MsgSearch:      w.handleSearch,
		MsgSignalReady: w.handleSignalReady,
		MsgReset:       w.handleReset,
	}
	go w.run(ctx)
	return c
}

// Add sends a batch of documents to index.
func (c *Client) Add(docs []types.IndexDocument) error {
	return c.send(Message{Type: MsgAdd, Docs: docs})
}

// SignalReady tells the worker that every document has been sent.
func (c *Client) SignalReady() error {
	return c.send(Message{Type: MsgSignalReady})
}

// Reset empties the index and starts cycle. Events emitted afterwards
// carry cycle.
func (c *Client) Reset(cycle uint64) error {
	return c.send(Message{Type: MsgReset, Cycle: cycle})
}

// Search asks for ids matching query. The answer arrives as an
// EventSearchResults carrying the same query.
func (c *Client) Search(query string, limit int) error {
	return c.send(Message{Type: MsgSearch, Query: query, Limit: limit})
}

// Events returns the channel of worker notifications. It is closed when
// the worker exits. Callers must keep reading it while the worker runs.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Alive reports whether the worker is still running.
func (c *Client) Alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// State returns the worker's current state.
func (c *Client) State() types.IndexState {
	return types.IndexState(c.state.Load())
}

// Close stops the worker and waits for it to exit.
func (c *Client) Close() {
	c.once.Do(c.cancel)
	<-c.done
}

func (c *Client) send(m Message) error {
	select {
	case <-c.done:
		return ErrWorkerGone
	default:
	}
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrWorkerGone
	}
}

func (w *worker) run(ctx context.Context) {
	defer func() {
		if w.backend != nil {
			w.backend.Close()
		}
		close(w.c.done)
		close(w.c.events)
	}()

	initc := make(chan initResult, 1)
	go func() {
		b, err := w.factory(ctx)
		initc <- initResult{backend: b, err: err}
	}()

	for {
		select {
		case <-ctx.Done():
			// A backend built after cancellation still needs closing.
			if w.backend == nil && !w.failed {
				if r := <-initc; r.err == nil && r.backend != nil {
					r.backend.Close()
				}
			}
			return
		case r := <-initc:
			w.initialized(ctx, r)
		case m := <-w.c.inbox:
			h, ok := w.handlers[m.Type]
			if !ok {
				w.log.Warn().Str("type", string(m.Type)).Msg("unknown message type")
				continue
			}
			h(ctx, m)
		}
	}
}

func (w *worker) setState(s types.IndexState) {
	w.c.state.Store(int32(s))
}

func (w *worker) emit(ctx context.Context, e Event) {
	e.Cycle = w.cycle
	select {
	case w.c.events <- e:
	case <-ctx.Done():
	}
}

func (w *worker) initialized(ctx context.Context, r initResult) {
	if r.err != nil {
		w.failed = true
		w.buffered = nil
		w.log.Error().Err(r.err).Msg("search index initialization failed")
		w.emit(ctx, Event{Type: EventError, Message: ErrIndexInit.Error(), Detail: r.err.Error()})
		return
	}

	w.backend = r.backend
	w.setState(types.IndexAcceptingWrites)
	w.log.Debug().Msg("search index created")

	if len(w.buffered) > 0 {
		w.log.Debug().Int("batches", len(w.buffered)).Msg("flushing buffered documents")
		w.flush(ctx)
	}
	if w.readyRequested {
		w.markReady(ctx)
	}
}

func (w *worker) handleAdd(ctx context.Context, m Message) {
	docs := make([]types.IndexDocument, 0, len(m.Docs))
	for _, d := range m.Docs {
		if d.ID == "" {
			w.log.Warn().Msg("skipping document without id")
			continue
		}
		docs = append(docs, d)
	}
	if len(docs) == 0 {
		return
	}

	switch {
	case w.failed:
		w.log.Warn().Int("docs", len(docs)).Msg("search index unavailable, dropping documents")
	case w.backend == nil:
		w.buffered = append(w.buffered, docs)
	default:
		w.add(ctx, docs)
	}
}

// add indexes one batch. A failed batch is logged and skipped.
func (w *worker) add(ctx context.Context, docs []types.IndexDocument) {
	if err := w.backend.Add(ctx, docs); err != nil {
		w.log.Error().Err(err).Int("docs", len(docs)).Msg("adding documents failed, batch skipped")
		return
	}
	w.log.Debug().Int("docs", len(docs)).Msg("documents added")
}

func (w *worker) flush(ctx context.Context) {
	for _, docs := range w.buffered {
		w.add(ctx, docs)
	}
	w.buffered = nil
}

func (w *worker) handleSignalReady(ctx context.Context, _ Message) {
	switch {
	case w.failed:
		w.emit(ctx, Event{Type: EventError, Message: ErrTextUnavailable})
	case w.backend == nil:
		w.readyRequested = true
	default:
		w.markReady(ctx)
	}
}

// handleReset drops everything indexed or buffered so far. Resets for an
// older cycle than the current one are ignored.
func (w *worker) handleReset(ctx context.Context, m Message) {
	if m.Cycle < w.cycle {
		w.log.Debug().Uint64("cycle", m.Cycle).Uint64("current", w.cycle).Msg("ignoring reset for older cycle")
		return
	}
	w.cycle = m.Cycle
	w.buffered = nil
	w.readyRequested = false
	if w.failed || w.backend == nil {
		return
	}

	if err := w.backend.Reset(ctx); err != nil {
		w.log.Error().Err(err).Uint64("cycle", m.Cycle).Msg("clearing search index failed")
	}
	w.setState(types.IndexAcceptingWrites)
	w.log.Debug().Uint64("cycle", m.Cycle).Msg("search index reset")
}

func (w *worker) markReady(ctx context.Context) {
	if len(w.buffered) > 0 {
		w.flush(ctx)
	}
	w.readyRequested = false
	w.setState(types.IndexReady)
	w.log.Info().Msg("search index ready")
	w.emit(ctx, Event{Type: EventIndexStatus, Status: types.IndexReady})
}

func (w *worker) handleSearch(ctx context.Context, m Message) {
	reply := Event{Type: EventSearchResults, Query: m.Query, Results: []string{}}

	switch {
	case w.failed:
		reply.Err = ErrTextUnavailable
	case types.IndexState(w.c.state.Load()) != types.IndexReady:
		reply.Err = ErrTextNotReady
	default:
		limit := m.Limit
		if limit <= 0 {
			limit = types.DefaultSearchLimit
		}
		perField, err := w.backend.Search(ctx, m.Query, limit)
		if err != nil {
			w.log.Error().Err(err).Str("query", m.Query).Msg("search failed")
			reply.Err = err.Error()
			break
		}
		reply.Results = mergeIDs(perField, limit)
		w.log.Debug().Str("query", m.Query).Int("results", len(reply.Results)).Msg("search answered")
	}

	w.emit(ctx, reply)
}

// mergeIDs flattens per-field results into one list of at most limit
// ids, keeping the first occurrence of each id.
func mergeIDs(perField [][]string, limit int) []string {
	seen := make(map[string]struct{})
	merged := []string{}
	for _, ids := range perField {
		for _, id := range ids {
			if len(merged) == limit {
				return merged
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
