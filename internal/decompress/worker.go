// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package decompress runs shard decoding off the controlling goroutine.
// Callers submit a Request and later receive exactly one Response carrying
// the same ID and file path, in whatever order the work finishes.
package decompress

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/pdiddy/paper-explorer/internal/codec"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("decompress worker closed")

// Request is one unit of work. Submit takes ownership of Data; the
// caller must not read or modify it afterwards.
type Request struct {
	ID       string
	Data     []byte
	FilePath string
}

// Response is the outcome of one Request. Exactly one of Batch and Err
// is set.
type Response struct {
	ID       string
	FilePath string
	Batch    *types.Batch
	Err      error
}

// DecodeFunc turns shard bytes into a batch.
type DecodeFunc func([]byte) (*types.Batch, error)

// Worker decodes requests concurrently with no cap: every submitted
// request starts immediately in its own goroutine.
type Worker struct {
	decode DecodeFunc
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
	pool   *pool.Pool
	out    chan Response
	queue  []Response
	wake   chan struct{}
	done   chan struct{}
}

// NewWorker returns a running Worker that decodes with codec.DecodeBatch.
func NewWorker(log zerolog.Logger) *Worker {
	return NewWorkerWithDecoder(codec.DecodeBatch, log)
}

// NewWorkerWithDecoder returns a running Worker using decode.
func NewWorkerWithDecoder(decode DecodeFunc, log zerolog.Logger) *Worker {
	w := &Worker{
		decode: decode,
		log:    log.With().Str("component", "decompress").Logger(),
		pool:   pool.New(),
		out:    make(chan Response),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.deliver()
	return w
}

// Responses returns the channel on which every Response is delivered.
// It is closed after Close once all in-flight work has been delivered.
func (w *Worker) Responses() <-chan Response {
	return w.out
}

// Submit starts decoding req. It never blocks on the consumer: responses
// queue internally until read.
func (w *Worker) Submit(req Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.pool.Go(func() { w.enqueue(w.process(req)) })
	return nil
}

// Close stops accepting requests, waits for in-flight work, and closes
// the response channel once every queued response has been read.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.pool.Wait()
	close(w.done)
}

func (w *Worker) process(req Request) Response {
	resp := Response{ID: req.ID, FilePath: req.FilePath}
	if len(req.Data) == 0 {
		resp.Err = &codec.DecodeError{Reason: "no data received"}
		return resp
	}

	batch, err := w.decode(req.Data)
	if err != nil {
		w.log.Warn().Err(err).Str("id", req.ID).Str("path", req.FilePath).Msg("decompression failed")
		resp.Err = err
		return resp
	}
	w.log.Debug().Str("id", req.ID).Str("path", req.FilePath).Int("papers", len(batch.Papers)).Msg("decompressed")
	resp.Batch = batch
	return resp
}

func (w *Worker) enqueue(r Response) {
	w.mu.Lock()
	w.queue = append(w.queue, r)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// deliver moves queued responses to the unbuffered out channel in the
// order they finished.
func (w *Worker) deliver() {
	defer close(w.out)
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			next := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()
			w.out <- next
			continue
		}
		w.mu.Unlock()

		select {
		case <-w.wake:
		case <-w.done:
			w.mu.Lock()
			empty := len(w.queue) == 0
			w.mu.Unlock()
			if empty {
				return
			}
		}
	}
}
