// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-explorer/internal/progress"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

// Sender is the part of Client the feeder uses.
type Sender interface {
	Add(docs []types.IndexDocument) error
	SignalReady() error
	Alive() bool
}

// Feeder streams a loaded paper set into an index worker in fixed-size
// batches, pausing between batches so the worker's inbox never floods.
type Feeder struct {
	sender    Sender
	batchSize int
	limiter   *rate.Limiter
	tracker   *progress.Tracker
	log       zerolog.Logger

	// OnBatch, when set, is called after each batch is handed over.
	OnBatch func(docs int)
}

// NewFeeder returns a Feeder sending to sender with the batch size and
// pause from cfg. tracker may be nil.
func NewFeeder(sender Sender, cfg types.IndexConfig, tracker *progress.Tracker, log zerolog.Logger) *Feeder {
	size := cfg.BatchSize
	if size <= 0 {
		size = types.DefaultBatchSize
	}
	limit := rate.Inf
	if cfg.BatchPause > 0 {
		limit = rate.Every(cfg.BatchPause)
	}
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Feeder{
		sender:    sender,
		batchSize: size,
		limiter:   rate.NewLimiter(limit, 1),
		tracker:   tracker,
		log:       log.With().Str("component", "index-feeder").Logger(),
	}
}

// Index sends papers in batches and then signals ready. If the worker
// goes away mid-stream Index stops and returns nil; only context
// cancellation is reported as an error.
func (f *Feeder) Index(ctx context.Context, papers []types.Paper) error {
	total := (len(papers) + f.batchSize - 1) / f.batchSize
	f.tracker.Enter(progress.Index)

	for sent := 0; sent < total; sent++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("pacing index batches: %w", err)
		}
		if !f.sender.Alive() {
			f.log.Warn().Int("sent", sent).Int("batches", total).Msg("index worker gone, stopping feed")
			return nil
		}

		start := sent * f.batchSize
		end := min(start+f.batchSize, len(papers))
		docs := make([]types.IndexDocument, 0, end-start)
		for _, p := range papers[start:end] {
			docs = append(docs, types.NewIndexDocument(p))
		}

		if err := f.sender.Add(docs); err != nil {
			if errors.Is(err, ErrWorkerGone) {
				f.log.Warn().Int("sent", sent).Int("batches", total).Msg("index worker gone, stopping feed")
				return nil
			}
			return fmt.Errorf("sending index batch %d: %w", sent, err)
		}
		if f.OnBatch != nil {
			f.OnBatch(len(docs))
		}
		f.tracker.Report(progress.Index, sent+1, total)
	}

	if !f.sender.Alive() {
		return nil
	}
	if err := f.sender.SignalReady(); err != nil {
		if errors.Is(err, ErrWorkerGone) {
			return nil
		}
		return fmt.Errorf("signalling index ready: %w", err)
	}
	f.log.Debug().Int("papers", len(papers)).Int("batches", total).Msg("index feed complete")
	return nil
}
