// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest tracks the shards of one load cycle from fetch to
// persistence. Every shard gets a task; the cycle completes exactly once,
// when the last task settles, and only then are the accumulated papers
// deduplicated, bulk-loaded into the store, and handed to the indexer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-explorer/internal/progress"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

// ErrNotComplete is returned by Flush before every task has settled.
var ErrNotComplete = errors.New("ingestion cycle has unsettled tasks")

// Store is the persistence the coordinator loads into.
type Store interface {
	BulkInsert(ctx context.Context, papers []types.Paper) error
}

// Indexer receives the persisted paper set once the store accepts it.
type Indexer interface {
	Index(ctx context.Context, papers []types.Paper) error
}

// Summary holds the outcome of one load cycle.
type Summary struct {
	Tasks       int  `json:"tasks" yaml:"tasks"`
	FailedTasks int  `json:"failed_tasks" yaml:"failed_tasks"`
	Raw         int  `json:"raw_records" yaml:"raw_records"`
	Unique      int  `json:"unique_records" yaml:"unique_records"`
	Duplicates  int  `json:"duplicates_removed" yaml:"duplicates_removed"`
	MissingID   int  `json:"missing_id" yaml:"missing_id"`
	NoData      bool `json:"no_data" yaml:"no_data"`
	DataReady   bool `json:"data_ready" yaml:"data_ready"`
}

// HasFailures reports whether any shard failed to fetch or decode.
func (s Summary) HasFailures() bool {
	return s.FailedTasks > 0
}

// Coordinator owns the tasks and accumulation buffer of one cycle at a
// time. It is safe for concurrent use.
type Coordinator struct {
	store   Store
	indexer Indexer
	tracker *progress.Tracker
	log     zerolog.Logger

	mu        sync.Mutex
	tasks     map[string]*types.IngestionTask
	order     []string
	settled   int
	failed    int
	completed bool
	flushed   bool
	buffer    []types.Paper
}

// NewCoordinator returns a Coordinator that loads into store and hands
// persisted papers to indexer (may be nil). tracker may be nil.
func NewCoordinator(store Store, indexer Indexer, tracker *progress.Tracker, log zerolog.Logger) *Coordinator {
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Coordinator{
		store:   store,
		indexer: indexer,
		tracker: tracker,
		log:     log.With().Str("component", "ingest").Logger(),
		tasks:   make(map[string]*types.IngestionTask),
	}
}

// Reset drops all tasks and buffered papers, ready for a new cycle.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = make(map[string]*types.IngestionTask)
	c.order = nil
	c.settled = 0
	c.failed = 0
	c.completed = false
	c.flushed = false
	c.buffer = nil
}

// Begin creates one pending task per shard, in manifest order.
func (c *Coordinator) Begin(refs []types.ShardRef) []types.IngestionTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.IngestionTask, 0, len(refs))
	for _, ref := range refs {
		t := &types.IngestionTask{
			ID:       uuid.NewString(),
			FilePath: ref.Path,
			Status:   types.TaskPending,
		}
		c.tasks[t.ID] = t
		c.order = append(c.order, t.ID)
		out = append(out, *t)
	}
	return out
}

// Settle records the outcome of task id. A nil err with a batch marks it
// done and buffers the batch's papers; a non-nil err marks it failed.
// Unknown or already settled ids are ignored. Settle returns true exactly
// once per cycle: for the call that settles the last pending task.
func (c *Coordinator) Settle(id string, batch *types.Batch, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[id]
	if !ok {
		c.log.Warn().Str("task", id).Msg("settle for unknown task ignored")
		return false
	}
	if t.Status.Settled() {
		c.log.Warn().Str("task", id).Str("status", string(t.Status)).Msg("task already settled")
		return false
	}

	if err == nil && batch == nil {
		err = errors.New("no batch decoded")
	}
	if err != nil {
		t.Status = types.TaskError
		t.Err = err.Error()
		c.failed++
		c.log.Warn().Err(err).Str("file", t.FilePath).Msg("shard failed")
	} else {
		t.Status = types.TaskDone
		c.buffer = append(c.buffer, batch.Papers...)
		c.log.Debug().Str("file", t.FilePath).Int("papers", len(batch.Papers)).Msg("shard decoded")
	}

	c.settled++
	c.tracker.Report(progress.Decompress, c.settled, len(c.tasks))

	if c.settled == len(c.tasks) && !c.completed {
		c.completed = true
		return true
	}
	return false
}

// Tasks returns a snapshot of every task in manifest order.
func (c *Coordinator) Tasks() []types.IngestionTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.IngestionTask, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.tasks[id])
	}
	return out
}

// Complete reports whether every task has settled.
func (c *Coordinator) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled == len(c.tasks)
}

// Flush ends the cycle: it deduplicates the buffered papers, bulk-loads
// them, and passes the persisted set to the indexer. A store failure is
// returned as-is and leaves data not ready. The buffer is always emptied.
func (c *Coordinator) Flush(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	if c.settled != len(c.tasks) {
		c.mu.Unlock()
		return Summary{}, ErrNotComplete
	}
	if c.flushed {
		c.mu.Unlock()
		return Summary{}, errors.New("ingestion cycle already flushed")
	}
	c.flushed = true
	raw := c.buffer
	c.buffer = nil
	sum := Summary{Tasks: len(c.tasks), FailedTasks: c.failed, Raw: len(raw)}
	c.mu.Unlock()

	unique, missing := Dedupe(raw)
	sum.Unique = len(unique)
	sum.MissingID = missing
	sum.Duplicates = len(raw) - len(unique) - missing

	if sum.Duplicates > 0 {
		c.log.Warn().Int("duplicates", sum.Duplicates).Msg("removed duplicate papers")
	}
	if len(unique) == 0 {
		sum.NoData = true
		c.log.Info().Int("tasks", sum.Tasks).Int("failed", sum.FailedTasks).Msg("no papers to load")
		return sum, nil
	}

	if err := c.store.BulkInsert(ctx, unique); err != nil {
		return sum, err
	}
	sum.DataReady = true
	c.log.Info().Int("papers", sum.Unique).Int("failed_shards", sum.FailedTasks).Msg("papers loaded")

	if c.indexer != nil {
		if err := c.indexer.Index(ctx, unique); err != nil {
			return sum, fmt.Errorf("indexing loaded papers: %w", err)
		}
	}
	return sum, nil
}

// Dedupe keeps the first paper seen for each id, in first-seen order,
// and drops papers with no id. It returns the kept papers and the number
// dropped for a missing id.
func Dedupe(papers []types.Paper) ([]types.Paper, int) {
	seen := make(map[string]struct{}, len(papers))
	out := make([]types.Paper, 0, len(papers))
	missing := 0
	for _, p := range papers {
		if p.ID == "" {
			missing++
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, missing
}
