// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads the shard manifest and fans out one request per
// shard. Each shard settles on its own; a failed shard never cancels its
// siblings.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/pdiddy/paper-explorer/internal/httputil"
	"github.com/pdiddy/paper-explorer/internal/progress"
	"github.com/pdiddy/paper-explorer/pkg/types"
)

// ManifestError is fatal to a load cycle: without a manifest no shard is
// known.
type ManifestError struct {
	URL string
	Err error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("fetching manifest %s: %v", e.URL, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// FetchError reports one shard that could not be downloaded.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Result is the outcome of one shard fetch. Exactly one of Data and Err
// is set. Ownership of Data passes to whoever receives the Result.
type Result struct {
	Ref  types.ShardRef
	Data []byte
	Err  error

	seq int
}

// OK reports whether the shard was downloaded.
func (r Result) OK() bool { return r.Err == nil }

// Position returns the index of the result's ref in the slice given to
// Stream.
func (r Result) Position() int { return r.seq }

// Orchestrator downloads the manifest and shards relative to one base URL.
type Orchestrator struct {
	client   *http.Client
	cfg      types.FetchConfig
	base     *url.URL
	progress *progress.Tracker
	log      zerolog.Logger
}

// NewOrchestrator validates cfg.BaseURL and returns an Orchestrator.
// tracker may be nil.
func NewOrchestrator(client *http.Client, cfg types.FetchConfig, tracker *progress.Tracker, log zerolog.Logger) (*Orchestrator, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = types.DefaultManifestPath
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Orchestrator{
		client:   client,
		cfg:      cfg,
		base:     base,
		progress: tracker,
		log:      log.With().Str("component", "fetch").Logger(),
	}, nil
}

// Resolve returns the absolute URL of a path relative to the base URL.
func (o *Orchestrator) Resolve(path string) (string, error) {
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing path %q: %w", path, err)
	}
	return o.base.ResolveReference(rel).String(), nil
}

// LoadManifest fetches and parses the manifest. Every failure is a
// *ManifestError. An empty file list is valid and yields no refs.
func (o *Orchestrator) LoadManifest(ctx context.Context) ([]types.ShardRef, error) {
	manifestURL, err := o.Resolve(o.cfg.ManifestPath)
	if err != nil {
		return nil, &ManifestError{URL: o.cfg.ManifestPath, Err: err}
	}

	data, err := o.get(ctx, manifestURL, "application/json")
	if err != nil {
		return nil, &ManifestError{URL: manifestURL, Err: err}
	}

	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{URL: manifestURL, Err: fmt.Errorf("parsing manifest: %w", err)}
	}

	refs := make([]types.ShardRef, 0, len(m.Files))
	for _, p := range m.Files {
		if strings.TrimSpace(p) == "" {
			continue
		}
		u, err := o.Resolve(p)
		if err != nil {
			return nil, &ManifestError{URL: manifestURL, Err: err}
		}
		refs = append(refs, types.ShardRef{Path: p, URL: u})
	}

	o.log.Info().Int("files", len(refs)).Str("url", manifestURL).Msg("manifest fetched")
	o.progress.Complete(progress.Manifest)
	return refs, nil
}

// Stream fetches every ref concurrently, without a concurrency cap, and
// sends exactly one Result per ref on the returned channel in completion
// order. The channel is closed once every fetch has settled. The channel
// is buffered for all refs so a slow reader never holds a fetch open.
func (o *Orchestrator) Stream(ctx context.Context, refs []types.ShardRef) <-chan Result {
	out := make(chan Result, len(refs))
	o.progress.Enter(progress.Fetch)

	if len(refs) == 0 {
		close(out)
		o.progress.Complete(progress.Fetch)
		return out
	}

	var settled atomic.Int64
	p := pool.New()
	for i, ref := range refs {
		p.Go(func() {
			r := o.fetchShard(ctx, ref)
			r.seq = i
			out <- r
			o.progress.Report(progress.Fetch, int(settled.Add(1)), len(refs))
		})
	}

	go func() {
		p.Wait()
		close(out)
	}()
	return out
}

// FetchAll fetches every ref and returns the results in ref order once
// all of them have settled.
func (o *Orchestrator) FetchAll(ctx context.Context, refs []types.ShardRef) []Result {
	results := make([]Result, len(refs))
	for r := range o.Stream(ctx, refs) {
		results[r.seq] = r
	}
	return results
}

func (o *Orchestrator) fetchShard(ctx context.Context, ref types.ShardRef) Result {
	data, err := o.get(ctx, ref.URL, "application/octet-stream")
	if err != nil {
		o.log.Warn().Err(err).Str("path", ref.Path).Msg("shard fetch failed")
		return Result{Ref: ref, Err: &FetchError{Path: ref.Path, Err: err}}
	}
	o.log.Debug().Str("path", ref.Path).Int("bytes", len(data)).Msg("shard fetched")
	return Result{Ref: ref, Data: data}
}

func (o *Orchestrator) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if o.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", o.cfg.UserAgent)
	}
	req.Header.Set("Accept", accept)

	resp, err := httputil.DoWithRetry(o.log.WithContext(ctx), o.client, req, o.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return data, nil
}
