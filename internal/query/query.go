// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package query resolves a page of papers from the store: optional search
// restriction, filter conjunction, view ordering, and pagination. It has
// no side effects.
package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/paper-explorer/pkg/types"
)

// Source is the read side of the paper store.
type Source interface {
	All(ctx context.Context) ([]types.Paper, error)
	GetMany(ctx context.Context, ids []string) ([]types.Paper, error)
	DistinctValues(ctx context.Context, field types.FilterDimension) ([]string, error)
}

// Request selects one page. A nil SearchIDs means no search is active; a
// non-nil empty SearchIDs is a search with no matches.
type Request struct {
	Page      int
	Filters   types.FilterSet
	View      types.View
	SearchIDs []string
}

// Page is one page of results plus the count of all matches.
type Page struct {
	Records   []types.Paper `json:"records" yaml:"records"`
	Total     int           `json:"total" yaml:"total"`
	Number    int           `json:"page" yaml:"page"`
	PageCount int           `json:"page_count" yaml:"page_count"`
}

// Facets are the values available for each filter dimension.
type Facets struct {
	Topics   []string `json:"topics" yaml:"topics"`
	Journals []string `json:"journals" yaml:"journals"`
	Years    []int    `json:"years" yaml:"years"`
}

// Engine resolves pages against a Source.
type Engine struct {
	src      Source
	pageSize int
}

// NewEngine returns an Engine serving pages of cfg.PageSize papers.
func NewEngine(src Source, cfg types.QueryConfig) *Engine {
	size := cfg.PageSize
	if size <= 0 {
		size = types.DefaultPageSize
	}
	return &Engine{src: src, pageSize: size}
}

// PageSize returns the number of papers per page.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// ResolvePage returns the requested page.
func (e *Engine) ResolvePage(ctx context.Context, req Request) (Page, error) {
	page := Page{Records: []types.Paper{}, Number: req.Page}

	var base []types.Paper
	var err error
	switch {
	case req.SearchIDs == nil:
		base, err = e.src.All(ctx)
	case len(req.SearchIDs) == 0:
		return page, nil
	default:
		base, err = e.src.GetMany(ctx, req.SearchIDs)
	}
	if err != nil {
		return page, fmt.Errorf("reading papers: %w", err)
	}

	matched := Filter(base, req.Filters)
	Sort(matched, req.View)

	page.Total = len(matched)
	page.PageCount = (page.Total + e.pageSize - 1) / e.pageSize
	page.Records = Paginate(matched, req.Page, e.pageSize)
	return page, nil
}

// Facets returns the distinct topics and journals in ascending order and
// the distinct years newest first. Papers with no journal contribute no
// journal facet.
func (e *Engine) Facets(ctx context.Context) (Facets, error) {
	f := Facets{Topics: []string{}, Journals: []string{}, Years: []int{}}

	topics, err := e.src.DistinctValues(ctx, types.FilterTopic)
	if err != nil {
		return f, fmt.Errorf("listing topics: %w", err)
	}
	f.Topics = append(f.Topics, topics...)
	sort.Strings(f.Topics)

	journals, err := e.src.DistinctValues(ctx, types.FilterJournal)
	if err != nil {
		return f, fmt.Errorf("listing journals: %w", err)
	}
	for _, j := range journals {
		if j != "" {
			f.Journals = append(f.Journals, j)
		}
	}
	sort.Strings(f.Journals)

	years, err := e.src.DistinctValues(ctx, types.FilterYear)
	if err != nil {
		return f, fmt.Errorf("listing years: %w", err)
	}
	for _, y := range years {
		n, err := strconv.Atoi(y)
		if err != nil {
			continue
		}
		f.Years = append(f.Years, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(f.Years)))
	return f, nil
}

// Filter returns the papers matching every set dimension of fs. The
// input is not modified.
func Filter(papers []types.Paper, fs types.FilterSet) []types.Paper {
	out := make([]types.Paper, 0, len(papers))
	if fs.IsEmpty() {
		return append(out, papers...)
	}

	// A year that is not a number matches nothing.
	var year int
	var yearErr error
	if fs.Year != "" {
		year, yearErr = strconv.Atoi(strings.TrimSpace(fs.Year))
	}

	for _, p := range papers {
		if fs.Topic != "" && !p.HasTopic(fs.Topic) {
			continue
		}
		if fs.Journal != "" && p.Journal != fs.Journal {
			continue
		}
		if fs.Year != "" && (yearErr != nil || p.Year != year) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Sort orders papers in place for view. Ties, and the date_added view,
// fall back to DateAdded newest first. The sort is stable.
func Sort(papers []types.Paper, view types.View) {
	primary := func(a, b *types.Paper) int { return 0 }
	switch view {
	case types.ViewTopic:
		primary = func(a, b *types.Paper) int {
			return strings.Compare(strings.ToLower(a.PrimaryTopic()), strings.ToLower(b.PrimaryTopic()))
		}
	case types.ViewJournal:
		primary = func(a, b *types.Paper) int {
			return strings.Compare(strings.ToLower(a.Journal), strings.ToLower(b.Journal))
		}
	case types.ViewYear:
		primary = func(a, b *types.Paper) int {
			switch {
			case a.Year > b.Year:
				return -1
			case a.Year < b.Year:
				return 1
			}
			return 0
		}
	}

	sort.SliceStable(papers, func(i, j int) bool {
		a, b := &papers[i], &papers[j]
		if c := primary(a, b); c != 0 {
			return c < 0
		}
		return a.DateAdded > b.DateAdded
	})
}

// Paginate returns page (1-based) of size items. Pages outside the range
// are empty.
func Paginate(papers []types.Paper, page, size int) []types.Paper {
	if page < 1 || size <= 0 {
		return []types.Paper{}
	}
	start := (page - 1) * size
	if start >= len(papers) {
		return []types.Paper{}
	}
	end := min(start+size, len(papers))
	return papers[start:end]
}
