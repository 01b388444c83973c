// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	_ "modernc.org/sqlite"

	"github.com/pdiddy/paper-explorer/pkg/types"
)

// Backend is the text index owned by the worker. Implementations need not
// be safe for concurrent use; only the worker goroutine calls them.
type Backend interface {
	// Add indexes docs. A document whose id is already indexed replaces
	// the earlier one. On error none of docs is indexed.
	Add(ctx context.Context, docs []types.IndexDocument) error

	// Search returns matching ids per indexed field, best first, at most
	// limit per field.
	Search(ctx context.Context, query string, limit int) ([][]string, error)

	// Reset removes every document.
	Reset(ctx context.Context) error

	Close() error
}

// BackendFactory constructs a Backend. The worker calls it once, off its
// message loop.
type BackendFactory func(ctx context.Context) (Backend, error)

// indexedFields are searched in this order; earlier fields' matches come
// first in the merged result.
var indexedFields = []string{"title", "abstract"}

// FTSBackend indexes title and abstract in an in-memory SQLite FTS5 table.
// Query terms match as prefixes.
type FTSBackend struct {
	db    *sql.DB
	rowID map[string]int64
}

// NewFTSBackend creates an empty in-memory FTS5 index.
func NewFTSBackend(ctx context.Context) (Backend, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx,
		`CREATE VIRTUAL TABLE docs USING fts5(id UNINDEXED, title, abstract, tokenize = 'unicode61 remove_diacritics 2')`,
	); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating FTS table: %w", err)
	}
	return &FTSBackend{db: db, rowID: make(map[string]int64)}, nil
}

// Add inserts docs in one transaction.
func (b *FTSBackend) Add(ctx context.Context, docs []types.IndexDocument) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	added := make(map[string]int64, len(docs))
	for _, d := range docs {
		rowID, ok := added[d.ID]
		if !ok {
			rowID, ok = b.rowID[d.ID]
		}
		if ok {
			if _, err := tx.ExecContext(ctx,
				`UPDATE docs SET title = ?, abstract = ? WHERE rowid = ?`,
				d.Title, d.Abstract, rowID,
			); err != nil {
				return fmt.Errorf("updating %s: %w", d.ID, err)
			}
			continue
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO docs (id, title, abstract) VALUES (?, ?, ?)`,
			d.ID, d.Title, d.Abstract,
		)
		if err != nil {
			return fmt.Errorf("inserting %s: %w", d.ID, err)
		}
		if added[d.ID], err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading rowid of %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	for id, rowID := range added {
		b.rowID[id] = rowID
	}
	return nil
}

// Search runs the query once per indexed field.
func (b *FTSBackend) Search(ctx context.Context, query string, limit int) ([][]string, error) {
	terms := Terms(query)
	results := make([][]string, len(indexedFields))
	if len(terms) == 0 {
		return results, nil
	}

	for i, field := range indexedFields {
		ids, err := b.searchField(ctx, field, terms, limit)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", field, err)
		}
		results[i] = ids
	}
	return results, nil
}

func (b *FTSBackend) searchField(ctx context.Context, field string, terms []string, limit int) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id FROM docs WHERE docs MATCH ? ORDER BY rank LIMIT ?`,
		MatchExpr(field, terms), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reset empties the FTS table.
func (b *FTSBackend) Reset(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM docs`); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	b.rowID = make(map[string]int64)
	return nil
}

// Close releases the index database.
func (b *FTSBackend) Close() error {
	return b.db.Close()
}

// Terms lowercases query and splits it into letter/digit runs, the same
// boundaries the unicode61 tokenizer uses.
func Terms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// MatchExpr builds an FTS5 expression requiring every term, as a prefix,
// in field.
func MatchExpr(field string, terms []string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = fmt.Sprintf(`%s : "%s"*`, field, strings.ReplaceAll(t, `"`, `""`))
	}
	return strings.Join(parts, " AND ")
}
