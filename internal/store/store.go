// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store is the system of record for loaded papers: a SQLite
// database with a unique primary key on id, secondary indexes on
// date_added, year and journal, and a multi-value topic index.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-explorer/pkg/types"
)

const dbFile = "papers.db"

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("paper not found")

// StoreError reports a failed store operation. A failed BulkInsert leaves
// no partial rows behind.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Store manages the paper database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database at cfg.DataDir/papers.db.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return Open(filepath.Join(cfg.DataDir, dbFile))
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			title TEXT,
			abstract TEXT,
			authors TEXT,
			year INTEGER,
			journal TEXT,
			date_added TEXT,
			url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_date_added ON papers(date_added)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_year ON papers(year)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_journal ON papers(journal)`,
		`CREATE TABLE IF NOT EXISTS paper_topics (
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			topic TEXT NOT NULL,
			PRIMARY KEY (paper_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_paper_topics_topic ON paper_topics(topic)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Clear deletes every paper.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Op: "clear", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM paper_topics`, `DELETE FROM papers`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &StoreError{Op: "clear", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "clear", Err: err}
	}
	return nil
}

// BulkInsert adds papers in one transaction. Any failure, including an id
// that already exists, rolls back the whole batch.
func (s *Store) BulkInsert(ctx context.Context, papers []types.Paper) error {
	if err := s.bulkInsert(ctx, papers); err != nil {
		return &StoreError{Op: "bulk insert", Err: err}
	}
	return nil
}

func (s *Store) bulkInsert(ctx context.Context, papers []types.Paper) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	paperStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (id, title, abstract, authors, year, journal, date_added, url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing paper insert: %w", err)
	}
	defer paperStmt.Close()

	topicStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO paper_topics (paper_id, position, topic) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing topic insert: %w", err)
	}
	defer topicStmt.Close()

	for _, p := range papers {
		authorsJSON, err := json.Marshal(p.Authors)
		if err != nil {
			return fmt.Errorf("encoding authors of %s: %w", p.ID, err)
		}
		if _, err := paperStmt.ExecContext(ctx,
			p.ID, p.Title, p.Abstract, string(authorsJSON),
			p.Year, p.Journal, p.DateAdded, p.URL,
		); err != nil {
			return fmt.Errorf("inserting paper %s: %w", p.ID, err)
		}
		for i, topic := range p.Topics {
			if _, err := topicStmt.ExecContext(ctx, p.ID, i, topic); err != nil {
				return fmt.Errorf("inserting topic of %s: %w", p.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Count returns the number of stored papers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM papers`).Scan(&n); err != nil {
		return 0, &StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// Get returns the paper with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.Paper, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, abstract, authors, year, journal, date_added, url
		 FROM papers WHERE id = ?`, id)
	p, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT topic FROM paper_topics WHERE paper_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		var topic string
		if err := rows.Scan(&topic); err != nil {
			return nil, &StoreError{Op: "get", Err: err}
		}
		p.Topics = append(p.Topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}
	return p, nil
}

// GetMany returns the papers with the given ids, in ids order. Ids with
// no stored paper are skipped.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]types.Paper, error) {
	papers := make([]types.Paper, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		papers = append(papers, *p)
	}
	return papers, nil
}

// All returns every paper in insertion order.
func (s *Store) All(ctx context.Context) ([]types.Paper, error) {
	topics, err := s.allTopics(ctx)
	if err != nil {
		return nil, &StoreError{Op: "all", Err: err}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, abstract, authors, year, journal, date_added, url
		 FROM papers ORDER BY seq`)
	if err != nil {
		return nil, &StoreError{Op: "all", Err: err}
	}
	defer rows.Close()

	var papers []types.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, &StoreError{Op: "all", Err: err}
		}
		p.Topics = topics[p.ID]
		papers = append(papers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "all", Err: err}
	}
	return papers, nil
}

func (s *Store) allTopics(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT paper_id, topic FROM paper_topics ORDER BY paper_id, position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := make(map[string][]string)
	for rows.Next() {
		var id, topic string
		if err := rows.Scan(&id, &topic); err != nil {
			return nil, err
		}
		topics[id] = append(topics[id], topic)
	}
	return topics, rows.Err()
}

// DistinctValues returns the distinct values of an indexed field in
// ascending order. Years are returned in their decimal form.
func (s *Store) DistinctValues(ctx context.Context, field types.FilterDimension) ([]string, error) {
	var query string
	switch field {
	case types.FilterTopic:
		query = `SELECT DISTINCT topic FROM paper_topics ORDER BY topic`
	case types.FilterJournal:
		query = `SELECT DISTINCT journal FROM papers WHERE journal IS NOT NULL ORDER BY journal`
	case types.FilterYear:
		query = `SELECT DISTINCT year FROM papers WHERE year IS NOT NULL ORDER BY year`
	default:
		return nil, &StoreError{Op: "distinct values", Err: fmt.Errorf("field %q is not indexed", field)}
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &StoreError{Op: "distinct values", Err: err}
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		if field == types.FilterYear {
			var y int
			if err := rows.Scan(&y); err != nil {
				return nil, &StoreError{Op: "distinct values", Err: err}
			}
			values = append(values, strconv.Itoa(y))
			continue
		}
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &StoreError{Op: "distinct values", Err: err}
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Op: "distinct values", Err: err}
	}
	return values, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(sc scanner) (*types.Paper, error) {
	var (
		p           types.Paper
		title       sql.NullString
		abstract    sql.NullString
		authorsJSON sql.NullString
		year        sql.NullInt64
		journal     sql.NullString
		dateAdded   sql.NullString
		url         sql.NullString
	)
	if err := sc.Scan(&p.ID, &title, &abstract, &authorsJSON, &year, &journal, &dateAdded, &url); err != nil {
		return nil, err
	}
	p.Title = title.String
	p.Abstract = abstract.String
	p.Year = int(year.Int64)
	p.Journal = journal.String
	p.DateAdded = dateAdded.String
	p.URL = url.String
	if authorsJSON.Valid && authorsJSON.String != "" {
		if err := json.Unmarshal([]byte(authorsJSON.String), &p.Authors); err != nil {
			return nil, fmt.Errorf("decoding authors of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}
