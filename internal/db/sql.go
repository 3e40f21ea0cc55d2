package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bench_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bench_suites (
		name TEXT PRIMARY KEY,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bench_runs (
		suite TEXT NOT NULL,
		seq INTEGER NOT NULL,
		commit_id TEXT NOT NULL,
		tool TEXT NOT NULL,
		run_date BIGINT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (suite, seq),
		UNIQUE (suite, commit_id, tool, run_date)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bench_suites_position ON bench_suites (position)`,
}

// maxPositionAttempts bounds how often an append is retried when a
// concurrent append to another suite took the position of a new suite.
const maxPositionAttempts = 5

var errPositionTaken = errors.New("suite position taken")

const (
	metaLastUpdate = "lastUpdate"
	metaRepoURL    = "repoUrl"
	metaExtensions = "extensions"
)

const (
	upsertMetaQuery = `INSERT INTO bench_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	insertSuiteQuery = `INSERT INTO bench_suites (name, position)
		SELECT ?, COALESCE(MAX(position), 0) + 1 FROM bench_suites WHERE true
		ON CONFLICT (name) DO NOTHING`
	insertRunQuery = `INSERT INTO bench_runs (suite, seq, commit_id, tool, run_date, payload) VALUES (?, ?, ?, ?, ?, ?)`
)

// dialect captures what differs between the SQL engines.
type dialect struct {
	name string
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
	// isUnique reports a violation of the run identity constraint.
	isUnique func(err error) bool
}

// SQLStore keeps the document in relational tables. It implements both
// Backend and history.Journal so appends are written through one run at a
// time.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d, now: time.Now}
}

// rebind rewrites ? placeholders for dialects that number them.
func (s *SQLStore) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Append stores one run inside a transaction. A run whose identity already
// exists fails with DuplicateIdentity; anything else with
// StorageUnavailable.
func (s *SQLStore) Append(ctx context.Context, suite string, seq int, rec benchmark.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return apperrors.Newf(apperrors.ErrInvalidRecord, "journal", suite, "encoding record: %v", err)
	}

	for attempt := 1; ; attempt++ {
		err = s.appendRun(ctx, suite, seq, rec, string(payload))
		if !errors.Is(err, errPositionTaken) {
			return err
		}
		if attempt == maxPositionAttempts {
			return apperrors.Storage("journal", suite, err)
		}
	}
}

func (s *SQLStore) appendRun(ctx context.Context, suite string, seq int, rec benchmark.Record, payload string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Storage("journal", suite, err)
	}
	defer tx.Rollback()

	// name conflicts are absorbed by the query; a unique violation here is
	// another suite created with the same position
	if _, err := tx.ExecContext(ctx, s.rebind(insertSuiteQuery), suite); err != nil {
		if s.dialect.isUnique(err) {
			return fmt.Errorf("%w: %v", errPositionTaken, err)
		}
		return apperrors.Storage("journal", suite, err)
	}
	_, err = tx.ExecContext(ctx, s.rebind(insertRunQuery),
		suite, seq, rec.Commit.ID, rec.Tool, rec.Date, payload)
	if err != nil {
		if s.dialect.isUnique(err) {
			return apperrors.New(apperrors.ErrDuplicateIdentity, "journal", suite, err)
		}
		return apperrors.Storage("journal", suite, err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(upsertMetaQuery),
		metaLastUpdate, strconv.FormatInt(s.now().UnixMilli(), 10)); err != nil {
		return apperrors.Storage("journal", suite, err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage("journal", suite, err)
	}
	return nil
}

// Load reassembles the document from the tables.
func (s *SQLStore) Load(ctx context.Context) (*codec.Document, error) {
	doc := &codec.Document{}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM bench_meta`)
	if err != nil {
		return nil, apperrors.Storage("load", "bench_meta", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, apperrors.Storage("load", "bench_meta", err)
		}
		if err := applyMeta(doc, key, value); err != nil {
			rows.Close()
			return nil, err
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, apperrors.Storage("load", "bench_meta", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT name FROM bench_suites ORDER BY position`)
	if err != nil {
		return nil, apperrors.Storage("load", "bench_suites", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, apperrors.Storage("load", "bench_suites", err)
		}
		index[name] = len(doc.Suites)
		doc.Suites = append(doc.Suites, codec.Suite{Name: name})
	}
	if err := closeRows(rows); err != nil {
		return nil, apperrors.Storage("load", "bench_suites", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT suite, seq, payload FROM bench_runs ORDER BY suite, seq`)
	if err != nil {
		return nil, apperrors.Storage("load", "bench_runs", err)
	}
	for rows.Next() {
		var (
			suite   string
			seq     int
			payload string
		)
		if err := rows.Scan(&suite, &seq, &payload); err != nil {
			rows.Close()
			return nil, apperrors.Storage("load", "bench_runs", err)
		}
		i, ok := index[suite]
		if !ok {
			rows.Close()
			return nil, apperrors.Newf(apperrors.ErrMalformedDocument, "load", suite, "run %d belongs to an unknown suite", seq)
		}
		var rec benchmark.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			rows.Close()
			path := fmt.Sprintf("entries[%s][%d]", strconv.Quote(suite), seq)
			return nil, apperrors.New(apperrors.ErrMalformedDocument, "load", path, err)
		}
		doc.Suites[i].Records = append(doc.Suites[i].Records, rec)
	}
	if err := closeRows(rows); err != nil {
		return nil, apperrors.Storage("load", "bench_runs", err)
	}

	return doc, nil
}

func applyMeta(doc *codec.Document, key, value string) error {
	switch key {
	case metaLastUpdate:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return apperrors.New(apperrors.ErrMalformedDocument, "load", key, err)
		}
		doc.LastUpdate = n
	case metaRepoURL:
		doc.RepoURL = value
	case metaExtensions:
		var ext benchmark.Extensions
		if err := json.Unmarshal([]byte(value), &ext); err != nil {
			return apperrors.New(apperrors.ErrMalformedDocument, "load", key, err)
		}
		if len(ext) > 0 {
			doc.Extensions = ext
		}
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}

// Save replaces all stored runs with the contents of doc in one transaction.
func (s *SQLStore) Save(ctx context.Context, doc *codec.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Storage("save", "", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"bench_runs", "bench_suites", "bench_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return apperrors.Storage("save", table, err)
		}
	}

	meta := [][2]string{
		{metaLastUpdate, strconv.FormatInt(doc.LastUpdate, 10)},
		{metaRepoURL, doc.RepoURL},
	}
	if len(doc.Extensions) > 0 {
		ext, err := json.Marshal(doc.Extensions)
		if err != nil {
			return fmt.Errorf("encoding extensions: %w", err)
		}
		meta = append(meta, [2]string{metaExtensions, string(ext)})
	}
	for _, kv := range meta {
		if _, err := tx.ExecContext(ctx, s.rebind(upsertMetaQuery), kv[0], kv[1]); err != nil {
			return apperrors.Storage("save", "bench_meta", err)
		}
	}

	for i, suite := range doc.Suites {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO bench_suites (name, position) VALUES (?, ?)`), suite.Name, i+1); err != nil {
			return apperrors.Storage("save", suite.Name, err)
		}
		for seq, rec := range suite.Records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding %s run %d: %w", suite.Name, seq, err)
			}
			_, err = tx.ExecContext(ctx, s.rebind(insertRunQuery),
				suite.Name, seq, rec.Commit.ID, rec.Tool, rec.Date, string(payload))
			if err != nil {
				if s.dialect.isUnique(err) {
					return apperrors.New(apperrors.ErrDuplicateIdentity, "save", suite.Name, err)
				}
				return apperrors.Storage("save", suite.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage("save", "", err)
	}
	return nil
}
