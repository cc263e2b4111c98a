package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/docextract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	// Transactions take the write lock at BEGIN. With the default deferred
	// lock, two read-then-write transactions can both start and one fails
	// with SQLITE_BUSY at the upgrade instead of waiting on busy_timeout.
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", dsn+sep+"_txlock=immediate")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS templates (
	id            TEXT PRIMARY KEY,
	vendor        TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL UNIQUE,
	rules         TEXT NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	last_used_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	template_id TEXT,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	fields      TEXT NOT NULL,
	cost_usd    REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_template_id ON records(template_id);
`

// sqliteRank mirrors Template.SuccessRate: a never-attempted template ranks
// as 1.0 so it is tried at least once.
const sqliteRank = `CASE WHEN success_count + failure_count = 0 THEN 1.0
	ELSE CAST(success_count AS REAL) / (success_count + failure_count) END`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutTemplate(ctx context.Context, tpl *model.Template) (*model.Template, error) {
	if tpl.Fingerprint == "" {
		return nil, eris.New("sqlite: refusing template with null fingerprint")
	}
	if len(tpl.Rules) == 0 {
		return nil, eris.New("sqlite: refusing template with zero rules")
	}

	id := tpl.ID
	if id == "" {
		id = uuid.New().String()
	}
	rulesJSON, err := json.Marshal(tpl.Rules)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal rules")
	}

	// Create-if-absent: the UNIQUE constraint on fingerprint arbitrates
	// concurrent learners; the row that landed first is authoritative.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO templates (id, vendor, fingerprint, rules, success_count, failure_count, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO NOTHING`,
		id, tpl.Vendor, tpl.Fingerprint, string(rulesJSON),
		tpl.SuccessCount, tpl.FailureCount, tpl.CreatedAt.UTC(), tpl.LastUsedAt.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert template")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, vendor, fingerprint, rules, success_count, failure_count, created_at, last_used_at
		 FROM templates WHERE fingerprint = ?`,
		tpl.Fingerprint,
	)
	return scanTemplate(row)
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, vendor, fingerprint, rules, success_count, failure_count, created_at, last_used_at
		 FROM templates WHERE id = ?`,
		id,
	)
	tpl, err := scanTemplate(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return tpl, err
}

func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fp string) ([]*model.Template, error) {
	if fp == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor, fingerprint, rules, success_count, failure_count, created_at, last_used_at
		 FROM templates WHERE fingerprint = ?
		 ORDER BY `+sqliteRank+` DESC, last_used_at DESC`,
		fp,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by fingerprint")
	}
	return collectTemplates(rows)
}

func (s *SQLiteStore) AllTemplates(ctx context.Context) ([]*model.Template, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor, fingerprint, rules, success_count, failure_count, created_at, last_used_at
		 FROM templates ORDER BY `+sqliteRank+` DESC, last_used_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: all templates")
	}
	return collectTemplates(rows)
}

func (s *SQLiteStore) RecordOutcome(ctx context.Context, id string, outcome model.Outcome) error {
	var res sql.Result
	var err error
	switch outcome {
	case model.OutcomeSuccess:
		res, err = s.db.ExecContext(ctx,
			`UPDATE templates SET success_count = success_count + 1, last_used_at = ? WHERE id = ?`,
			time.Now().UTC(), id,
		)
	case model.OutcomeFailure:
		res, err = s.db.ExecContext(ctx,
			`UPDATE templates SET failure_count = failure_count + 1 WHERE id = ?`,
			id,
		)
	default:
		return eris.Errorf("sqlite: unknown outcome %q", outcome)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: record outcome for %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) AddRules(ctx context.Context, id string, rules []model.ExtractionRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin add rules")
	}
	defer tx.Rollback()

	var rulesJSON string
	err = tx.QueryRowContext(ctx, `SELECT rules FROM templates WHERE id = ?`, id).Scan(&rulesJSON)
	if err == sql.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read rules for %s", id)
	}

	existing := map[string]model.ExtractionRule{}
	if err := json.Unmarshal([]byte(rulesJSON), &existing); err != nil {
		return eris.Wrap(err, "sqlite: unmarshal rules")
	}
	if !mergeRules(existing, rules) {
		return nil
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal merged rules")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE templates SET rules = ? WHERE id = ?`, string(merged), id); err != nil {
		return eris.Wrapf(err, "sqlite: update rules for %s", id)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit add rules")
}

func (s *SQLiteStore) ResetCounters(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET success_count = 0, failure_count = 0 WHERE id = ?`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset counters for %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) AppendRecord(ctx context.Context, rec *model.ExtractionRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record fields")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (id, source, template_id, status, error, fields, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.TemplateID, string(rec.Status), rec.Error,
		string(fieldsJSON), rec.CostUSD, rec.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert record")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]model.ExtractionRecord, error) {
	if limit <= 0 {
		limit = -1 // sqlite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, template_id, status, error, fields, cost_usd, created_at
		 FROM records ORDER BY created_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var out []model.ExtractionRecord
	for rows.Next() {
		var rec model.ExtractionRecord
		var fieldsJSON string
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.TemplateID, &rec.Status,
			&rec.Error, &fieldsJSON, &rec.CostUSD, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record fields")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTemplate(row scannable) (*model.Template, error) {
	var t model.Template
	var rulesJSON string

	err := row.Scan(&t.ID, &t.Vendor, &t.Fingerprint, &rulesJSON,
		&t.SuccessCount, &t.FailureCount, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return nil, eris.Wrap(err, "scan template")
	}
	if err := json.Unmarshal([]byte(rulesJSON), &t.Rules); err != nil {
		return nil, eris.Wrap(err, "unmarshal rules")
	}
	return &t, nil
}

func collectTemplates(rows *sql.Rows) ([]*model.Template, error) {
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "iterate templates")
}
