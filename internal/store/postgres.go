package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/docextract/internal/model"
)

// PostgresStore implements Store using pgxpool, for deployments where the
// template cache is shared across hosts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS templates (
	id            TEXT PRIMARY KEY,
	vendor        TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL UNIQUE,
	rules         JSONB NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	last_used_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	template_id TEXT,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	fields      JSONB NOT NULL,
	cost_usd    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);
CREATE INDEX IF NOT EXISTS idx_records_template_id ON records(template_id);
`

const postgresRank = `CASE WHEN success_count + failure_count = 0 THEN 1.0
	ELSE success_count::float / (success_count + failure_count) END`

const postgresTemplateCols = `id, vendor, fingerprint, rules, success_count, failure_count, created_at, last_used_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) PutTemplate(ctx context.Context, tpl *model.Template) (*model.Template, error) {
	if tpl.Fingerprint == "" {
		return nil, eris.New("postgres: refusing template with null fingerprint")
	}
	if len(tpl.Rules) == 0 {
		return nil, eris.New("postgres: refusing template with zero rules")
	}

	id := tpl.ID
	if id == "" {
		id = uuid.New().String()
	}
	rulesJSON, err := json.Marshal(tpl.Rules)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal rules")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO templates (`+postgresTemplateCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		id, tpl.Vendor, tpl.Fingerprint, rulesJSON,
		tpl.SuccessCount, tpl.FailureCount, tpl.CreatedAt.UTC(), tpl.LastUsedAt.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert template")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresTemplateCols+` FROM templates WHERE fingerprint = $1`,
		tpl.Fingerprint,
	)
	return scanPgTemplate(row)
}

func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresTemplateCols+` FROM templates WHERE id = $1`,
		id,
	)
	tpl, err := scanPgTemplate(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return tpl, err
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fp string) ([]*model.Template, error) {
	if fp == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresTemplateCols+` FROM templates WHERE fingerprint = $1
		 ORDER BY `+postgresRank+` DESC, last_used_at DESC`,
		fp,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by fingerprint")
	}
	return collectPgTemplates(rows)
}

func (s *PostgresStore) AllTemplates(ctx context.Context) ([]*model.Template, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresTemplateCols+` FROM templates
		 ORDER BY `+postgresRank+` DESC, last_used_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: all templates")
	}
	return collectPgTemplates(rows)
}

func (s *PostgresStore) RecordOutcome(ctx context.Context, id string, outcome model.Outcome) error {
	var tag string
	var args []any
	switch outcome {
	case model.OutcomeSuccess:
		tag = `UPDATE templates SET success_count = success_count + 1, last_used_at = $1 WHERE id = $2`
		args = []any{time.Now().UTC(), id}
	case model.OutcomeFailure:
		tag = `UPDATE templates SET failure_count = failure_count + 1 WHERE id = $1`
		args = []any{id}
	default:
		return eris.Errorf("postgres: unknown outcome %q", outcome)
	}

	ct, err := s.pool.Exec(ctx, tag, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: record outcome for %s", id)
	}
	if ct.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *PostgresStore) AddRules(ctx context.Context, id string, rules []model.ExtractionRule) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return eris.Wrap(err, "postgres: begin add rules")
	}
	defer tx.Rollback(ctx)

	var rulesJSON []byte
	err = tx.QueryRow(ctx, `SELECT rules FROM templates WHERE id = $1 FOR UPDATE`, id).Scan(&rulesJSON)
	if err == pgx.ErrNoRows {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read rules for %s", id)
	}

	existing := map[string]model.ExtractionRule{}
	if err := json.Unmarshal(rulesJSON, &existing); err != nil {
		return eris.Wrap(err, "postgres: unmarshal rules")
	}
	if !mergeRules(existing, rules) {
		return nil
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal merged rules")
	}
	if _, err := tx.Exec(ctx, `UPDATE templates SET rules = $1 WHERE id = $2`, merged, id); err != nil {
		return eris.Wrapf(err, "postgres: update rules for %s", id)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit add rules")
}

func (s *PostgresStore) ResetCounters(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE templates SET success_count = 0, failure_count = 0 WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset counters for %s", id)
	}
	if ct.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendRecord(ctx context.Context, rec *model.ExtractionRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record fields")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO records (id, source, template_id, status, error, fields, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Source, rec.TemplateID, string(rec.Status), rec.Error,
		fieldsJSON, rec.CostUSD, rec.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert record")
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]model.ExtractionRecord, error) {
	// LIMIT NULL is postgres for no limit at all.
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, template_id, status, error, fields, cost_usd, created_at
		 FROM records ORDER BY created_at DESC, id LIMIT $1`,
		lim,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []model.ExtractionRecord
	for rows.Next() {
		var rec model.ExtractionRecord
		var fieldsJSON []byte
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.TemplateID, &rec.Status,
			&rec.Error, &fieldsJSON, &rec.CostUSD, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record fields")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func scanPgTemplate(row pgx.Row) (*model.Template, error) {
	var t model.Template
	var rulesJSON []byte

	err := row.Scan(&t.ID, &t.Vendor, &t.Fingerprint, &rulesJSON,
		&t.SuccessCount, &t.FailureCount, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan template")
	}
	if err := json.Unmarshal(rulesJSON, &t.Rules); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal rules")
	}
	return &t, nil
}

func collectPgTemplates(rows pgx.Rows) ([]*model.Template, error) {
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		t, err := scanPgTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate templates")
}
