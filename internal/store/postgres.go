package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/transitlab/destchoice/internal/skim"
)

// Pool is the subset of pgxpool.Pool used by the store. It is satisfied by
// both *pgxpool.Pool and test doubles.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS choices (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	chooser_id BIGINT NOT NULL,
	zone       INTEGER NOT NULL,
	PRIMARY KEY (run_id, chooser_id)
);

CREATE TABLE IF NOT EXISTS skims (
	name        TEXT NOT NULL,
	origin      INTEGER NOT NULL,
	destination INTEGER NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (name, origin, destination)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model);
CREATE INDEX IF NOT EXISTS idx_choices_run_id ON choices(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, model string) (*ModelRun, error) {
	run := &ModelRun{
		ID:        uuid.NewString(),
		Model:     model,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, model, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Model, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "postgres: update run status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*ModelRun, error) {
	var run ModelRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, model, status, created_at, updated_at FROM runs WHERE id = $1`, runID).
		Scan(&run.ID, &run.Model, &run.Status, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return &run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]ModelRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, model, status, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []ModelRun
	for rows.Next() {
		var run ModelRun
		if err := rows.Scan(&run.ID, &run.Model, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) SaveChoices(ctx context.Context, runID string, choices []ChoiceRow) error {
	src := make([][]any, len(choices))
	for i, c := range choices {
		src[i] = []any{runID, c.ChooserID, c.Zone}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"choices"},
		[]string{"run_id", "chooser_id", "zone"},
		pgx.CopyFromRows(src))
	return eris.Wrap(err, "postgres: copy choices")
}

func (s *PostgresStore) Choices(ctx context.Context, runID string) ([]ChoiceRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT chooser_id, zone FROM choices WHERE run_id = $1 ORDER BY chooser_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query choices")
	}
	defer rows.Close()

	var out []ChoiceRow
	for rows.Next() {
		var c ChoiceRow
		if err := rows.Scan(&c.ChooserID, &c.Zone); err != nil {
			return nil, eris.Wrap(err, "postgres: scan choice")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: query choices")
}

func (s *PostgresStore) SaveSkim(ctx context.Context, name string, cells []skim.Cell) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM skims WHERE name = $1`, name); err != nil {
		return eris.Wrap(err, "postgres: clear skim")
	}
	src := make([][]any, len(cells))
	for i, c := range cells {
		src[i] = []any{name, c.Origin, c.Destination, c.Value}
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"skims"},
		[]string{"name", "origin", "destination", "value"},
		pgx.CopyFromRows(src))
	return eris.Wrap(err, "postgres: copy skim")
}

func (s *PostgresStore) LoadSkim(ctx context.Context, name string) ([]skim.Cell, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT origin, destination, value FROM skims WHERE name = $1 ORDER BY origin, destination`, name)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query skim")
	}
	defer rows.Close()

	var cells []skim.Cell
	for rows.Next() {
		var c skim.Cell
		if err := rows.Scan(&c.Origin, &c.Destination, &c.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan skim cell")
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: query skim")
	}
	if len(cells) == 0 {
		return nil, eris.Errorf("postgres: skim %q not found", name)
	}
	return cells, nil
}
