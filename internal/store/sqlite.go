package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/transitlab/destchoice/internal/skim"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
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
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS choices (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	chooser_id INTEGER NOT NULL,
	zone       INTEGER NOT NULL,
	PRIMARY KEY (run_id, chooser_id)
);

CREATE TABLE IF NOT EXISTS skims (
	name        TEXT NOT NULL,
	origin      INTEGER NOT NULL,
	destination INTEGER NOT NULL,
	value       REAL NOT NULL,
	PRIMARY KEY (name, origin, destination)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_model ON runs(model);
CREATE INDEX IF NOT EXISTS idx_choices_run_id ON choices(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, model string) (*ModelRun, error) {
	run := &ModelRun{
		ID:        uuid.NewString(),
		Model:     model,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, model, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Model, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "sqlite: update run status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*ModelRun, error) {
	var run ModelRun
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, status, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&run.ID, &run.Model, &run.Status, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]ModelRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, status, created_at, updated_at FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []ModelRun
	for rows.Next() {
		var run ModelRun
		if err := rows.Scan(&run.ID, &run.Model, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) SaveChoices(ctx context.Context, runID string, choices []ChoiceRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO choices (run_id, chooser_id, zone) VALUES (?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert choice")
	}
	defer stmt.Close()

	for _, c := range choices {
		if _, err := stmt.ExecContext(ctx, runID, c.ChooserID, c.Zone); err != nil {
			return eris.Wrapf(err, "sqlite: insert choice for chooser %d", c.ChooserID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit choices")
}

func (s *SQLiteStore) Choices(ctx context.Context, runID string) ([]ChoiceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chooser_id, zone FROM choices WHERE run_id = ? ORDER BY chooser_id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query choices")
	}
	defer rows.Close()

	var out []ChoiceRow
	for rows.Next() {
		var c ChoiceRow
		if err := rows.Scan(&c.ChooserID, &c.Zone); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan choice")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: query choices")
}

func (s *SQLiteStore) SaveSkim(ctx context.Context, name string, cells []skim.Cell) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM skims WHERE name = ?`, name); err != nil {
		return eris.Wrap(err, "sqlite: clear skim")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO skims (name, origin, destination, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert skim")
	}
	defer stmt.Close()

	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx, name, c.Origin, c.Destination, c.Value); err != nil {
			return eris.Wrapf(err, "sqlite: insert skim cell (%d,%d)", c.Origin, c.Destination)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit skim")
}

func (s *SQLiteStore) LoadSkim(ctx context.Context, name string) ([]skim.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin, destination, value FROM skims WHERE name = ? ORDER BY origin, destination`, name)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query skim")
	}
	defer rows.Close()

	var cells []skim.Cell
	for rows.Next() {
		var c skim.Cell
		if err := rows.Scan(&c.Origin, &c.Destination, &c.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan skim cell")
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: query skim")
	}
	if len(cells) == 0 {
		return nil, eris.Errorf("sqlite: skim %q not found", name)
	}
	return cells, nil
}
