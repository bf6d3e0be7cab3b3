// Package store persists model runs, per-chooser choices, and skim matrices
// behind a driver-neutral interface with SQLite and PostgreSQL backends.
package store

import (
	"context"
	"time"

	"github.com/transitlab/destchoice/internal/skim"
)

// RunStatus tracks a model run's lifecycle.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// ModelRun is one recorded simulation run.
type ModelRun struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Status    RunStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChoiceRow is one chooser's recorded destination; zone -1 marks a chooser
// outside every segment.
type ChoiceRow struct {
	ChooserID int64 `json:"chooser_id"`
	Zone      int   `json:"zone"`
}

// Store defines the persistence interface for the choice engine.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, model string) (*ModelRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	GetRun(ctx context.Context, runID string) (*ModelRun, error)
	ListRuns(ctx context.Context, limit int) ([]ModelRun, error)

	// Choices
	SaveChoices(ctx context.Context, runID string, choices []ChoiceRow) error
	Choices(ctx context.Context, runID string) ([]ChoiceRow, error)

	// Skims
	SaveSkim(ctx context.Context, name string, cells []skim.Cell) error
	LoadSkim(ctx context.Context, name string) ([]skim.Cell, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
