package handlers

import (
	"context"
	"time"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/database"
	"descale-qc/internal/metrics"
)

// RunStore is the part of the run history the handlers read.
type RunStore interface {
	ListRuns(ctx context.Context, opts database.ListOptions) (*database.RunList, error)
	GetRun(ctx context.Context, id string) (*database.Run, error)
	GetCatalogue(ctx context.Context, runID, label string) (*coalesce.Catalogue, error)
	DeleteRun(ctx context.Context, id string) error
	GetStats() metrics.Stats
	Ping(ctx context.Context) error
}

// Handlers serves the catalogue API.
type Handlers struct {
	db        RunStore
	startTime time.Time
}

// New creates the handlers over a run store.
func New(db RunStore) *Handlers {
	return &Handlers{
		db:        db,
		startTime: time.Now(),
	}
}
