// Package store records scoring runs and caches resolved place names.
package store

import (
	"context"
	"time"

	"github.com/sells-group/riskgrid/internal/scoring"
)

// Run is one applied scoring configuration and what it produced.
type Run struct {
	ID        string                `json:"id"`
	District  string                `json:"district"`
	Source    string                `json:"source"`
	Weights   scoring.Weights       `json:"weights"`
	Summary   scoring.Summary       `json:"summary"`
	Top       []scoring.RankedEntry `json:"top"`
	CreatedAt time.Time             `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	District string `json:"district,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for scoring runs.
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// NameCache caches resolved place names by key. An empty name is a valid
// cached answer meaning "no place found".
type NameCache interface {
	GetCachedName(ctx context.Context, key string) (name string, found bool, err error)
	SetCachedName(ctx context.Context, key, name string, ttl time.Duration) error
}

const defaultListLimit = 100
