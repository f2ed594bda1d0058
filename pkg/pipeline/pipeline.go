// Package pipeline materializes the attribution relations, either on a
// query engine or in process.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

// Mode selects how relations are materialized.
type Mode string

const (
	// ModeViews publishes every stage as a view over its inputs.
	ModeViews Mode = "views"
	// ModeTables writes every stage to a run-versioned table and publishes
	// a view selecting from it.
	ModeTables Mode = "tables"
	// ModeLocal loads the inputs and computes every stage in process.
	ModeLocal Mode = "local"
)

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 5 * time.Second
)

// Config tunes how a run executes.
type Config struct {
	Mode Mode `json:"mode"`
	// Output is where the engine writes statement results.
	Output query.OutputLocation `json:"output"`
	Wait   query.WaitOptions    `json:"wait"`
	// MaxAttempts bounds the submissions of a single computation.
	MaxAttempts  int           `json:"maxAttempts"`
	RetryBackoff time.Duration `json:"retryBackoff"`
	// Workers bounds the resources computed concurrently in local mode.
	Workers int `json:"workers"`
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	return c
}

// Validate checks the mode is known.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeViews, ModeTables, ModeLocal:
		return nil
	default:
		return fmt.Errorf("invalid mode %q, must be one of %s, %s or %s", c.Mode, ModeViews, ModeTables, ModeLocal)
	}
}

// RunResult describes a finished run.
type RunResult struct {
	RunID      string    `json:"runID"`
	Mode       Mode      `json:"mode"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	// Relations maps every published relation to the object or relation
	// holding its rows.
	Relations          map[string]string      `json:"relations"`
	UnmatchedBilling   int64                  `json:"unmatchedBilling"`
	OverallocatedHours int64                  `json:"overallocatedHours"`
	JoinStats          *attribution.JoinStats `json:"joinStats,omitempty"`
}

// Runner executes one run of the pipeline.
type Runner interface {
	Run(ctx context.Context, runID string) (*RunResult, error)
}

// NewRunID returns a run identifier usable as a relation name suffix. Glue
// lower cases relation names, so the identifier is lower case too.
func NewRunID() string {
	return strings.ToLower(ksuid.New().String())
}
