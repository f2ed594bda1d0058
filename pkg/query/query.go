// Package query defines the asynchronous execution interface the pipeline
// uses to materialize relations on a query engine.
package query

import (
	"context"
	"errors"
)

var (
	// ErrTimeout is returned when a computation did not finish before its
	// deadline.
	ErrTimeout = errors.New("timed out waiting for computation")
	// ErrFailed is returned when the engine reports a computation as failed.
	ErrFailed = errors.New("computation failed")
)

// State is the lifecycle state of a submitted computation.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Handle identifies a submitted computation.
type Handle string

// Computation is a unit of work for the engine: a single SQL statement.
type Computation struct {
	// Name identifies the computation in logs, usually the relation it
	// produces.
	Name string
	SQL  string
}

// OutputLocation is where the engine writes statement results. Engines that
// keep results in their own catalog ignore it.
type OutputLocation string

// Status is the state of a computation. Error holds the engine's failure
// detail when State is StateFailed.
type Status struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// Row is a result row keyed by column name.
type Row map[string]interface{}

// Executor submits computations and reports their status.
type Executor interface {
	Submit(ctx context.Context, computation Computation, output OutputLocation) (Handle, error)
	Status(ctx context.Context, handle Handle) (Status, error)
}

// RowQuerier runs a query and returns its rows.
type RowQuerier interface {
	QueryRows(ctx context.Context, sql string) ([]Row, error)
}

// Canceler is implemented by executors able to stop a computation that is
// still running.
type Canceler interface {
	Cancel(ctx context.Context, handle Handle) error
}

// Engine is a query engine able to both materialize relations and return rows.
type Engine interface {
	Executor
	RowQuerier
}
