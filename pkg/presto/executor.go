package presto

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/db"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

// Executor runs statements against Presto. The client protocol is
// synchronous, so every submitted statement runs on its own goroutine. Its
// outcome is kept until Status reported it or it was cancelled.
type Executor struct {
	ctx     context.Context
	cancel  context.CancelFunc
	queryer db.Queryer
	logger  logrus.FieldLogger

	mu         sync.Mutex
	executions map[query.Handle]*execution
	wg         sync.WaitGroup
}

type execution struct {
	status query.Status
	cancel context.CancelFunc
}

// NewExecutor returns an Executor. Statements are bound to ctx rather than to
// the context passed to Submit, which only covers the submission itself.
func NewExecutor(ctx context.Context, queryer db.Queryer, logger logrus.FieldLogger) *Executor {
	ctx, cancel := context.WithCancel(ctx)
	return &Executor{
		ctx:        ctx,
		cancel:     cancel,
		queryer:    queryer,
		logger:     logger.WithField("component", "presto-executor"),
		executions: make(map[query.Handle]*execution),
	}
}

// Submit starts the computation. Presto keeps results in its catalog so the
// output location is ignored.
func (e *Executor) Submit(ctx context.Context, computation query.Computation, _ query.OutputLocation) (query.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := e.ctx.Err(); err != nil {
		return "", fmt.Errorf("executor is closed: %v", err)
	}
	handle := query.Handle(ksuid.New().String())
	stmtCtx, cancel := context.WithCancel(e.ctx)

	e.mu.Lock()
	e.executions[handle] = &execution{
		status: query.Status{State: query.StatePending},
		cancel: cancel,
	}
	e.mu.Unlock()

	logger := e.logger.WithFields(logrus.Fields{
		"handle":      handle,
		"computation": computation.Name,
	})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		err := ExecuteQuery(stmtCtx, e.queryer, computation.SQL)

		e.mu.Lock()
		defer e.mu.Unlock()
		exec, ok := e.executions[handle]
		if !ok {
			logger.WithError(err).Debug("statement cancelled")
			return
		}
		if err != nil {
			logger.WithError(err).Debug("statement failed")
			exec.status.State = query.StateFailed
			exec.status.Error = err.Error()
			return
		}
		logger.Debug("statement succeeded")
		exec.status.State = query.StateSucceeded
	}()
	return handle, nil
}

// Status reports the state of handle. Once a terminal state was reported
// the execution is forgotten.
func (e *Executor) Status(ctx context.Context, handle query.Handle) (query.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[handle]
	if !ok {
		return query.Status{}, fmt.Errorf("unknown execution %s", handle)
	}
	if exec.status.State != query.StatePending {
		delete(e.executions, handle)
	}
	return exec.status, nil
}

// Cancel interrupts the statement of handle and forgets the execution.
func (e *Executor) Cancel(ctx context.Context, handle query.Handle) error {
	e.mu.Lock()
	exec, ok := e.executions[handle]
	delete(e.executions, handle)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	exec.cancel()
	e.logger.WithField("handle", handle).Info("cancelled statement")
	return nil
}

func (e *Executor) QueryRows(ctx context.Context, sql string) ([]query.Row, error) {
	return ExecuteSelect(ctx, e.queryer, sql)
}

// Close cancels running statements and waits for them to return.
func (e *Executor) Close() error {
	e.cancel()
	e.wg.Wait()
	return e.queryer.Close()
}
