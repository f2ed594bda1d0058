package query

//go:generate mockgen -destination=mock/mock_executor.go -package=mock github.com/kube-reporting/tenant-cost-attribution/pkg/query Executor,RowQuerier,Engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultTimeout      = 5 * time.Minute
)

// WaitOptions bound the polling of a computation.
type WaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Wait polls the status of handle until it succeeds, fails, or opts.Timeout
// elapses. A failed computation returns an error wrapping ErrFailed with the
// engine's detail, a timeout returns ErrTimeout.
func Wait(ctx context.Context, executor Executor, handle Handle, opts WaitOptions) (Status, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var status Status
	err := wait.PollImmediateUntil(opts.PollInterval, func() (bool, error) {
		var err error
		status, err = executor.Status(waitCtx, handle)
		if err != nil {
			if waitCtx.Err() != nil {
				// the deadline interrupted the status request
				return false, wait.ErrWaitTimeout
			}
			return false, err
		}
		switch status.State {
		case StateSucceeded:
			return true, nil
		case StateFailed:
			return false, fmt.Errorf("%w: %s", ErrFailed, status.Error)
		default:
			return false, nil
		}
	}, waitCtx.Done())
	if err == wait.ErrWaitTimeout {
		if ctx.Err() != nil {
			return status, ctx.Err()
		}
		return status, fmt.Errorf("%w: %s after %s", ErrTimeout, handle, opts.Timeout)
	}
	return status, err
}

// Run submits computation and waits for it to finish. When the wait times
// out or ctx is done, the computation is cancelled if executor is a
// Canceler, so it cannot complete after Run returned.
func Run(ctx context.Context, executor Executor, computation Computation, output OutputLocation, opts WaitOptions) (Handle, error) {
	handle, err := executor.Submit(ctx, computation, output)
	if err != nil {
		return "", fmt.Errorf("unable to submit %s: %v", computation.Name, err)
	}
	if _, err := Wait(ctx, executor, handle, opts); err != nil {
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			if cerr := cancelComputation(executor, handle, opts); cerr != nil {
				return handle, fmt.Errorf("%w, unable to cancel %s: %v", err, handle, cerr)
			}
		}
		return handle, err
	}
	return handle, nil
}

func cancelComputation(executor Executor, handle Handle, opts WaitOptions) error {
	canceler, ok := executor.(Canceler)
	if !ok {
		return nil
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// ctx of the run is usually done already
	ctx, cancelFunc := context.WithTimeout(context.Background(), timeout)
	defer cancelFunc()
	return canceler.Cancel(ctx, handle)
}
