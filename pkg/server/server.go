// Package server exposes pipeline runs over HTTP and triggers them on a
// schedule.
package server

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/pipeline"
)

// ErrRunInProgress is returned when a run is triggered while another one is
// still executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// HealthCheck reports whether the query engine can serve runs.
type HealthCheck func(ctx context.Context) error

// RunStatus is the state of the most recent runs.
type RunStatus struct {
	Running     string              `json:"running,omitempty"`
	LastRunID   string              `json:"lastRunID,omitempty"`
	LastError   string              `json:"lastError,omitempty"`
	LastSuccess *pipeline.RunResult `json:"lastSuccess,omitempty"`
}

type Server struct {
	ctx         context.Context
	runner      pipeline.Runner
	publisher   *output.Publisher
	healthCheck HealthCheck
	clock       clock.Clock
	logger      logrus.FieldLogger
	rand        *rand.Rand
	newRunID    func() string

	mu     sync.Mutex
	status RunStatus
	runs   sync.WaitGroup
	randMu sync.Mutex

	// ensures at most a single health check query runs at one time
	healthCheckSingleFlight singleflight.Group
}

// New returns a Server executing runs with runner. Runs are bound to ctx.
// publisher is only set in local mode, where run manifests are published
// to an output store.
func New(ctx context.Context, runner pipeline.Runner, publisher *output.Publisher, healthCheck HealthCheck, clock clock.Clock, logger logrus.FieldLogger) *Server {
	return &Server{
		ctx:         ctx,
		runner:      runner,
		publisher:   publisher,
		healthCheck: healthCheck,
		clock:       clock,
		logger:      logger.WithField("component", "server"),
		rand:        rand.New(rand.NewSource(clock.Now().UnixNano())),
		newRunID:    pipeline.NewRunID,
	}
}

// TriggerRun starts a run in the background and returns its ID.
func (s *Server) TriggerRun() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Running != "" {
		return "", ErrRunInProgress
	}
	runID := s.newRunID()
	s.status.Running = runID
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(runID)
	}()
	return runID, nil
}

func (s *Server) execute(runID string) {
	logger := s.logger.WithField("runID", runID)
	logger.Info("run started")
	result, err := s.runner.Run(s.ctx, runID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Running = ""
	s.status.LastRunID = runID
	if err != nil {
		logger.WithError(err).Error("run failed")
		s.status.LastError = err.Error()
		return
	}
	s.status.LastError = ""
	s.status.LastSuccess = result
}

// Status returns a snapshot of the run state.
func (s *Server) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Wait blocks until every triggered run returned.
func (s *Server) Wait() {
	s.runs.Wait()
}

func (s *Server) checkEngineSingleFlight(ctx context.Context) error {
	const key = "engine-read"
	_, err, _ := s.healthCheckSingleFlight.Do(key, func() (interface{}, error) {
		defer s.healthCheckSingleFlight.Forget(key)
		if s.healthCheck == nil {
			return nil, nil
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return nil, s.healthCheck(ctx)
	})
	return err
}
