package server

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
)

const (
	APIV1RunsEndpoint         = "/api/v1/runs"
	APIV1RunsLatestEndpoint   = "/api/v1/runs/latest"
	APIV1RunsManifestEndpoint = "/api/v1/runs/latest/manifest"
	APIV1RunsStatusEndpoint   = "/api/v1/runs/status"
)

const logIdentifierLength = 10

type requestLogger struct {
	logrus.FieldLogger
}

func (l *requestLogger) Print(v ...interface{}) {
	l.FieldLogger.Info(v...)
}

type statusResponse struct {
	Status  string      `json:"status"`
	Details interface{} `json:"details,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type runResponse struct {
	RunID string `json:"runID"`
}

// Router returns the HTTP API of the server.
func (s *Server) Router() chi.Router {
	router := chi.NewRouter()
	logger := s.logger.WithField("component", "api")
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &requestLogger{logger}}))

	router.Get("/healthy", s.healthinessHandler)
	router.Get("/ready", s.readinessHandler)
	router.Handle("/metrics", promhttp.Handler())
	router.Post(APIV1RunsEndpoint, s.triggerRunHandler)
	router.Get(APIV1RunsStatusEndpoint, s.runStatusHandler)
	router.Get(APIV1RunsLatestEndpoint, s.latestRunHandler)
	router.Get(APIV1RunsManifestEndpoint, s.latestManifestHandler)
	return router
}

// healthinessHandler reports the process is serving. If this fails, the
// process should be restarted.
func (s *Server) healthinessHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.newRequestLogger(r)
	writeResponseAsJSON(logger, w, http.StatusOK, statusResponse{Status: "ok"})
}

// readinessHandler checks the query engine answers before runs are
// accepted.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.newRequestLogger(r)
	if err := s.checkEngineSingleFlight(r.Context()); err != nil {
		logger.WithError(err).Debugf("not ready: cannot query the engine")
		writeResponseAsJSON(logger, w, http.StatusInternalServerError, statusResponse{
			Status:  "not ready",
			Details: fmt.Sprintf("cannot query the engine: %v", err),
		})
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) triggerRunHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.newRequestLogger(r)
	runID, err := s.TriggerRun()
	if err == ErrRunInProgress {
		writeErrorResponse(logger, w, http.StatusConflict, "run %s is still in progress", s.Status().Running)
		return
	}
	if err != nil {
		writeErrorResponse(logger, w, http.StatusInternalServerError, "unable to start run: %v", err)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusAccepted, runResponse{RunID: runID})
}

func (s *Server) runStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeResponseAsJSON(s.newRequestLogger(r), w, http.StatusOK, s.Status())
}

func (s *Server) latestRunHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.newRequestLogger(r)
	status := s.Status()
	if status.LastSuccess == nil {
		writeErrorResponse(logger, w, http.StatusNotFound, "no run has succeeded yet")
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, status.LastSuccess)
}

func (s *Server) latestManifestHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.newRequestLogger(r)
	if s.publisher == nil {
		writeErrorResponse(logger, w, http.StatusNotFound, "runs are not published to an output store")
		return
	}
	manifest, err := s.publisher.Latest(r.Context())
	if err == output.ErrNotExist {
		writeErrorResponse(logger, w, http.StatusNotFound, "no run has been published yet")
		return
	}
	if err != nil {
		writeErrorResponse(logger, w, http.StatusInternalServerError, "unable to read the latest manifest: %v", err)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, manifest)
}

func (s *Server) newRequestLogger(r *http.Request) logrus.FieldLogger {
	s.randMu.Lock()
	logID := randomString(s.rand, logIdentifierLength)
	s.randMu.Unlock()
	return s.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"url":    r.URL.String(),
		"logID":  logID,
	})
}

func randomString(rand *rand.Rand, size int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, size)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

func writeErrorResponse(logger logrus.FieldLogger, w http.ResponseWriter, status int, message string, args ...interface{}) {
	msg := fmt.Sprintf(message, args...)
	writeResponseAsJSON(logger, w, status, errorResponse{Error: msg})
}

// writeResponseAsJSON attempts to marshal an arbitrary thing to JSON then write
// it to the http.ResponseWriter
func writeResponseAsJSON(logger logrus.FieldLogger, w http.ResponseWriter, code int, resp interface{}) {
	enc, err := json.Marshal(resp)
	if err != nil {
		logger.WithError(err).Error("failed JSON-encoding HTTP response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(enc); err != nil {
		logger.WithError(err).Error("failed writing HTTP response")
	}
}
