package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/views"
)

// runIDPattern matches the run identifiers NewRunID returns.
var runIDPattern = regexp.MustCompile(`^[0-9a-z]+$`)

// QueryRunner materializes the stages on a query engine.
//
// Every stage is first written under a run-specific name. Public relations
// are replaced only once every stage succeeded, so a failed run leaves the
// previous results in place.
type QueryRunner struct {
	engine  query.Engine
	dialect views.Dialect
	views   views.Config
	cfg     Config
	clock   clock.Clock
	logger  logrus.FieldLogger

	mu sync.Mutex
	// published holds the versioned tables behind the public views in
	// tables mode.
	published map[views.Stage]string
}

func NewQueryRunner(engine query.Engine, dialect views.Dialect, viewsCfg views.Config, cfg Config, clock clock.Clock, logger logrus.FieldLogger) (*QueryRunner, error) {
	if err := viewsCfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == ModeLocal {
		return nil, fmt.Errorf("query runner does not support mode %s", cfg.Mode)
	}
	return &QueryRunner{
		engine:    engine,
		dialect:   dialect,
		views:     viewsCfg,
		cfg:       cfg.withDefaults(),
		clock:     clock,
		logger:    logger.WithField("component", "query-runner"),
		published: make(map[views.Stage]string),
	}, nil
}

type stagedRelation struct {
	stage views.Stage
	name  string
}

func (r *QueryRunner) Run(ctx context.Context, runID string) (*RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger.WithFields(logrus.Fields{
		"runID": runID,
		"mode":  r.cfg.Mode,
	})
	order, err := ResolveOrder(views.Definitions())
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     runID,
		Mode:      r.cfg.Mode,
		StartedAt: r.clock.Now().UTC(),
		Relations: make(map[string]string, len(order)),
	}
	logger.Infof("starting run with %d stages", len(order))

	staged := make(map[views.Stage]string, len(order))
	var created []stagedRelation
	for _, def := range order {
		name := fmt.Sprintf("%s_%s", r.views.RelationName(def.Stage), runID)
		if err := r.materializeStage(ctx, logger, def, name, staged); err != nil {
			if r.cfg.Mode == ModeTables {
				// the last attempt can leave a partial table behind
				created = append(created, stagedRelation{stage: def.Stage, name: name})
			}
			r.dropStaged(logger, created)
			return nil, err
		}
		created = append(created, stagedRelation{stage: def.Stage, name: name})
		staged[def.Stage] = name
	}

	if err := r.reconcile(ctx, logger, staged, result); err != nil {
		r.dropStaged(logger, created)
		return nil, err
	}

	for _, def := range order {
		public := r.views.RelationName(def.Stage)
		if err := r.publishStage(ctx, logger, def, staged[def.Stage]); err != nil {
			r.dropStaged(logger, created)
			return nil, fmt.Errorf("unable to publish %s: %v", public, err)
		}
		if r.cfg.Mode == ModeTables {
			result.Relations[public] = staged[def.Stage]
		} else {
			result.Relations[public] = public
		}
	}

	switch r.cfg.Mode {
	case ModeViews:
		// public views are rendered over each other, staging views are
		// no longer referenced
		r.dropStaged(logger, created)
	case ModeTables:
		r.dropStaged(logger, r.superseded(ctx, logger, order, staged))
	}

	result.FinishedAt = r.clock.Now().UTC()
	lastSuccessfulRunGauge.WithLabelValues(string(r.cfg.Mode)).Set(float64(result.FinishedAt.Unix()))
	logger.WithFields(logrus.Fields{
		"unmatchedBilling":   result.UnmatchedBilling,
		"overallocatedHours": result.OverallocatedHours,
	}).Infof("run finished in %s", result.FinishedAt.Sub(result.StartedAt))
	return result, nil
}

func (r *QueryRunner) materializeStage(ctx context.Context, logger logrus.FieldLogger, def views.Definition, name string, staged map[views.Stage]string) error {
	logger = logger.WithFields(logrus.Fields{
		"stage":    def.Stage,
		"relation": name,
	})
	labels := []string{string(r.cfg.Mode), string(def.Stage)}
	stageRunsTotalCounter.WithLabelValues(labels...).Inc()

	sql, err := views.Render(def, views.NewTemplateContext(r.views, r.dialect, staged))
	if err != nil {
		stageFailedCounter.WithLabelValues(labels...).Inc()
		return err
	}
	var (
		stmt        string
		beforeRetry func()
		started     = r.clock.Now()
	)
	if r.cfg.Mode == ModeTables {
		stmt = r.dialect.CreateTableAs(name, sql)
		// a failed CTAS can leave the table behind
		beforeRetry = func() {
			r.dropRelation(logger, stagedRelation{stage: def.Stage, name: name})
		}
	} else {
		stmt = r.dialect.CreateView(name, sql)
	}

	logger.Infof("materializing stage %s", def.Stage)
	err = r.runWithRetry(ctx, logger, def.Stage, query.Computation{Name: name, SQL: stmt}, beforeRetry)
	stageDurationHistogram.WithLabelValues(labels...).Observe(r.clock.Since(started).Seconds())
	if err != nil {
		stageFailedCounter.WithLabelValues(labels...).Inc()
		logger.WithError(err).Errorf("materializing stage %s FAILED", def.Stage)
		return fmt.Errorf("unable to materialize stage %s: %v", def.Stage, err)
	}
	return nil
}

// publishStage points the public relation of a stage at the run's output.
func (r *QueryRunner) publishStage(ctx context.Context, logger logrus.FieldLogger, def views.Definition, name string) error {
	public := r.views.RelationName(def.Stage)
	var sql string
	switch r.cfg.Mode {
	case ModeTables:
		sql = fmt.Sprintf("SELECT * FROM %s", r.dialect.QualifiedName(name))
	default:
		var err error
		sql, err = views.Render(def, views.NewTemplateContext(r.views, r.dialect, nil))
		if err != nil {
			return err
		}
	}
	logger.WithField("stage", def.Stage).Debugf("publishing %s", public)
	return r.runWithRetry(ctx, logger, def.Stage, query.Computation{
		Name: public,
		SQL:  r.dialect.CreateView(public, sql),
	}, nil)
}

// reconcile counts the billing rows left out of the cost join and the
// overallocated resource-hours of the run.
func (r *QueryRunner) reconcile(ctx context.Context, logger logrus.FieldLogger, staged map[views.Stage]string, result *RunResult) error {
	tmplCtx := views.NewTemplateContext(r.views, r.dialect, staged)

	counts := []struct {
		render func(*views.TemplateContext) (string, error)
		column string
		dst    *int64
	}{
		{views.ReconciliationQuery, "unmatched_billing", &result.UnmatchedBilling},
		{views.OverallocatedQuery, "overallocated_hours", &result.OverallocatedHours},
	}
	for _, c := range counts {
		sql, err := c.render(tmplCtx)
		if err != nil {
			return err
		}
		rows, err := r.engine.QueryRows(ctx, sql)
		if err != nil {
			return fmt.Errorf("unable to count %s: %v", c.column, err)
		}
		if len(rows) != 1 {
			return fmt.Errorf("expected a single row counting %s, got %d", c.column, len(rows))
		}
		d := rowDecoder{row: rows[0]}
		*c.dst = int64(d.float(c.column))
		if d.err != nil {
			return d.err
		}
	}

	joinRowsCounter.WithLabelValues("unmatched_billing").Add(float64(result.UnmatchedBilling))
	overallocatedHoursCounter.Add(float64(result.OverallocatedHours))
	if result.UnmatchedBilling > 0 {
		logger.Warnf("%d billing line items have no utilization for their resource-hour", result.UnmatchedBilling)
	}
	if result.OverallocatedHours > 0 {
		logger.Warnf("%d resource-hours are overallocated", result.OverallocatedHours)
	}
	return nil
}

// superseded returns the versioned tables no public view selects from
// anymore, in stage order. Besides the versions this runner published,
// tables left by earlier processes are found through the catalog.
func (r *QueryRunner) superseded(ctx context.Context, logger logrus.FieldLogger, order []views.Definition, staged map[views.Stage]string) []stagedRelation {
	seen := make(map[string]bool)
	for _, def := range order {
		seen[strings.ToLower(staged[def.Stage])] = true
		seen[strings.ToLower(r.views.RelationName(def.Stage))] = true
	}
	discovered, err := r.versionedTables(ctx)
	if err != nil {
		logger.WithError(err).Warn("unable to list versioned tables, only dropping versions of this process")
	}

	var superseded []stagedRelation
	add := func(rel stagedRelation) {
		if seen[strings.ToLower(rel.name)] {
			return
		}
		seen[strings.ToLower(rel.name)] = true
		superseded = append(superseded, rel)
	}
	for _, def := range order {
		if prev, ok := r.published[def.Stage]; ok {
			add(stagedRelation{stage: def.Stage, name: prev})
		}
		for _, rel := range discovered {
			if rel.stage == def.Stage {
				add(rel)
			}
		}
		r.published[def.Stage] = staged[def.Stage]
	}
	return superseded
}

// versionedTables lists the tables named <public relation>_<run ID>.
func (r *QueryRunner) versionedTables(ctx context.Context) ([]stagedRelation, error) {
	sql, err := views.VersionedTablesQuery(views.NewTemplateContext(r.views, r.dialect, nil))
	if err != nil {
		return nil, err
	}
	rows, err := r.engine.QueryRows(ctx, sql)
	if err != nil {
		return nil, err
	}
	var tables []stagedRelation
	for i, row := range rows {
		d := rowDecoder{row: row}
		name := d.string("table_name")
		if d.err != nil {
			return nil, fmt.Errorf("invalid table row %d: %v", i, d.err)
		}
		lower := strings.ToLower(name)
		for _, stage := range views.Stages() {
			prefix := strings.ToLower(r.views.RelationName(stage)) + "_"
			if strings.HasPrefix(lower, prefix) && runIDPattern.MatchString(lower[len(prefix):]) {
				tables = append(tables, stagedRelation{stage: stage, name: name})
				break
			}
		}
	}
	return tables, nil
}

// runWithRetry runs computation, resubmitting it with exponential backoff
// until it succeeds or MaxAttempts submissions failed.
func (r *QueryRunner) runWithRetry(ctx context.Context, logger logrus.FieldLogger, stage views.Stage, computation query.Computation, beforeRetry func()) error {
	backoff := wait.Backoff{
		Duration: r.cfg.RetryBackoff,
		Factor:   2,
		Steps:    r.cfg.MaxAttempts,
	}
	var (
		attempt int
		lastErr error
	)
	err := wait.ExponentialBackoff(backoff, func() (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		attempt++
		if attempt > 1 {
			stageRetriesCounter.WithLabelValues(string(r.cfg.Mode), string(stage)).Inc()
			if beforeRetry != nil {
				beforeRetry()
			}
		}
		handle, err := query.Run(ctx, r.engine, computation, r.cfg.Output, r.cfg.Wait)
		if err == nil {
			logger.WithField("handle", handle).Debugf("%s succeeded on attempt %d", computation.Name, attempt)
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		lastErr = err
		logger.WithError(err).WithField("handle", handle).Warnf("attempt %d of %d for %s failed", attempt, r.cfg.MaxAttempts, computation.Name)
		return false, nil
	})
	if err == wait.ErrWaitTimeout {
		return fmt.Errorf("%s failed after %d attempts: %w", computation.Name, attempt, lastErr)
	}
	return err
}

// dropStaged removes relations in reverse creation order. Failures are
// logged, never returned.
func (r *QueryRunner) dropStaged(logger logrus.FieldLogger, relations []stagedRelation) {
	for i := len(relations) - 1; i >= 0; i-- {
		r.dropRelation(logger, relations[i])
	}
}

func (r *QueryRunner) dropRelation(logger logrus.FieldLogger, rel stagedRelation) {
	stmt := r.dialect.DropView(rel.name)
	if r.cfg.Mode == ModeTables {
		stmt = r.dialect.DropTable(rel.name)
	}
	// the run's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), r.cleanupTimeout())
	defer cancel()
	if _, err := query.Run(ctx, r.engine, query.Computation{Name: "drop " + rel.name, SQL: stmt}, r.cfg.Output, r.cfg.Wait); err != nil {
		logger.WithError(err).WithField("stage", rel.stage).Warnf("unable to drop %s", rel.name)
		return
	}
	logger.WithField("stage", rel.stage).Debugf("dropped %s", rel.name)
}

func (r *QueryRunner) cleanupTimeout() time.Duration {
	if r.cfg.Wait.Timeout > 0 {
		return r.cfg.Wait.Timeout
	}
	return query.DefaultTimeout
}
