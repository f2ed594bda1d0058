package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/views"
)

// LocalRunner loads both feeds through a query engine, computes every stage
// in process and publishes the relations to an output store.
type LocalRunner struct {
	querier   query.RowQuerier
	dialect   views.Dialect
	views     views.Config
	cfg       Config
	publisher *output.Publisher
	clock     clock.Clock
	logger    logrus.FieldLogger
}

func NewLocalRunner(querier query.RowQuerier, dialect views.Dialect, viewsCfg views.Config, cfg Config, publisher *output.Publisher, clock clock.Clock, logger logrus.FieldLogger) (*LocalRunner, error) {
	if err := viewsCfg.Validate(); err != nil {
		return nil, err
	}
	return &LocalRunner{
		querier:   querier,
		dialect:   dialect,
		views:     viewsCfg,
		cfg:       cfg.withDefaults(),
		publisher: publisher,
		clock:     clock,
		logger:    logger.WithField("component", "local-runner"),
	}, nil
}

// RelationNames returns the output names matching the configured views.
func RelationNames(cfg views.Config) output.RelationNames {
	return output.RelationNames{
		Utilization:    cfg.UtilizationView,
		CostAllocation: cfg.CostAllocationView,
		UnusedCost:     cfg.UnusedCostView,
	}
}

// LoadInputs fetches the samples and line items of the configured window.
func (r *LocalRunner) LoadInputs(ctx context.Context) (attribution.Inputs, error) {
	tmplCtx := views.NewTemplateContext(r.views, r.dialect, nil)

	samplesSQL, err := views.SamplesQuery(tmplCtx)
	if err != nil {
		return attribution.Inputs{}, err
	}
	rows, err := r.querier.QueryRows(ctx, samplesSQL)
	if err != nil {
		return attribution.Inputs{}, fmt.Errorf("unable to load metric samples: %v", err)
	}
	samples, err := DecodeSamples(rows)
	if err != nil {
		return attribution.Inputs{}, err
	}

	lineItemsSQL, err := views.LineItemsQuery(tmplCtx)
	if err != nil {
		return attribution.Inputs{}, err
	}
	rows, err = r.querier.QueryRows(ctx, lineItemsSQL)
	if err != nil {
		return attribution.Inputs{}, fmt.Errorf("unable to load billing line items: %v", err)
	}
	items, err := DecodeLineItems(rows)
	if err != nil {
		return attribution.Inputs{}, err
	}
	return attribution.Inputs{Samples: samples, LineItems: items}, nil
}

func (r *LocalRunner) Run(ctx context.Context, runID string) (*RunResult, error) {
	logger := r.logger.WithFields(logrus.Fields{
		"runID": runID,
		"mode":  ModeLocal,
	})
	started := r.clock.Now()
	labels := []string{string(ModeLocal), "compute"}
	stageRunsTotalCounter.WithLabelValues(labels...).Inc()

	result, err := r.run(ctx, logger, runID)
	stageDurationHistogram.WithLabelValues(labels...).Observe(r.clock.Since(started).Seconds())
	if err != nil {
		stageFailedCounter.WithLabelValues(labels...).Inc()
		logger.WithError(err).Error("run FAILED")
		return nil, err
	}
	result.StartedAt = started.UTC()
	result.FinishedAt = r.clock.Now().UTC()
	lastSuccessfulRunGauge.WithLabelValues(string(ModeLocal)).Set(float64(result.FinishedAt.Unix()))
	logger.Infof("run finished in %s", result.FinishedAt.Sub(result.StartedAt))
	return result, nil
}

func (r *LocalRunner) run(ctx context.Context, logger logrus.FieldLogger, runID string) (*RunResult, error) {
	inputs, err := r.LoadInputs(ctx)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded %d metric samples and %d billing line items", len(inputs.Samples), len(inputs.LineItems))

	res, err := attribution.Compute(ctx, inputs, attribution.Options{
		ProductCode: r.views.ProductCode,
		Workers:     r.cfg.Workers,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	recordJoinStats(res.JoinStats)
	overallocatedHoursCounter.Add(float64(res.Overallocated()))

	manifest, err := r.publisher.Publish(ctx, runID, res)
	if err != nil {
		return nil, fmt.Errorf("unable to publish run %s: %v", runID, err)
	}

	stats := res.JoinStats
	result := &RunResult{
		RunID:              runID,
		Mode:               ModeLocal,
		Relations:          make(map[string]string, len(manifest.Relations)),
		UnmatchedBilling:   int64(stats.UnmatchedBilling),
		OverallocatedHours: int64(manifest.OverallocatedHours),
		JoinStats:          &stats,
	}
	for _, rel := range manifest.Relations {
		result.Relations[rel.Name] = rel.Key
	}
	return result, nil
}

func recordJoinStats(stats attribution.JoinStats) {
	joinRowsCounter.WithLabelValues("billing").Add(float64(stats.BillingRows))
	joinRowsCounter.WithLabelValues("filtered").Add(float64(stats.Filtered))
	joinRowsCounter.WithLabelValues("unmatched_billing").Add(float64(stats.UnmatchedBilling))
	joinRowsCounter.WithLabelValues("unmatched_utilization").Add(float64(stats.UnmatchedUtilization))
	joinRowsCounter.WithLabelValues("emitted").Add(float64(stats.Emitted))
}
