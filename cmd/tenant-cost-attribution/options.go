package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/aws"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/db"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/pipeline"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/presto"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/views"
)

const (
	engineAthena = "athena"
	enginePresto = "presto"

	defaultPrestoHost = "presto:8080"
)

type engineOptions struct {
	Engine          string
	Region          string
	AthenaWorkGroup string
	AthenaOutput    string
	PrestoHost      string
	PrestoUser      string
	PrestoCatalog   string
	PrestoUseTLS    bool
	LogQueries      bool
}

type viewsOptions struct {
	Config      views.Config
	WindowStart string
	WindowEnd   string
}

var (
	engineOpts   engineOptions
	viewsOpts    = viewsOptions{Config: views.DefaultConfig()}
	pipelineOpts = pipeline.Config{
		Mode: pipeline.ModeViews,
		Wait: query.WaitOptions{
			PollInterval: query.DefaultPollInterval,
			Timeout:      query.DefaultTimeout,
		},
		MaxAttempts:  pipeline.DefaultMaxAttempts,
		RetryBackoff: pipeline.DefaultRetryBackoff,
		Workers:      4,
	}
	outputLocation string
)

func addEngineFlags(fs *pflag.FlagSet) {
	fs.StringVar(&engineOpts.Engine, "engine", engineAthena, "query engine, athena or presto")
	fs.StringVar(&engineOpts.Region, "region", "us-east-1", "AWS region of Athena and the output bucket")
	fs.StringVar(&engineOpts.AthenaWorkGroup, "athena-workgroup", "primary", "Athena work group")
	fs.StringVar(&engineOpts.AthenaOutput, "athena-output", "", "S3 location for Athena query results, defaults to s3://rds-metrics-<account>-<region>/athena_output/")
	fs.StringVar(&engineOpts.PrestoHost, "presto-host", defaultPrestoHost, "the hostname:port for connecting to Presto")
	fs.StringVar(&engineOpts.PrestoUser, "presto-user", "tenant-cost-attribution", "the user for connecting to Presto")
	fs.StringVar(&engineOpts.PrestoCatalog, "presto-catalog", "hive", "the Presto catalog holding the databases")
	fs.BoolVar(&engineOpts.PrestoUseTLS, "presto-use-tls", false, "connect to Presto over TLS")
	fs.BoolVar(&engineOpts.LogQueries, "log-queries", false, "log every query sent to Presto at debug level")
}

func addViewsFlags(fs *pflag.FlagSet) {
	cfg := &viewsOpts.Config
	fs.StringVar(&cfg.Database, "database", cfg.Database, "database holding the metrics table and the derived relations")
	fs.StringVar(&cfg.MetricsTable, "metrics-table", cfg.MetricsTable, "table of the Performance Insights metrics feed")
	fs.StringVar(&cfg.CURDatabase, "cur-database", "", "database of the cost and usage report (required)")
	fs.StringVar(&cfg.CURTable, "cur-table", "", "table of the cost and usage report (required)")
	fs.StringVar(&cfg.AggregateLoadView, "aggregate-load-view", cfg.AggregateLoadView, "relation holding the load of every resource-hour")
	fs.StringVar(&cfg.UtilizationView, "utilization-view", cfg.UtilizationView, "relation holding every tenant's utilization")
	fs.StringVar(&cfg.CostAllocationView, "cost-allocation-view", cfg.CostAllocationView, "relation holding every tenant's cost")
	fs.StringVar(&cfg.UnusedCostView, "unused-cost-view", cfg.UnusedCostView, "relation holding the unused cost of every resource-hour")
	fs.StringVar(&cfg.ProductCode, "product-code", cfg.ProductCode, "billing product code of the database instances")
	fs.StringVar(&cfg.EngineColumn, "engine-column", cfg.EngineColumn, "expression selecting the database engine from the cost and usage report")
	fs.StringVar(&viewsOpts.WindowStart, "window-start", "", "if set, an RFC3339 timestamp restricting inputs to hours at or after it")
	fs.StringVar(&viewsOpts.WindowEnd, "window-end", "", "if set, an RFC3339 timestamp restricting inputs to hours before it")
}

func addPipelineFlags(fs *pflag.FlagSet, modes string) {
	fs.StringVar((*string)(&pipelineOpts.Mode), "mode", string(pipelineOpts.Mode), "how relations are materialized: "+modes)
	fs.DurationVar(&pipelineOpts.Wait.PollInterval, "poll-interval", pipelineOpts.Wait.PollInterval, "how often a submitted computation is polled")
	fs.DurationVar(&pipelineOpts.Wait.Timeout, "timeout", pipelineOpts.Wait.Timeout, "how long a single computation may run")
	fs.IntVar(&pipelineOpts.MaxAttempts, "max-attempts", pipelineOpts.MaxAttempts, "submissions of a computation before the run fails")
	fs.DurationVar(&pipelineOpts.RetryBackoff, "retry-backoff", pipelineOpts.RetryBackoff, "delay before the first resubmission, doubled on every further one")
}

func addOutputFlags(fs *pflag.FlagSet) {
	fs.StringVar(&outputLocation, "output", "", "s3://bucket/prefix or a local directory the relations are written to in local mode")
	fs.IntVar(&pipelineOpts.Workers, "workers", pipelineOpts.Workers, "resources computed concurrently in local mode")
}

// buildViewsConfig parses the window and validates the result.
func buildViewsConfig() (views.Config, error) {
	cfg := viewsOpts.Config
	parse := func(flag, value string) (*time.Time, error) {
		if value == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("invalid RFC3339 timestamp for --%s, %s: %v", flag, value, err)
		}
		t = t.UTC()
		return &t, nil
	}
	var err error
	if cfg.WindowStart, err = parse("window-start", viewsOpts.WindowStart); err != nil {
		return cfg, err
	}
	if cfg.WindowEnd, err = parse("window-end", viewsOpts.WindowEnd); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// engine bundles a connected query engine with its dialect.
type engine struct {
	query.Engine
	dialect views.Dialect
	output  query.OutputLocation
	clients *aws.Clients
	close   func() error
}

func (e *engine) awsClients() (*aws.Clients, error) {
	if e.clients != nil {
		return e.clients, nil
	}
	clients, err := aws.NewClients(engineOpts.Region)
	if err != nil {
		return nil, err
	}
	e.clients = clients
	return clients, nil
}

func newEngine(ctx context.Context, cfg views.Config) (*engine, error) {
	logger.Debugf("engine options: %s", spew.Sprintf("%+v", engineOpts))
	switch engineOpts.Engine {
	case engineAthena:
		e := &engine{close: func() error { return nil }}
		clients, err := e.awsClients()
		if err != nil {
			return nil, err
		}
		out := engineOpts.AthenaOutput
		if out == "" {
			out, err = aws.DefaultAthenaOutput(ctx, clients.STS, engineOpts.Region)
			if err != nil {
				return nil, err
			}
		}
		e.output = query.OutputLocation(out)
		e.Engine = aws.NewAthenaExecutor(clients.Athena, aws.AthenaConfig{
			Database:  cfg.Database,
			WorkGroup: engineOpts.AthenaWorkGroup,
			Output:    e.output,
			Wait:      pipelineOpts.Wait,
		}, logger)
		e.dialect = aws.AthenaDialect{Database: cfg.Database}
		return e, nil
	case enginePresto:
		connStr := presto.ConnString(engineOpts.PrestoHost, engineOpts.PrestoUser, engineOpts.PrestoCatalog, cfg.Database, engineOpts.PrestoUseTLS)
		conn, err := presto.NewPrestoConnWithRetry(ctx, logger, connStr, time.Second, 10)
		if err != nil {
			return nil, err
		}
		queryer := db.NewLoggingQueryer(conn, logger, engineOpts.LogQueries)
		executor := presto.NewExecutor(ctx, queryer, logger)
		return &engine{
			Engine:  executor,
			dialect: presto.Dialect{Catalog: engineOpts.PrestoCatalog, Schema: cfg.Database},
			close:   executor.Close,
		}, nil
	default:
		return nil, fmt.Errorf("invalid engine %q, must be %s or %s", engineOpts.Engine, engineAthena, enginePresto)
	}
}

// newStore opens the output location, an S3 URI or a local directory.
func newStore(e *engine) (output.Store, error) {
	if outputLocation == "" {
		return nil, fmt.Errorf("--output must be set in %s mode", pipeline.ModeLocal)
	}
	if !strings.HasPrefix(outputLocation, "s3://") {
		return output.NewDirStore(outputLocation), nil
	}
	bucket, prefix, err := aws.ParseS3URI(outputLocation)
	if err != nil {
		return nil, err
	}
	clients, err := e.awsClients()
	if err != nil {
		return nil, err
	}
	return aws.NewS3Store(clients.S3, bucket, prefix), nil
}

// newRunner builds the runner of the configured mode.
func newRunner(e *engine, cfg views.Config) (pipeline.Runner, *output.Publisher, error) {
	pipelineCfg := pipelineOpts
	pipelineCfg.Output = e.output
	if err := pipelineCfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger.Debugf("pipeline config: %s", spew.Sprintf("%+v", pipelineCfg))
	logger.Debugf("views config: %s", spew.Sdump(cfg))

	if pipelineCfg.Mode != pipeline.ModeLocal {
		runner, err := pipeline.NewQueryRunner(e, e.dialect, cfg, pipelineCfg, clock.RealClock{}, logger)
		return runner, nil, err
	}
	store, err := newStore(e)
	if err != nil {
		return nil, nil, err
	}
	publisher := output.NewPublisher(store, pipeline.RelationNames(cfg), clock.RealClock{}, logger)
	runner, err := pipeline.NewLocalRunner(e, e.dialect, cfg, pipelineCfg, publisher, clock.RealClock{}, logger)
	return runner, publisher, err
}
