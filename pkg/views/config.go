package views

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
)

const (
	DefaultDatabase           = "rds-performance-insights-db"
	DefaultMetricsTable       = "rds_pi_data_hourly"
	DefaultAggregateLoadView  = "rds_aggregate_load_view"
	DefaultUtilizationView    = "pi_data_view"
	DefaultCostAllocationView = "rds_cost_allocation_view"
	DefaultUnusedCostView     = "rds_unused_cost_view"
	DefaultEngineColumn       = "product['database_engine']"
)

var (
	ErrMissingCURDatabase = errors.New("missing cost and usage report database")
	ErrMissingCURTable    = errors.New("missing cost and usage report table")

	identifierRegexp = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)
)

// Config names the relations read and written by the pipeline.
type Config struct {
	// Database holds the metrics table and the derived relations.
	Database     string `json:"database"`
	MetricsTable string `json:"metricsTable"`
	// CURDatabase and CURTable locate the cost and usage report. Both are
	// required.
	CURDatabase string `json:"curDatabase"`
	CURTable    string `json:"curTable"`

	AggregateLoadView  string `json:"aggregateLoadView"`
	UtilizationView    string `json:"utilizationView"`
	CostAllocationView string `json:"costAllocationView"`
	UnusedCostView     string `json:"unusedCostView"`

	// ProductCode restricts the billing line items.
	ProductCode string `json:"productCode"`
	// EngineColumn is the expression selecting the database engine from the
	// billing table. Reports exported with a product map use
	// product['database_engine'], flat exports product_database_engine.
	EngineColumn string `json:"engineColumn"`

	// WindowStart and WindowEnd optionally restrict both feeds to
	// [WindowStart, WindowEnd).
	WindowStart *time.Time `json:"windowStart,omitempty"`
	WindowEnd   *time.Time `json:"windowEnd,omitempty"`
}

// DefaultConfig returns a Config with every optional field set.
func DefaultConfig() Config {
	return Config{
		Database:           DefaultDatabase,
		MetricsTable:       DefaultMetricsTable,
		AggregateLoadView:  DefaultAggregateLoadView,
		UtilizationView:    DefaultUtilizationView,
		CostAllocationView: DefaultCostAllocationView,
		UnusedCostView:     DefaultUnusedCostView,
		ProductCode:        attribution.DefaultProductCode,
		EngineColumn:       DefaultEngineColumn,
	}
}

// Validate checks the configuration before anything is submitted.
func (c Config) Validate() error {
	if c.CURDatabase == "" {
		return ErrMissingCURDatabase
	}
	if c.CURTable == "" {
		return ErrMissingCURTable
	}
	identifiers := []struct {
		field, value string
	}{
		{"database", c.Database},
		{"metrics table", c.MetricsTable},
		{"cost and usage report database", c.CURDatabase},
		{"cost and usage report table", c.CURTable},
		{"aggregate load view", c.AggregateLoadView},
		{"utilization view", c.UtilizationView},
		{"cost allocation view", c.CostAllocationView},
		{"unused cost view", c.UnusedCostView},
	}
	for _, id := range identifiers {
		if !identifierRegexp.MatchString(id.value) {
			return fmt.Errorf("invalid %s name %q", id.field, id.value)
		}
	}

	seen := make(map[string]Stage)
	for _, stage := range Stages() {
		name := c.RelationName(stage)
		if other, ok := seen[name]; ok {
			return fmt.Errorf("stages %s and %s both write relation %s", other, stage, name)
		}
		seen[name] = stage
	}
	if c.Database == c.CURDatabase && (c.MetricsTable == c.CURTable || seen[c.CURTable] != "") {
		return fmt.Errorf("cost and usage report table %s conflicts with a pipeline relation", c.CURTable)
	}
	if _, ok := seen[c.MetricsTable]; ok {
		return fmt.Errorf("metrics table %s conflicts with a pipeline relation", c.MetricsTable)
	}

	if c.ProductCode == "" || strings.ContainsAny(c.ProductCode, `'";`) {
		return fmt.Errorf("invalid product code %q", c.ProductCode)
	}
	if c.EngineColumn == "" || strings.Contains(c.EngineColumn, ";") {
		return fmt.Errorf("invalid engine column %q", c.EngineColumn)
	}
	if c.WindowStart != nil && c.WindowEnd != nil && !c.WindowStart.Before(*c.WindowEnd) {
		return fmt.Errorf("window start %s must be before window end %s", c.WindowStart, c.WindowEnd)
	}
	return nil
}

// RelationName returns the public relation a stage publishes.
func (c Config) RelationName(stage Stage) string {
	switch stage {
	case StageAggregateLoad:
		return c.AggregateLoadView
	case StageUtilization:
		return c.UtilizationView
	case StageCostAllocation:
		return c.CostAllocationView
	case StageUnusedCost:
		return c.UnusedCostView
	default:
		panic(fmt.Sprintf("unknown stage %q", stage))
	}
}
