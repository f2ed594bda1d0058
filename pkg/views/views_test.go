package views

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/presto"
)

var testDialect = presto.Dialect{Catalog: "hive", Schema: "rds-performance-insights-db"}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CURDatabase = "athenacurcfn_rds"
	cfg.CURTable = "rds_report"
	return cfg
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestConfigValidate(t *testing.T) {
	start := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	tests := map[string]struct {
		mutate      func(*Config)
		expectedErr string
	}{
		"defaults with a report are valid": {
			mutate: func(*Config) {},
		},
		"missing report database": {
			mutate:      func(c *Config) { c.CURDatabase = "" },
			expectedErr: ErrMissingCURDatabase.Error(),
		},
		"missing report table": {
			mutate:      func(c *Config) { c.CURTable = "" },
			expectedErr: ErrMissingCURTable.Error(),
		},
		"quoted table name": {
			mutate:      func(c *Config) { c.MetricsTable = `pi"data` },
			expectedErr: `invalid metrics table name "pi\"data"`,
		},
		"two stages writing one relation": {
			mutate:      func(c *Config) { c.UnusedCostView = c.CostAllocationView },
			expectedErr: "stages cost_allocation and unused_cost both write relation rds_cost_allocation_view",
		},
		"metrics table overwritten by a stage": {
			mutate:      func(c *Config) { c.UtilizationView = c.MetricsTable },
			expectedErr: "metrics table rds_pi_data_hourly conflicts with a pipeline relation",
		},
		"report table overwritten by a stage": {
			mutate: func(c *Config) {
				c.CURDatabase = c.Database
				c.CURTable = c.UnusedCostView
			},
			expectedErr: "cost and usage report table rds_unused_cost_view conflicts with a pipeline relation",
		},
		"quoted product code": {
			mutate:      func(c *Config) { c.ProductCode = "Amazon'RDS" },
			expectedErr: `invalid product code "Amazon'RDS"`,
		},
		"empty window": {
			mutate: func(c *Config) {
				c.WindowStart = timePtr(start)
				c.WindowEnd = timePtr(start)
			},
			expectedErr: "window start 2021-03-04 00:00:00 +0000 UTC must be before window end 2021-03-04 00:00:00 +0000 UTC",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectedErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.expectedErr)
		})
	}
}

func TestStagesAreInDependencyOrder(t *testing.T) {
	assert.Equal(t, []Stage{StageAggregateLoad, StageUtilization, StageCostAllocation, StageUnusedCost}, Stages())

	seen := make(map[Stage]bool)
	for _, def := range Definitions() {
		for _, dep := range def.DependsOn {
			assert.True(t, seen[dep], "stage %s depends on later stage %s", def.Stage, dep)
		}
		seen[def.Stage] = true
	}
}

func TestRenderDefinitions(t *testing.T) {
	tmplCtx := NewTemplateContext(testConfig(), testDialect, nil)
	for _, def := range Definitions() {
		sql, err := Render(def, tmplCtx)
		require.NoError(t, err, "stage %s", def.Stage)
		assert.NotContains(t, sql, "{|", "stage %s", def.Stage)
		for _, dep := range def.DependsOn {
			assert.Contains(t, sql, testDialect.QualifiedName(tmplCtx.Config.RelationName(dep)), "stage %s", def.Stage)
		}
	}
}

func TestRenderCostAllocation(t *testing.T) {
	tmplCtx := NewTemplateContext(testConfig(), testDialect, map[Stage]string{
		StageUtilization: "pi_data_view_staging",
	})
	sql, err := Render(definitions[2], tmplCtx)
	require.NoError(t, err)

	for _, fragment := range []string{
		`FROM "hive"."athenacurcfn_rds"."rds_report" cur`,
		`JOIN "hive"."rds-performance-insights-db"."pi_data_view_staging" u`,
		"date_trunc('hour', cur.line_item_usage_start_date) = CAST(u.timestamp AS timestamp)",
		"cur.line_item_product_code = 'AmazonRDS'",
		"cur.product_instance_type <> ''",
		"cur.product['database_engine'] AS product_database_engine",
		attribution.DatabaseCostSQL("cur") + " AS database_cost",
		"AND TRUE",
	} {
		assert.Contains(t, sql, fragment)
	}
}

func TestRenderUnusedCostFlagsOverallocation(t *testing.T) {
	sql, err := Render(definitions[3], NewTemplateContext(testConfig(), testDialect, nil))
	require.NoError(t, err)
	assert.Contains(t, sql, "sum(perc_utilization_rebased) > 1 + 1e-09 AS overallocated")
	assert.Contains(t, sql, "GROUP BY date_trunc('hour', timestamp), line_item_resource_id")
}

func TestWindowPredicates(t *testing.T) {
	start := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)

	tests := map[string]struct {
		start, end      *time.Time
		expectedMetrics string
		expectedBilling string
	}{
		"open": {
			expectedMetrics: "TRUE",
			expectedBilling: "TRUE",
		},
		"closed": {
			start:           &start,
			end:             &end,
			expectedMetrics: "timestamp >= '2021-03-04 10:00:00' AND timestamp < '2021-03-04 12:00:00'",
			expectedBilling: "timestamp >= timestamp '2021-03-04 10:00:00.000' AND timestamp < timestamp '2021-03-04 12:00:00.000'",
		},
		"start only": {
			start:           &start,
			expectedMetrics: "timestamp >= '2021-03-04 10:00:00'",
			expectedBilling: "timestamp >= timestamp '2021-03-04 10:00:00.000'",
		},
		"end only": {
			end:             &end,
			expectedMetrics: "timestamp < '2021-03-04 12:00:00'",
			expectedBilling: "timestamp < timestamp '2021-03-04 12:00:00.000'",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.WindowStart = tt.start
			cfg.WindowEnd = tt.end
			tmplCtx := NewTemplateContext(cfg, testDialect, nil)
			assert.Equal(t, tt.expectedMetrics, tmplCtx.MetricsWindow("timestamp"))
			assert.Equal(t, tt.expectedBilling, tmplCtx.BillingWindow("timestamp"))
		})
	}
}

func TestRenderInputQueries(t *testing.T) {
	cfg := testConfig()
	cfg.WindowStart = timePtr(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC))
	tmplCtx := NewTemplateContext(cfg, testDialect, nil)

	samples, err := SamplesQuery(tmplCtx)
	require.NoError(t, err)
	assert.Contains(t, samples, `"db.user.name" AS user_name`)
	assert.Contains(t, samples, `FROM "hive"."rds-performance-insights-db"."rds_pi_data_hourly"`)
	assert.Contains(t, samples, "WHERE timestamp >= '2021-03-04 00:00:00'")

	items, err := LineItemsQuery(tmplCtx)
	require.NoError(t, err)
	for _, col := range RequiredBillingColumns {
		assert.Contains(t, items, "cur."+col)
	}

	reconciliation, err := ReconciliationQuery(tmplCtx)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(reconciliation), "u.resourcearn IS NULL"))

	overallocated, err := OverallocatedQuery(NewTemplateContext(cfg, testDialect, map[Stage]string{StageUnusedCost: "rds_unused_cost_view_1"}))
	require.NoError(t, err)
	assert.Contains(t, overallocated, `FROM "hive"."rds-performance-insights-db"."rds_unused_cost_view_1"`)
}

func TestRelationUnknownStage(t *testing.T) {
	_, err := RenderQuery("bad", `SELECT * FROM {| .Relation "tenants" |}`, NewTemplateContext(testConfig(), testDialect, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage tenants")
}

func TestRenderVersionedTablesQuery(t *testing.T) {
	sql, err := VersionedTablesQuery(NewTemplateContext(testConfig(), testDialect, nil))
	require.NoError(t, err)
	assert.Contains(t, sql, `FROM "hive"."information_schema"."tables"`)
	assert.Contains(t, sql, "WHERE table_schema = 'rds-performance-insights-db'")
	assert.Contains(t, sql, "AND table_type = 'BASE TABLE'")
	assert.Contains(t, sql, `AND (table_name LIKE 'rds_aggregate_load_view\_%' ESCAPE '\' OR table_name LIKE 'pi_data_view\_%' ESCAPE '\' OR `)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(sql), `table_name LIKE 'rds_unused_cost_view\_%' ESCAPE '\')`))
}
