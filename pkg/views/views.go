package views

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/presto"
)

// Stage is one derived relation of the pipeline.
type Stage string

const (
	StageAggregateLoad  Stage = "aggregate_load"
	StageUtilization    Stage = "utilization"
	StageCostAllocation Stage = "cost_allocation"
	StageUnusedCost     Stage = "unused_cost"
)

// MetricsTimestampFormat is the layout the metrics feed writes its
// timestamp column with. The column is a string, so window bounds are
// compared lexically against this layout without the zone suffix.
const MetricsTimestampFormat = "2006-01-02 15:04:05"

// Dialect renders the DDL of a query engine. Unqualified names refer to the
// pipeline's own database.
type Dialect interface {
	QualifiedName(name string) string
	QualifiedNameIn(database, name string) string
	CreateView(name, query string) string
	CreateTableAs(name, query string) string
	DropView(name string) string
	DropTable(name string) string
}

// Definition is the query template of a stage and the stages it reads.
type Definition struct {
	Stage     Stage
	DependsOn []Stage
	Query     string
}

var definitions = []Definition{
	{
		Stage: StageAggregateLoad,
		Query: aggregateLoadQuery,
	},
	{
		Stage:     StageUtilization,
		DependsOn: []Stage{StageAggregateLoad},
		Query:     utilizationQuery,
	},
	{
		Stage:     StageCostAllocation,
		DependsOn: []Stage{StageUtilization},
		Query:     costAllocationQuery,
	},
	{
		Stage:     StageUnusedCost,
		DependsOn: []Stage{StageCostAllocation},
		Query:     unusedCostQuery,
	},
}

// Stages returns every stage in dependency order.
func Stages() []Stage {
	stages := make([]Stage, len(definitions))
	for i, def := range definitions {
		stages[i] = def.Stage
	}
	return stages
}

// Definitions returns a copy of the stage definitions.
func Definitions() []Definition {
	defs := make([]Definition, len(definitions))
	copy(defs, definitions)
	return defs
}

// RequiredBillingColumns are the cost and usage report columns read by the
// cost allocation stage, in their Athena form.
var RequiredBillingColumns = []string{
	"line_item_usage_start_date",
	"line_item_resource_id",
	"line_item_line_item_type",
	"line_item_product_code",
	"line_item_unblended_cost",
	"line_item_usage_type",
	"reservation_effective_cost",
	"reservation_unused_amortized_upfront_fee_for_billing_period",
	"reservation_unused_recurring_fee",
	"reservation_reservation_a_r_n",
	"product_instance_type",
}

// TemplateContext is the data a query template is executed with.
type TemplateContext struct {
	Config    Config
	dialect   Dialect
	relations map[Stage]string
}

// NewTemplateContext binds cfg to dialect. relations maps a stage to the
// physical relation holding its output, stages not present resolve to
// their public name.
func NewTemplateContext(cfg Config, dialect Dialect, relations map[Stage]string) *TemplateContext {
	return &TemplateContext{
		Config:    cfg,
		dialect:   dialect,
		relations: relations,
	}
}

func (c *TemplateContext) MetricsTable() string {
	return c.dialect.QualifiedName(c.Config.MetricsTable)
}

func (c *TemplateContext) BillingTable() string {
	return c.dialect.QualifiedNameIn(c.Config.CURDatabase, c.Config.CURTable)
}

// InformationSchemaTables is the catalog table listing the tables of every
// database.
func (c *TemplateContext) InformationSchemaTables() string {
	return c.dialect.QualifiedNameIn("information_schema", "tables")
}

// PublicRelations returns the public relation names in stage order.
func (c *TemplateContext) PublicRelations() []string {
	names := make([]string, 0, len(definitions))
	for _, def := range definitions {
		names = append(names, c.Config.RelationName(def.Stage))
	}
	return names
}

// Relation returns the qualified relation holding the output of stage.
func (c *TemplateContext) Relation(stage string) (string, error) {
	s := Stage(stage)
	if name, ok := c.relations[s]; ok {
		return c.dialect.QualifiedName(name), nil
	}
	for _, def := range definitions {
		if def.Stage == s {
			return c.dialect.QualifiedName(c.Config.RelationName(s)), nil
		}
	}
	return "", fmt.Errorf("unknown stage %s", stage)
}

// MetricsWindow renders the predicate restricting the metrics feed column
// to the configured window, or TRUE when the window is open.
func (c *TemplateContext) MetricsWindow(column string) string {
	return windowPredicate(column, c.Config.WindowStart, c.Config.WindowEnd, metricsTimestamp)
}

// BillingWindow renders the predicate restricting a billing timestamp
// column to the configured window, or TRUE when the window is open.
func (c *TemplateContext) BillingWindow(column string) string {
	return windowPredicate(column, c.Config.WindowStart, c.Config.WindowEnd, presto.FormatTimestamp)
}

func windowPredicate(column string, start, end *time.Time, literal func(time.Time) string) string {
	switch {
	case start != nil && end != nil:
		return fmt.Sprintf("%s >= %s AND %s < %s", column, literal(*start), column, literal(*end))
	case start != nil:
		return fmt.Sprintf("%s >= %s", column, literal(*start))
	case end != nil:
		return fmt.Sprintf("%s < %s", column, literal(*end))
	default:
		return "TRUE"
	}
}

func metricsTimestamp(t time.Time) string {
	return fmt.Sprintf("'%s'", t.UTC().Format(MetricsTimestampFormat))
}

func newQueryTemplate(name, queryTemplate string) (*template.Template, error) {
	var templateFuncMap = template.FuncMap{
		"prestoTimestamp": presto.FormatTimestamp,
		"databaseCost":    attribution.DatabaseCostSQL,
		"epsilon":         func() float64 { return attribution.Epsilon },
	}

	tmpl, err := template.New(name).Delims("{|", "|}").Funcs(sprig.TxtFuncMap()).Funcs(templateFuncMap).Parse(queryTemplate)
	if err != nil {
		return nil, fmt.Errorf("error parsing query %s: %v", name, err)
	}
	return tmpl, nil
}

// RenderQuery executes a query template with tmplCtx.
func RenderQuery(name, query string, tmplCtx *TemplateContext) (string, error) {
	tmpl, err := newQueryTemplate(name, query)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tmplCtx); err != nil {
		return "", fmt.Errorf("error executing template %s: %v", name, err)
	}
	return buf.String(), nil
}

// Render returns the SELECT of a stage.
func Render(def Definition, tmplCtx *TemplateContext) (string, error) {
	return RenderQuery(string(def.Stage), def.Query, tmplCtx)
}

// ReconciliationQuery counts the billing line items that passed the product
// and instance type filters but have no utilization for their hour.
func ReconciliationQuery(tmplCtx *TemplateContext) (string, error) {
	return RenderQuery("reconciliation", reconciliationQuery, tmplCtx)
}

// OverallocatedQuery counts the resource-hours of the unused cost stage
// whose tenant utilization sums past the whole resource.
func OverallocatedQuery(tmplCtx *TemplateContext) (string, error) {
	return RenderQuery("overallocated", overallocatedQuery, tmplCtx)
}

// VersionedTablesQuery lists the tables of the database named after a public
// relation followed by an underscore, the candidates for run-versioned
// tables.
func VersionedTablesQuery(tmplCtx *TemplateContext) (string, error) {
	return RenderQuery("versioned_tables", versionedTablesQuery, tmplCtx)
}

// SamplesQuery selects the metrics feed rows of the configured window.
func SamplesQuery(tmplCtx *TemplateContext) (string, error) {
	return RenderQuery("samples", samplesQuery, tmplCtx)
}

// LineItemsQuery selects the billing rows of the configured product and
// window.
func LineItemsQuery(tmplCtx *TemplateContext) (string, error) {
	return RenderQuery("line_items", lineItemsQuery, tmplCtx)
}
