package aws

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/sirupsen/logrus"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

const (
	// AthenaTimestampFormat is the layout of timestamp values in Athena
	// query results.
	AthenaTimestampFormat = "2006-01-02 15:04:05.000"
)

// AthenaExecutor runs statements on Amazon Athena.
type AthenaExecutor struct {
	api       athenaiface.AthenaAPI
	database  string
	workGroup string
	// output is used for row queries, which have no caller supplied
	// location.
	output query.OutputLocation
	wait   query.WaitOptions
	logger logrus.FieldLogger
}

type AthenaConfig struct {
	Database  string
	WorkGroup string
	Output    query.OutputLocation
	Wait      query.WaitOptions
}

func NewAthenaExecutor(api athenaiface.AthenaAPI, cfg AthenaConfig, logger logrus.FieldLogger) *AthenaExecutor {
	return &AthenaExecutor{
		api:       api,
		database:  cfg.Database,
		workGroup: cfg.WorkGroup,
		output:    cfg.Output,
		wait:      cfg.Wait,
		logger:    logger.WithField("component", "athena-executor"),
	}
}

func (e *AthenaExecutor) Submit(ctx context.Context, computation query.Computation, output query.OutputLocation) (query.Handle, error) {
	if output == "" {
		output = e.output
	}
	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(computation.SQL),
		QueryExecutionContext: &athena.QueryExecutionContext{
			Database: aws.String(e.database),
		},
	}
	if output != "" {
		input.ResultConfiguration = &athena.ResultConfiguration{
			OutputLocation: aws.String(string(output)),
		}
	}
	if e.workGroup != "" {
		input.WorkGroup = aws.String(e.workGroup)
	}
	out, err := e.api.StartQueryExecutionWithContext(ctx, input)
	if err != nil {
		return "", err
	}
	handle := query.Handle(aws.StringValue(out.QueryExecutionId))
	e.logger.WithFields(logrus.Fields{
		"handle":      handle,
		"computation": computation.Name,
	}).Debug("started query execution")
	return handle, nil
}

func (e *AthenaExecutor) Status(ctx context.Context, handle query.Handle) (query.Status, error) {
	out, err := e.api.GetQueryExecutionWithContext(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(string(handle)),
	})
	if err != nil {
		return query.Status{}, err
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return query.Status{}, fmt.Errorf("query execution %s has no status", handle)
	}
	return athenaStatus(out.QueryExecution.Status), nil
}

// Cancel stops a query execution that is still queued or running.
func (e *AthenaExecutor) Cancel(ctx context.Context, handle query.Handle) error {
	_, err := e.api.StopQueryExecutionWithContext(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(string(handle)),
	})
	if err != nil {
		return err
	}
	e.logger.WithField("handle", handle).Info("stopped query execution")
	return nil
}

func athenaStatus(status *athena.QueryExecutionStatus) query.Status {
	switch aws.StringValue(status.State) {
	case athena.QueryExecutionStateSucceeded:
		return query.Status{State: query.StateSucceeded}
	case athena.QueryExecutionStateFailed, athena.QueryExecutionStateCancelled:
		reason := aws.StringValue(status.StateChangeReason)
		if reason == "" {
			reason = strings.ToLower(aws.StringValue(status.State))
		}
		return query.Status{State: query.StateFailed, Error: reason}
	default:
		return query.Status{State: query.StatePending}
	}
}

// QueryRows runs sql, waits for it and returns the typed result rows.
func (e *AthenaExecutor) QueryRows(ctx context.Context, sql string) ([]query.Row, error) {
	handle, err := query.Run(ctx, e, query.Computation{Name: "select", SQL: sql}, e.output, e.wait)
	if err != nil {
		return nil, err
	}

	var (
		rows     []query.Row
		columns  []*athena.ColumnInfo
		firstRow = true
		parseErr error
	)
	err = e.api.GetQueryResultsPagesWithContext(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(string(handle)),
	}, func(out *athena.GetQueryResultsOutput, lastPage bool) bool {
		if out.ResultSet == nil {
			return true
		}
		if columns == nil && out.ResultSet.ResultSetMetadata != nil {
			columns = out.ResultSet.ResultSetMetadata.ColumnInfo
		}
		for _, datum := range out.ResultSet.Rows {
			// the first row of a SELECT result repeats the column names
			if firstRow {
				firstRow = false
				continue
			}
			row, err := parseAthenaRow(columns, datum)
			if err != nil {
				parseErr = err
				return false
			}
			rows = append(rows, row)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get results of query execution %s: %v", handle, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return rows, nil
}

func parseAthenaRow(columns []*athena.ColumnInfo, datum *athena.Row) (query.Row, error) {
	if len(datum.Data) != len(columns) {
		return nil, fmt.Errorf("row has %d values for %d columns", len(datum.Data), len(columns))
	}
	row := make(query.Row, len(columns))
	for i, col := range columns {
		name := aws.StringValue(col.Name)
		if datum.Data[i].VarCharValue == nil {
			row[name] = nil
			continue
		}
		val, err := parseAthenaValue(aws.StringValue(col.Type), aws.StringValue(datum.Data[i].VarCharValue))
		if err != nil {
			return nil, fmt.Errorf("invalid value for column %s: %v", name, err)
		}
		row[name] = val
	}
	return row, nil
}

func parseAthenaValue(typ, value string) (interface{}, error) {
	switch strings.ToLower(typ) {
	case "double", "float", "real", "decimal":
		return strconv.ParseFloat(value, 64)
	case "bigint", "integer", "smallint", "tinyint":
		return strconv.ParseInt(value, 10, 64)
	case "boolean":
		return strconv.ParseBool(value)
	case "timestamp":
		// fractional seconds are accepted even though the layout omits them
		return time.Parse("2006-01-02 15:04:05", value)
	case "date":
		return time.Parse("2006-01-02", value)
	default:
		return value, nil
	}
}

// AthenaDialect generates the DDL Athena accepts for relations of a single
// Glue database. Views and queries use Presto quoting while DROP TABLE is
// parsed as Hive DDL.
type AthenaDialect struct {
	Database string
}

func (d AthenaDialect) QualifiedName(name string) string {
	return quoteDouble(d.Database) + "." + quoteDouble(name)
}

func (d AthenaDialect) QualifiedNameIn(database, name string) string {
	return quoteDouble(database) + "." + quoteDouble(name)
}

func (d AthenaDialect) CreateView(name, query string) string {
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", d.QualifiedName(name), query)
}

func (d AthenaDialect) CreateTableAs(name, query string) string {
	return fmt.Sprintf("CREATE TABLE %s\nWITH (format = 'PARQUET')\nAS %s", d.QualifiedName(name), query)
}

func (d AthenaDialect) DropView(name string) string {
	return fmt.Sprintf("DROP VIEW IF EXISTS %s", d.QualifiedName(name))
}

func (d AthenaDialect) DropTable(name string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS `%s`.`%s`", d.Database, name)
}

func quoteDouble(name string) string {
	return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
}
