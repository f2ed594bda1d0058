package aws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

// fakeAthena records started executions and replays a fixed sequence of
// states for every execution.
type fakeAthena struct {
	athenaiface.AthenaAPI

	mu       sync.Mutex
	started  []*athena.StartQueryExecutionInput
	states   []*athena.QueryExecutionStatus
	polls    int
	pages    []*athena.GetQueryResultsOutput
	startErr error
	stopped  []string
}

func (f *fakeAthena) StartQueryExecutionWithContext(_ aws.Context, in *athena.StartQueryExecutionInput, _ ...request.Option) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qe-1")}, nil
}

func (f *fakeAthena) GetQueryExecutionWithContext(_ aws.Context, in *athena.GetQueryExecutionInput, _ ...request.Option) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.states[len(f.states)-1]
	if f.polls < len(f.states) {
		status = f.states[f.polls]
	}
	f.polls++
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athena.QueryExecution{
			QueryExecutionId: in.QueryExecutionId,
			Status:           status,
		},
	}, nil
}

func (f *fakeAthena) StopQueryExecutionWithContext(_ aws.Context, in *athena.StopQueryExecutionInput, _ ...request.Option) (*athena.StopQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, aws.StringValue(in.QueryExecutionId))
	return &athena.StopQueryExecutionOutput{}, nil
}

func (f *fakeAthena) GetQueryResultsPagesWithContext(_ aws.Context, _ *athena.GetQueryResultsInput, fn func(*athena.GetQueryResultsOutput, bool) bool, _ ...request.Option) error {
	for i, page := range f.pages {
		if !fn(page, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func state(s string) *athena.QueryExecutionStatus {
	return &athena.QueryExecutionStatus{State: aws.String(s)}
}

func datum(values ...*string) *athena.Row {
	row := &athena.Row{}
	for _, v := range values {
		row.Data = append(row.Data, &athena.Datum{VarCharValue: v})
	}
	return row
}

func newTestAthenaExecutor(api athenaiface.AthenaAPI) *AthenaExecutor {
	return NewAthenaExecutor(api, AthenaConfig{
		Database:  "rds-performance-insights-db",
		WorkGroup: "primary",
		Output:    "s3://rds-metrics-123456789012-us-east-1/athena_output/",
		Wait:      query.WaitOptions{PollInterval: time.Millisecond, Timeout: time.Second},
	}, logrus.New())
}

func TestAthenaStatus(t *testing.T) {
	tests := map[string]struct {
		status   *athena.QueryExecutionStatus
		expected query.Status
	}{
		"queued is pending": {
			status:   state(athena.QueryExecutionStateQueued),
			expected: query.Status{State: query.StatePending},
		},
		"running is pending": {
			status:   state(athena.QueryExecutionStateRunning),
			expected: query.Status{State: query.StatePending},
		},
		"succeeded": {
			status:   state(athena.QueryExecutionStateSucceeded),
			expected: query.Status{State: query.StateSucceeded},
		},
		"failed carries the state change reason": {
			status: &athena.QueryExecutionStatus{
				State:             aws.String(athena.QueryExecutionStateFailed),
				StateChangeReason: aws.String("Table not found"),
			},
			expected: query.Status{State: query.StateFailed, Error: "Table not found"},
		},
		"cancelled without reason": {
			status:   state(athena.QueryExecutionStateCancelled),
			expected: query.Status{State: query.StateFailed, Error: "cancelled"},
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, athenaStatus(tt.status))
		})
	}
}

func TestAthenaExecutorSubmit(t *testing.T) {
	api := &fakeAthena{states: []*athena.QueryExecutionStatus{state(athena.QueryExecutionStateSucceeded)}}
	executor := newTestAthenaExecutor(api)

	handle, err := executor.Submit(context.Background(), query.Computation{Name: "pi_data_view", SQL: "SELECT 1"}, "s3://other/out/")
	require.NoError(t, err)
	assert.Equal(t, query.Handle("qe-1"), handle)

	require.Len(t, api.started, 1)
	in := api.started[0]
	assert.Equal(t, "SELECT 1", aws.StringValue(in.QueryString))
	assert.Equal(t, "rds-performance-insights-db", aws.StringValue(in.QueryExecutionContext.Database))
	assert.Equal(t, "primary", aws.StringValue(in.WorkGroup))
	assert.Equal(t, "s3://other/out/", aws.StringValue(in.ResultConfiguration.OutputLocation))

	_, err = executor.Submit(context.Background(), query.Computation{SQL: "SELECT 2"}, "")
	require.NoError(t, err)
	assert.Equal(t, "s3://rds-metrics-123456789012-us-east-1/athena_output/", aws.StringValue(api.started[1].ResultConfiguration.OutputLocation))
}

func TestAthenaExecutorSubmitError(t *testing.T) {
	executor := newTestAthenaExecutor(&fakeAthena{startErr: errors.New("InvalidRequestException")})
	_, err := executor.Submit(context.Background(), query.Computation{SQL: "SELECT 1"}, "")
	assert.EqualError(t, err, "InvalidRequestException")
}

func TestAthenaExecutorQueryRows(t *testing.T) {
	api := &fakeAthena{
		states: []*athena.QueryExecutionStatus{
			state(athena.QueryExecutionStateQueued),
			state(athena.QueryExecutionStateRunning),
			state(athena.QueryExecutionStateSucceeded),
		},
		pages: []*athena.GetQueryResultsOutput{
			{
				ResultSet: &athena.ResultSet{
					ResultSetMetadata: &athena.ResultSetMetadata{
						ColumnInfo: []*athena.ColumnInfo{
							{Name: aws.String("resourcearn"), Type: aws.String("varchar")},
							{Name: aws.String("timestamp"), Type: aws.String("timestamp")},
							{Name: aws.String("value"), Type: aws.String("double")},
							{Name: aws.String("unmatched"), Type: aws.String("bigint")},
						},
					},
					Rows: []*athena.Row{
						datum(aws.String("resourcearn"), aws.String("timestamp"), aws.String("value"), aws.String("unmatched")),
						datum(aws.String("db-1"), aws.String("2021-03-04 10:00:00.000"), aws.String("1.5"), aws.String("3")),
					},
				},
			},
			{
				ResultSet: &athena.ResultSet{
					Rows: []*athena.Row{
						datum(aws.String("db-2"), aws.String("2021-03-04 11:00:00"), nil, aws.String("0")),
					},
				},
			},
		},
	}
	executor := newTestAthenaExecutor(api)

	rows, err := executor.QueryRows(context.Background(), "SELECT * FROM samples")
	require.NoError(t, err)
	assert.Equal(t, []query.Row{
		{"resourcearn": "db-1", "timestamp": time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC), "value": 1.5, "unmatched": int64(3)},
		{"resourcearn": "db-2", "timestamp": time.Date(2021, 3, 4, 11, 0, 0, 0, time.UTC), "value": nil, "unmatched": int64(0)},
	}, rows)
	assert.Equal(t, 3, api.polls)
}

func TestAthenaExecutorQueryRowsFailure(t *testing.T) {
	api := &fakeAthena{
		states: []*athena.QueryExecutionStatus{{
			State:             aws.String(athena.QueryExecutionStateFailed),
			StateChangeReason: aws.String("SYNTAX_ERROR"),
		}},
	}
	executor := newTestAthenaExecutor(api)

	_, err := executor.QueryRows(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, query.ErrFailed))
	assert.Contains(t, err.Error(), "SYNTAX_ERROR")
}

func TestAthenaExecutorQueryRowsTimeoutStopsExecution(t *testing.T) {
	api := &fakeAthena{states: []*athena.QueryExecutionStatus{state(athena.QueryExecutionStateRunning)}}
	executor := NewAthenaExecutor(api, AthenaConfig{
		Database: "rds-performance-insights-db",
		Output:   "s3://rds-metrics-123456789012-us-east-1/athena_output/",
		Wait:     query.WaitOptions{PollInterval: time.Millisecond, Timeout: 20 * time.Millisecond},
	}, logrus.New())

	_, err := executor.QueryRows(context.Background(), "SELECT * FROM samples")
	require.Error(t, err)
	assert.True(t, errors.Is(err, query.ErrTimeout))
	assert.Equal(t, []string{"qe-1"}, api.stopped)
}

func TestParseAthenaRowColumnMismatch(t *testing.T) {
	_, err := parseAthenaRow([]*athena.ColumnInfo{{Name: aws.String("a"), Type: aws.String("varchar")}}, datum(aws.String("x"), aws.String("y")))
	assert.EqualError(t, err, "row has 2 values for 1 columns")
}

func TestAthenaDialect(t *testing.T) {
	d := AthenaDialect{Database: "rds-performance-insights-db"}
	assert.Equal(t, `"rds-performance-insights-db"."pi_data_view"`, d.QualifiedName("pi_data_view"))
	assert.Equal(t, `"cur"."report"`, d.QualifiedNameIn("cur", "report"))
	assert.Equal(t, `CREATE OR REPLACE VIEW "rds-performance-insights-db"."v" AS SELECT 1`, d.CreateView("v", "SELECT 1"))
	assert.Equal(t, "CREATE TABLE \"rds-performance-insights-db\".\"t\"\nWITH (format = 'PARQUET')\nAS SELECT 1", d.CreateTableAs("t", "SELECT 1"))
	assert.Equal(t, `DROP VIEW IF EXISTS "rds-performance-insights-db"."v"`, d.DropView("v"))
	assert.Equal(t, "DROP TABLE IF EXISTS `rds-performance-insights-db`.`t`", d.DropTable("t"))
}
