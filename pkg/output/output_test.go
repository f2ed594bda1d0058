package output_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/aws"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/aws/awstest"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
	"github.com/kube-reporting/tenant-cost-attribution/test/testhelpers"
)

var testNames = output.RelationNames{
	Utilization:    "pi_data_view",
	CostAllocation: "rds_cost_allocation_view",
	UnusedCost:     "rds_unused_cost_view",
}

func computeScenario(t *testing.T) *attribution.Result {
	res, err := attribution.Compute(context.Background(), testhelpers.ScenarioInputs(), attribution.Options{})
	require.NoError(t, err)
	return res
}

func TestDirStore(t *testing.T) {
	dir, err := ioutil.TempDir("", "tenant-cost")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store := output.NewDirStore(dir)
	ctx := context.Background()

	_, err = store.Get(ctx, "latest.json")
	assert.Equal(t, output.ErrNotExist, err)

	require.NoError(t, store.Put(ctx, "runs/1/a.csv", []byte("first"), "text/csv"))
	require.NoError(t, store.Put(ctx, "runs/1/a.csv", []byte("second"), "text/csv"))
	data, err := store.Get(ctx, "runs/1/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := ioutil.ReadDir(filepath.Join(dir, "runs", "1"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
	assert.Equal(t, "a.csv", entries[0].Name())
}

func TestUnusedCostCSV(t *testing.T) {
	res := computeScenario(t)
	data, err := output.UnusedCostCSV(res.UnusedCosts)
	require.NoError(t, err)

	expected := []map[string]string{
		{
			"timestamp":             "2021-03-04 10:00:00.000",
			"line_item_resource_id": testhelpers.TestResource,
			"database_cost":         "100",
			"database_usage":        "1",
			"unused_percentage":     "0",
			"unused_cost":           "0",
			"overallocated":         "false",
		},
		{
			"timestamp":             "2021-03-04 11:00:00.000",
			"line_item_resource_id": testhelpers.TestResource,
			"database_cost":         "100",
			"database_usage":        "0.375",
			"unused_percentage":     "0.625",
			"unused_cost":           "62.5",
			"overallocated":         "false",
		},
	}
	testhelpers.AssertReportResultsEqual(t, expected, testhelpers.ParseCSV(t, data), []string{"database_usage", "unused_percentage", "unused_cost"})
}

func TestCostAllocationCSV(t *testing.T) {
	res := computeScenario(t)
	data, err := output.CostAllocationCSV(res.TenantCosts)
	require.NoError(t, err)

	rows := testhelpers.ParseCSV(t, data)
	require.Len(t, rows, 4)
	assert.Equal(t, map[string]string{
		"timestamp":                "2021-03-04 11:00:00.000",
		"tenant_id":                "B",
		"database_cost":            "100",
		"tenant_cost":              "12.5",
		"total_compute_power":      "8",
		"perc_utilization_rebased": "0.125",
		"line_item_usage_type":     testhelpers.TestUsageType,
		"line_item_line_item_type": "Usage",
		"line_item_resource_id":    testhelpers.TestResource,
		"product_database_engine":  testhelpers.TestEngine,
		"product_instance_type":    testhelpers.TestInstance,
	}, rows[3])
}

func TestUtilizationCSVHeader(t *testing.T) {
	data, err := output.UtilizationCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,account_id,resourcearn,num_vcpus,user_name,db_load,total_db_load,total_compute_power,distinct_users,perc_utilization,perc_utilization_rebased\n", string(data))
}

func TestPublish(t *testing.T) {
	mock := awstest.NewMockS3()
	mock.NewBucket("bucket")
	store := aws.NewS3Store(mock, "bucket", "tenant-cost")
	now := time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)
	publisher := output.NewPublisher(store, testNames, clock.NewFakeClock(now), logrus.New())
	ctx := context.Background()

	_, err := publisher.Latest(ctx)
	assert.Equal(t, output.ErrNotExist, err)

	res := computeScenario(t)
	manifest, err := publisher.Publish(ctx, "run-1", res)
	require.NoError(t, err)
	assert.Equal(t, "run-1", manifest.RunID)
	assert.Equal(t, now, manifest.CreatedAt)
	assert.Equal(t, res.JoinStats, manifest.JoinStats)

	assert.Equal(t, []string{
		"tenant-cost/latest.json",
		"tenant-cost/runs/run-1/manifest.json",
		"tenant-cost/runs/run-1/pi_data_view.csv",
		"tenant-cost/runs/run-1/rds_cost_allocation_view.csv",
		"tenant-cost/runs/run-1/rds_unused_cost_view.csv",
	}, mock.Keys("bucket"))

	latest, err := publisher.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, manifest, latest)
	rel, ok := latest.Relation("rds_unused_cost_view")
	require.True(t, ok)
	assert.Equal(t, output.RelationObject{Name: "rds_unused_cost_view", Key: "runs/run-1/rds_unused_cost_view.csv", Rows: 2}, rel)
}

func TestPublishFailureKeepsPreviousRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "tenant-cost")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	publisher := output.NewPublisher(output.NewDirStore(dir), testNames, clock.NewFakeClock(time.Now()), logrus.New())
	res := computeScenario(t)
	_, err = publisher.Publish(context.Background(), "run-1", res)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = publisher.Publish(ctx, "run-2", res)
	require.Error(t, err)

	latest, err := publisher.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestPublishIsIdempotent(t *testing.T) {
	dir, err := ioutil.TempDir("", "tenant-cost")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store := output.NewDirStore(dir)
	publisher := output.NewPublisher(store, testNames, clock.NewFakeClock(time.Now()), logrus.New())
	ctx := context.Background()
	for _, runID := range []string{"run-1", "run-2"} {
		_, err := publisher.Publish(ctx, runID, computeScenario(t))
		require.NoError(t, err)
	}

	for _, name := range []string{testNames.Utilization, testNames.CostAllocation, testNames.UnusedCost} {
		first, err := store.Get(ctx, "runs/run-1/"+name+".csv")
		require.NoError(t, err)
		second, err := store.Get(ctx, "runs/run-2/"+name+".csv")
		require.NoError(t, err)
		assert.Equal(t, first, second, "relation %s differs between runs", name)
	}
}
