package pipeline

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/output"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query/mock"
	"github.com/kube-reporting/tenant-cost-attribution/test/testhelpers"
)

func expectInputs(querier *mock.MockRowQuerier, inputs attribution.Inputs) {
	samples, lineItems := testhelpers.InputRows(inputs)
	querier.EXPECT().QueryRows(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, sql string) ([]query.Row, error) {
			if strings.Contains(sql, `"db.user.name" AS user_name`) {
				return samples, nil
			}
			return lineItems, nil
		}).Times(2)
}

func TestLocalRunner(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dir, err := ioutil.TempDir("", "tenant-cost")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	querier := mock.NewMockRowQuerier(ctrl)
	expectInputs(querier, testhelpers.ScenarioInputs())

	viewsCfg := testViewsConfig()
	store := output.NewDirStore(dir)
	fakeClock := clock.NewFakeClock(time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC))
	publisher := output.NewPublisher(store, RelationNames(viewsCfg), fakeClock, logrus.New())
	runner, err := NewLocalRunner(querier, testDialect, viewsCfg, Config{Mode: ModeLocal, Workers: 2}, publisher, fakeClock, logrus.New())
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, result.Mode)
	assert.Equal(t, "runs/run1/rds_unused_cost_view.csv", result.Relations["rds_unused_cost_view"])
	require.NotNil(t, result.JoinStats)
	assert.Equal(t, attribution.JoinStats{BillingRows: 2, Emitted: 4}, *result.JoinStats)
	assert.Equal(t, int64(0), result.UnmatchedBilling)

	expected, err := attribution.Compute(context.Background(), testhelpers.ScenarioInputs(), attribution.Options{})
	require.NoError(t, err)
	expectedCSV, err := output.UnusedCostCSV(expected.UnusedCosts)
	require.NoError(t, err)
	actualCSV, err := store.Get(context.Background(), result.Relations["rds_unused_cost_view"])
	require.NoError(t, err)
	assert.Equal(t, string(expectedCSV), string(actualCSV))

	latest, err := publisher.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run1", latest.RunID)
}

func TestLocalRunnerLoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	querier := mock.NewMockRowQuerier(ctrl)
	querier.EXPECT().QueryRows(gomock.Any(), gomock.Any()).Return(nil, errors.New("Table not found"))

	publisher := output.NewPublisher(output.NewDirStore(os.TempDir()), RelationNames(testViewsConfig()), clock.RealClock{}, logrus.New())
	runner, err := NewLocalRunner(querier, testDialect, testViewsConfig(), Config{Mode: ModeLocal}, publisher, clock.RealClock{}, logrus.New())
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "run1")
	assert.EqualError(t, err, "unable to load metric samples: Table not found")
}
