package aws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/aws/awstest"
)

const (
	manifestText = `{
  "assemblyId":"ea74f90b-e82f-9c72-fab6-abc716793752",
  "account":"826591639284",
  "columns":[{
    "category":"identity",
    "name":"LineItemId"
  },{
    "category":"lineItem",
    "name":"UsageStartDate"
  },{
    "category":"lineItem",
    "name":"LineItemType"
  },{
    "category":"reservation",
    "name":"ReservationARN"
  },{
    "category":"product",
    "name":"instanceType"
  }],
  "charset":"UTF-8",
  "compression":"GZIP",
  "contentType":"text/csv",
  "reportId":"494124bac4e25a16a3b704c13be2c525fd60d25b0675eb0f72e7b9e8ea09e167",
  "reportName":"sample-report",
  "billingPeriod":{
    "start":"20170701T000000.000Z",
    "end":"20170801T000000.000Z"
  },
  "bucket":"billing-bucket",
  "reportKeys":["billing-path/20170701-20170801/ea74f90b-e82f-9c72-fab6-abc716793752/sample-report-1.csv.gz","billing-path/20170701-20170801/ea74f90b-e82f-9c72-fab6-abc716793752/sample-report-2.csv.gz"],
  "additionalArtifactKeys":[]
}`
)

func TestManifest_Paths(t *testing.T) {
	var manifest Manifest
	require.NoError(t, json.Unmarshal([]byte(manifestText), &manifest))

	assert.Equal(t, []string{"billing-path/20170701-20170801/ea74f90b-e82f-9c72-fab6-abc716793752"}, manifest.Paths())

	// manifests without report keys should not return paths
	manifest.ReportKeys = nil
	assert.Empty(t, manifest.Paths())
}

func TestColumnAthenaName(t *testing.T) {
	tests := map[string]struct {
		column   Column
		expected string
	}{
		"camel case name": {
			column:   Column{Category: "lineItem", Name: "UsageStartDate"},
			expected: "line_item_usage_start_date",
		},
		"acronym": {
			column:   Column{Category: "reservation", Name: "ReservationARN"},
			expected: "reservation_reservation_a_r_n",
		},
		"lower camel name": {
			column:   Column{Category: "product", Name: "databaseEngine"},
			expected: "product_database_engine",
		},
		"tag": {
			column:   Column{Category: "resourceTags", Name: "user:team"},
			expected: "resource_tags_user_team",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.column.AthenaName())
		})
	}
}

func TestManifestMissingColumns(t *testing.T) {
	var manifest Manifest
	require.NoError(t, json.Unmarshal([]byte(manifestText), &manifest))

	missing := manifest.MissingColumns([]string{"line_item_usage_start_date", "reservation_reservation_a_r_n", "line_item_unblended_cost"})
	assert.Equal(t, []string{"line_item_unblended_cost"}, missing)
}

func TestRetrieveManifests(t *testing.T) {
	mock := awstest.NewMockS3()
	mock.NewBucket("billing-bucket")
	ctx := context.Background()
	put := func(key, body string) {
		store := NewS3Store(mock, "billing-bucket", "")
		require.NoError(t, store.Put(ctx, key, []byte(body), "application/json"))
	}
	put("billing-path/report/20170701-20170801/report-Manifest.json", manifestText)
	put("billing-path/report/20170701-20170801/ea74f90b/report-Manifest.json", `{"reportName":"assembly-copy"}`)
	put("billing-path/report/20170701-20170801/ea74f90b/report-1.csv.gz", "")

	retriever := NewManifestRetriever(mock, "billing-bucket", "billing-path/report")
	manifests, err := retriever.RetrieveManifests(ctx)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "sample-report", manifests[0].ReportName)

	err = CheckReportColumns(ctx, retriever, []string{"line_item_usage_start_date", "product_instance_type"})
	assert.NoError(t, err)
	err = CheckReportColumns(ctx, retriever, []string{"line_item_unblended_cost"})
	assert.EqualError(t, err, "report sample-report for 20170701T000000.000Z is missing columns: line_item_unblended_cost")

	empty := NewManifestRetriever(mock, "billing-bucket", "other")
	assert.EqualError(t, CheckReportColumns(ctx, empty, nil), "no cost and usage report manifests found")
}
