package output

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
)

// TimestampFormat matches the timestamp literals of the query engines.
const TimestampFormat = "2006-01-02 15:04:05.000"

var (
	UtilizationColumns = []string{
		"timestamp", "account_id", "resourcearn", "num_vcpus", "user_name", "db_load",
		"total_db_load", "total_compute_power", "distinct_users", "perc_utilization", "perc_utilization_rebased",
	}
	CostAllocationColumns = []string{
		"timestamp", "tenant_id", "database_cost", "tenant_cost", "total_compute_power", "perc_utilization_rebased",
		"line_item_usage_type", "line_item_line_item_type", "line_item_resource_id", "product_database_engine", "product_instance_type",
	}
	UnusedCostColumns = []string{
		"timestamp", "line_item_resource_id", "database_cost", "database_usage", "unused_percentage", "unused_cost", "overallocated",
	}
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func writeCSV(columns []string, n int, row func(i int) []string) ([]byte, error) {
	var buf bytes.Buffer
	csvWriter := csv.NewWriter(&buf)
	if err := csvWriter.Write(columns); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := csvWriter.Write(row(i)); err != nil {
			return nil, err
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func UtilizationCSV(records []attribution.UtilizationRecord) ([]byte, error) {
	return writeCSV(UtilizationColumns, len(records), func(i int) []string {
		r := records[i]
		return []string{
			formatTime(r.Timestamp),
			r.AccountID,
			r.ResourceID,
			formatFloat(r.NumVCPUs),
			r.TenantID,
			formatFloat(r.LoadValue),
			formatFloat(r.TotalLoad),
			formatFloat(r.TotalComputeCapacity),
			strconv.Itoa(r.DistinctTenantCount),
			formatFloat(r.UtilizationPct),
			formatFloat(r.UtilizationPctRebased),
		}
	})
}

func CostAllocationCSV(records []attribution.TenantCostRecord) ([]byte, error) {
	return writeCSV(CostAllocationColumns, len(records), func(i int) []string {
		r := records[i]
		return []string{
			formatTime(r.Timestamp),
			r.TenantID,
			formatFloat(r.DatabaseCost),
			formatFloat(r.TenantCost),
			formatFloat(r.TotalComputeCapacity),
			formatFloat(r.UtilizationPctRebased),
			r.UsageType,
			string(r.LineItemType),
			r.ResourceID,
			r.Engine,
			r.InstanceType,
		}
	})
}

func UnusedCostCSV(records []attribution.UnusedCostRecord) ([]byte, error) {
	return writeCSV(UnusedCostColumns, len(records), func(i int) []string {
		r := records[i]
		return []string{
			formatTime(r.Timestamp),
			r.ResourceID,
			formatFloat(r.DatabaseCost),
			formatFloat(r.DatabaseUsage),
			formatFloat(r.UnusedPercentage),
			formatFloat(r.UnusedCost),
			strconv.FormatBool(r.Overallocated),
		}
	})
}
