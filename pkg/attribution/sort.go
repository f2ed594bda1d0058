package attribution

import (
	"sort"
	"time"
)

// The stages sort their inputs before accumulating sums so that engines
// returning rows in arbitrary order still produce bit-identical results.

func lessBucket(ts1 time.Time, res1 string, ts2 time.Time, res2 string) bool {
	if !ts1.Equal(ts2) {
		return ts1.Before(ts2)
	}
	return res1 < res2
}

func sortedSamples(samples []MetricSample) []MetricSample {
	sorted := make([]MetricSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case !a.Timestamp.Equal(b.Timestamp) || a.ResourceID != b.ResourceID:
			return lessBucket(a.Timestamp, a.ResourceID, b.Timestamp, b.ResourceID)
		case a.TenantID != b.TenantID:
			return a.TenantID < b.TenantID
		case a.LoadValue != b.LoadValue:
			return a.LoadValue < b.LoadValue
		case a.NumVCPUs != b.NumVCPUs:
			return a.NumVCPUs < b.NumVCPUs
		case a.AccountID != b.AccountID:
			return a.AccountID < b.AccountID
		case a.InstanceID != b.InstanceID:
			return a.InstanceID < b.InstanceID
		case a.Region != b.Region:
			return a.Region < b.Region
		default:
			return a.Metric < b.Metric
		}
	})
	return sorted
}

func sortedUtilization(records []UtilizationRecord) []UtilizationRecord {
	sorted := make([]UtilizationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case !a.Timestamp.Equal(b.Timestamp) || a.ResourceID != b.ResourceID:
			return lessBucket(a.Timestamp, a.ResourceID, b.Timestamp, b.ResourceID)
		case a.TenantID != b.TenantID:
			return a.TenantID < b.TenantID
		case a.LoadValue != b.LoadValue:
			return a.LoadValue < b.LoadValue
		default:
			return a.AccountID < b.AccountID
		}
	})
	return sorted
}

func sortedLineItems(items []BillingLineItem) []BillingLineItem {
	sorted := make([]BillingLineItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case !a.UsageStartDate.Equal(b.UsageStartDate) || a.ResourceID != b.ResourceID:
			return lessBucket(a.UsageStartDate, a.ResourceID, b.UsageStartDate, b.ResourceID)
		case a.LineItemType != b.LineItemType:
			return a.LineItemType < b.LineItemType
		case a.UsageType != b.UsageType:
			return a.UsageType < b.UsageType
		case a.DatabaseCost() != b.DatabaseCost():
			return a.DatabaseCost() < b.DatabaseCost()
		case a.ReservationARN != b.ReservationARN:
			return a.ReservationARN < b.ReservationARN
		case a.ProductCode != b.ProductCode:
			return a.ProductCode < b.ProductCode
		default:
			return a.InstanceType < b.InstanceType
		}
	})
	return sorted
}

func sortedTenantCosts(costs []TenantCostRecord) []TenantCostRecord {
	sorted := make([]TenantCostRecord, len(costs))
	copy(sorted, costs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case !a.Timestamp.Equal(b.Timestamp) || a.ResourceID != b.ResourceID:
			return lessBucket(a.Timestamp, a.ResourceID, b.Timestamp, b.ResourceID)
		case a.TenantID != b.TenantID:
			return a.TenantID < b.TenantID
		case a.LineItemType != b.LineItemType:
			return a.LineItemType < b.LineItemType
		case a.UsageType != b.UsageType:
			return a.UsageType < b.UsageType
		default:
			return a.DatabaseCost < b.DatabaseCost
		}
	})
	return sorted
}
