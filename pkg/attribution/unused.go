package attribution

import (
	"math"
	"sort"
)

// UnusedCosts summarizes the allocated cost of every resource-hour.
//
// The line item cost is the same for every tenant row of a resource-hour, so
// the maximum recovers it. Records are not clamped when the tenants' usage
// sums past 1; they are flagged Overallocated instead.
func UnusedCosts(costs []TenantCostRecord) []UnusedCostRecord {
	type accumulator struct {
		rec        UnusedCostRecord
		tenantCost float64
	}
	var order []bucketKey
	groups := make(map[bucketKey]*accumulator)
	for _, cost := range sortedTenantCosts(costs) {
		hour := TruncateHour(cost.Timestamp)
		key := newBucketKey(cost.ResourceID, hour)
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{
				rec: UnusedCostRecord{
					Timestamp:    hour,
					ResourceID:   cost.ResourceID,
					DatabaseCost: math.Inf(-1),
				},
			}
			groups[key] = acc
			order = append(order, key)
		}
		acc.rec.DatabaseCost = math.Max(acc.rec.DatabaseCost, cost.DatabaseCost)
		acc.rec.DatabaseUsage += cost.UtilizationPctRebased
		acc.tenantCost += cost.TenantCost
	}

	records := make([]UnusedCostRecord, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		rec := acc.rec
		rec.UnusedPercentage = 1 - rec.DatabaseUsage
		rec.UnusedCost = rec.DatabaseCost - acc.tenantCost
		rec.Overallocated = rec.DatabaseUsage > 1+Epsilon
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return lessBucket(records[i].Timestamp, records[i].ResourceID, records[j].Timestamp, records[j].ResourceID)
	})
	return records
}
