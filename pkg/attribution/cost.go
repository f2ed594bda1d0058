package attribution

// DefaultProductCode is the billing product code of relational database
// instances.
const DefaultProductCode = "AmazonRDS"

// JoinStats counts the rows considered and excluded by JoinCosts.
type JoinStats struct {
	// BillingRows is the number of line items considered.
	BillingRows int `json:"billing_rows"`
	// Filtered counts line items of another product or without an instance
	// type.
	Filtered int `json:"filtered"`
	// UnmatchedBilling counts eligible line items without utilization for
	// their resource-hour, usually instances without Performance Insights.
	UnmatchedBilling int `json:"unmatched_billing"`
	// UnmatchedUtilization counts utilization records no line item matched.
	UnmatchedUtilization int `json:"unmatched_utilization"`
	// Emitted is the number of tenant cost records produced.
	Emitted int `json:"emitted"`
}

// Add accumulates other into s.
func (s *JoinStats) Add(other JoinStats) {
	s.BillingRows += other.BillingRows
	s.Filtered += other.Filtered
	s.UnmatchedBilling += other.UnmatchedBilling
	s.UnmatchedUtilization += other.UnmatchedUtilization
	s.Emitted += other.Emitted
}

// JoinCosts allocates the cost of every eligible line item to the tenants
// observed on its resource during the line item's hour. A line item is
// eligible when it belongs to productCode and carries an instance type.
// Rows without a counterpart on the other side are excluded and counted.
func JoinCosts(utilization []UtilizationRecord, items []BillingLineItem, productCode string) ([]TenantCostRecord, JoinStats) {
	if productCode == "" {
		productCode = DefaultProductCode
	}

	byBucket := make(map[bucketKey][]UtilizationRecord)
	for _, rec := range sortedUtilization(utilization) {
		key := newBucketKey(rec.ResourceID, rec.Timestamp)
		byBucket[key] = append(byBucket[key], rec)
	}
	matched := make(map[bucketKey]bool, len(byBucket))

	stats := JoinStats{BillingRows: len(items)}
	var records []TenantCostRecord
	for _, item := range sortedLineItems(items) {
		if item.ProductCode != productCode || item.InstanceType == "" {
			stats.Filtered++
			continue
		}
		key := newBucketKey(item.ResourceID, TruncateHour(item.UsageStartDate))
		tenants, ok := byBucket[key]
		if !ok {
			stats.UnmatchedBilling++
			continue
		}
		matched[key] = true

		cost := item.DatabaseCost()
		for _, rec := range tenants {
			records = append(records, TenantCostRecord{
				Timestamp:             item.UsageStartDate.UTC(),
				TenantID:              rec.TenantID,
				ResourceID:            item.ResourceID,
				DatabaseCost:          cost,
				TenantCost:            rec.UtilizationPctRebased * cost,
				TotalComputeCapacity:  rec.TotalComputeCapacity,
				UtilizationPctRebased: rec.UtilizationPctRebased,
				UsageType:             item.UsageType,
				LineItemType:          item.LineItemType,
				Engine:                item.Engine,
				InstanceType:          item.InstanceType,
			})
		}
	}
	for key, tenants := range byBucket {
		if !matched[key] {
			stats.UnmatchedUtilization += len(tenants)
		}
	}
	stats.Emitted = len(records)
	return records, stats
}
