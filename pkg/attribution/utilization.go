package attribution

// Utilization joins every sample to the aggregate of its bucket and derives
// the tenant's share of the load. Samples without a matching aggregate are
// dropped.
//
// UtilizationPct is exactly 0 for every tenant of a bucket without load.
// UtilizationPctRebased uses the rebased capacity as denominator; a zero
// capacity only occurs for malformed input (no vCPUs and no load) and also
// yields 0.
func Utilization(samples []MetricSample, aggregates []AggregateLoad) []UtilizationRecord {
	byBucket := make(map[bucketKey]AggregateLoad, len(aggregates))
	for _, agg := range aggregates {
		byBucket[newBucketKey(agg.ResourceID, agg.Timestamp)] = agg
	}

	var records []UtilizationRecord
	for _, sample := range sortedSamples(samples) {
		agg, ok := byBucket[newBucketKey(sample.ResourceID, sample.Timestamp)]
		if !ok {
			continue
		}
		records = append(records, UtilizationRecord{
			Timestamp:             sample.Timestamp.UTC(),
			AccountID:             sample.AccountID,
			ResourceID:            sample.ResourceID,
			NumVCPUs:              sample.NumVCPUs,
			TenantID:              sample.TenantID,
			LoadValue:             sample.LoadValue,
			TotalLoad:             agg.TotalLoad,
			TotalComputeCapacity:  agg.TotalComputeCapacity,
			DistinctTenantCount:   agg.DistinctTenantCount,
			UtilizationPct:        safeDivide(sample.LoadValue, agg.TotalLoad),
			UtilizationPctRebased: safeDivide(sample.LoadValue, agg.TotalComputeCapacity),
		})
	}
	return records
}

func safeDivide(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
