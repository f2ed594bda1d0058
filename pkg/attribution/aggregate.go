package attribution

import (
	"math"
)

// Aggregate summarizes samples per (resource, timestamp) bucket.
//
// The vCPU count is a property of the resource duplicated on every sample,
// so it is averaged rather than summed. The compute capacity is rebased to
// the total load whenever the load exceeds the vCPU count, which keeps every
// utilization fraction at or below 1. Buckets without samples produce no
// record.
func Aggregate(samples []MetricSample) []AggregateLoad {
	sorted := sortedSamples(samples)

	type accumulator struct {
		agg     AggregateLoad
		vcpus   float64
		n       int
		tenants map[string]struct{}
	}
	var order []bucketKey
	buckets := make(map[bucketKey]*accumulator)
	for _, sample := range sorted {
		key := newBucketKey(sample.ResourceID, sample.Timestamp)
		acc, ok := buckets[key]
		if !ok {
			acc = &accumulator{
				agg: AggregateLoad{
					Timestamp:  sample.Timestamp.UTC(),
					ResourceID: sample.ResourceID,
				},
				tenants: make(map[string]struct{}),
			}
			buckets[key] = acc
			order = append(order, key)
		}
		acc.vcpus += sample.NumVCPUs
		acc.n++
		acc.agg.TotalLoad += sample.LoadValue
		acc.tenants[sample.TenantID] = struct{}{}
	}

	aggregates := make([]AggregateLoad, 0, len(order))
	for _, key := range order {
		acc := buckets[key]
		agg := acc.agg
		agg.AvgVCPUs = acc.vcpus / float64(acc.n)
		agg.TotalComputeCapacity = math.Max(agg.AvgVCPUs, agg.TotalLoad)
		agg.DistinctTenantCount = len(acc.tenants)
		aggregates = append(aggregates, agg)
	}
	return aggregates
}
