package attribution

import (
	"time"
)

// Epsilon is the tolerance used when comparing utilization fractions.
const Epsilon = 1e-9

// MetricSample is one tenant's observed database load for one resource-hour,
// as surfaced by the Performance Insights metrics feed.
type MetricSample struct {
	Timestamp  time.Time `json:"timestamp"`
	ResourceID string    `json:"resourcearn"`
	AccountID  string    `json:"account_id"`
	InstanceID string    `json:"instance_id"`
	Region     string    `json:"region"`
	Metric     string    `json:"metric"`
	TenantID   string    `json:"user_name"`
	NumVCPUs   float64   `json:"num_vcpus"`
	LoadValue  float64   `json:"value"`
}

// AggregateLoad summarizes every sample sharing a (resource, timestamp)
// bucket.
type AggregateLoad struct {
	Timestamp            time.Time `json:"timestamp"`
	ResourceID           string    `json:"resourcearn"`
	AvgVCPUs             float64   `json:"num_vcpus"`
	TotalLoad            float64   `json:"total_db_load"`
	TotalComputeCapacity float64   `json:"total_compute_power"`
	DistinctTenantCount  int       `json:"distinct_users"`
}

// UtilizationRecord is one tenant's share of the load of a resource-hour.
type UtilizationRecord struct {
	Timestamp             time.Time `json:"timestamp"`
	AccountID             string    `json:"account_id"`
	ResourceID            string    `json:"resourcearn"`
	NumVCPUs              float64   `json:"num_vcpus"`
	TenantID              string    `json:"user_name"`
	LoadValue             float64   `json:"db_load"`
	TotalLoad             float64   `json:"total_db_load"`
	TotalComputeCapacity  float64   `json:"total_compute_power"`
	DistinctTenantCount   int       `json:"distinct_users"`
	UtilizationPct        float64   `json:"perc_utilization"`
	UtilizationPctRebased float64   `json:"perc_utilization_rebased"`
}

// BillingLineItem is the subset of a cost and usage report row used for
// allocation.
type BillingLineItem struct {
	UsageStartDate            time.Time    `json:"line_item_usage_start_date"`
	ResourceID                string       `json:"line_item_resource_id"`
	LineItemType              LineItemType `json:"line_item_line_item_type"`
	ProductCode               string       `json:"line_item_product_code"`
	UnblendedCost             float64      `json:"line_item_unblended_cost"`
	ReservationEffectiveCost  float64      `json:"reservation_effective_cost"`
	UnusedAmortizedUpfrontFee float64      `json:"reservation_unused_amortized_upfront_fee_for_billing_period"`
	UnusedRecurringFee        float64      `json:"reservation_unused_recurring_fee"`
	ReservationARN            string       `json:"reservation_reservation_a_r_n"`
	UsageType                 string       `json:"line_item_usage_type"`
	Engine                    string       `json:"product_database_engine"`
	InstanceType              string       `json:"product_instance_type"`
}

// TenantCostRecord is the cost allocated to one tenant for one matched line
// item.
type TenantCostRecord struct {
	Timestamp             time.Time    `json:"timestamp"`
	TenantID              string       `json:"tenant_id"`
	ResourceID            string       `json:"line_item_resource_id"`
	DatabaseCost          float64      `json:"database_cost"`
	TenantCost            float64      `json:"tenant_cost"`
	TotalComputeCapacity  float64      `json:"total_compute_power"`
	UtilizationPctRebased float64      `json:"perc_utilization_rebased"`
	UsageType             string       `json:"line_item_usage_type"`
	LineItemType          LineItemType `json:"line_item_line_item_type"`
	Engine                string       `json:"product_database_engine"`
	InstanceType          string       `json:"product_instance_type"`
}

// UnusedCostRecord summarizes one resource-hour of allocated cost.
//
// Overallocated is set when the tenants' rebased utilization sums past 1,
// which happens when several line items match the same resource-hour or when
// utilization was computed at a finer granularity than an hour. The unused
// percentage and cost are then negative and are reported as is.
type UnusedCostRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	ResourceID       string    `json:"line_item_resource_id"`
	DatabaseCost     float64   `json:"database_cost"`
	DatabaseUsage    float64   `json:"database_usage"`
	UnusedPercentage float64   `json:"unused_percentage"`
	UnusedCost       float64   `json:"unused_cost"`
	Overallocated    bool      `json:"overallocated"`
}

// bucketKey identifies a (resource, timestamp) bucket. Timestamps are keyed
// by their UTC nanoseconds so equal instants in different locations collide.
type bucketKey struct {
	resourceID string
	timestamp  int64
}

func newBucketKey(resourceID string, ts time.Time) bucketKey {
	return bucketKey{resourceID: resourceID, timestamp: ts.UTC().UnixNano()}
}

// TruncateHour returns ts truncated to the start of its UTC hour.
func TruncateHour(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Hour)
}
