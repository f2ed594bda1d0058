package testhelpers

import (
	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

// SampleRow renders s the way the samples query returns it. The timestamp
// stays a string in the metrics feed's layout.
func SampleRow(s attribution.MetricSample) query.Row {
	return query.Row{
		"timestamp":   s.Timestamp.UTC().Format("2006-01-02 15:04:05-0700"),
		"resourcearn": s.ResourceID,
		"account_id":  s.AccountID,
		"instance_id": s.InstanceID,
		"region":      s.Region,
		"metric":      s.Metric,
		"user_name":   s.TenantID,
		"num_vcpus":   s.NumVCPUs,
		"value":       s.LoadValue,
	}
}

// LineItemRow renders item the way the line items query returns it.
func LineItemRow(item attribution.BillingLineItem) query.Row {
	return query.Row{
		"line_item_usage_start_date":                                  item.UsageStartDate,
		"line_item_resource_id":                                       item.ResourceID,
		"line_item_line_item_type":                                    string(item.LineItemType),
		"line_item_product_code":                                      item.ProductCode,
		"line_item_unblended_cost":                                    item.UnblendedCost,
		"reservation_effective_cost":                                  item.ReservationEffectiveCost,
		"reservation_unused_amortized_upfront_fee_for_billing_period": item.UnusedAmortizedUpfrontFee,
		"reservation_unused_recurring_fee":                            item.UnusedRecurringFee,
		"reservation_reservation_a_r_n":                               item.ReservationARN,
		"line_item_usage_type":                                        item.UsageType,
		"product_database_engine":                                     item.Engine,
		"product_instance_type":                                       item.InstanceType,
	}
}

// InputRows renders inputs as the rows of the samples and line items
// queries.
func InputRows(inputs attribution.Inputs) (samples, lineItems []query.Row) {
	for _, s := range inputs.Samples {
		samples = append(samples, SampleRow(s))
	}
	for _, item := range inputs.LineItems {
		lineItems = append(lineItems, LineItemRow(item))
	}
	return samples, lineItems
}
