package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
	"github.com/kube-reporting/tenant-cost-attribution/pkg/query"
)

// timestampLayouts are tried in order when a timestamp column comes back as
// a string. The metrics feed writes a numeric zone offset, engines usually
// return UTC without one.
var timestampLayouts = []string{
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DecodeSamples converts the rows of the samples query.
func DecodeSamples(rows []query.Row) ([]attribution.MetricSample, error) {
	samples := make([]attribution.MetricSample, 0, len(rows))
	for i, row := range rows {
		d := rowDecoder{row: row}
		sample := attribution.MetricSample{
			Timestamp:  d.time("timestamp"),
			ResourceID: d.string("resourcearn"),
			AccountID:  d.string("account_id"),
			InstanceID: d.string("instance_id"),
			Region:     d.string("region"),
			Metric:     d.string("metric"),
			TenantID:   d.string("user_name"),
			NumVCPUs:   d.float("num_vcpus"),
			LoadValue:  d.float("value"),
		}
		if d.err != nil {
			return nil, fmt.Errorf("invalid sample row %d: %v", i, d.err)
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// DecodeLineItems converts the rows of the line items query.
func DecodeLineItems(rows []query.Row) ([]attribution.BillingLineItem, error) {
	items := make([]attribution.BillingLineItem, 0, len(rows))
	for i, row := range rows {
		d := rowDecoder{row: row}
		item := attribution.BillingLineItem{
			UsageStartDate:            d.time("line_item_usage_start_date"),
			ResourceID:                d.string("line_item_resource_id"),
			LineItemType:              attribution.LineItemType(d.string("line_item_line_item_type")),
			ProductCode:               d.string("line_item_product_code"),
			UnblendedCost:             d.float("line_item_unblended_cost"),
			ReservationEffectiveCost:  d.float("reservation_effective_cost"),
			UnusedAmortizedUpfrontFee: d.float("reservation_unused_amortized_upfront_fee_for_billing_period"),
			UnusedRecurringFee:        d.float("reservation_unused_recurring_fee"),
			ReservationARN:            d.string("reservation_reservation_a_r_n"),
			UsageType:                 d.string("line_item_usage_type"),
			Engine:                    d.string("product_database_engine"),
			InstanceType:              d.string("product_instance_type"),
		}
		if d.err != nil {
			return nil, fmt.Errorf("invalid line item row %d: %v", i, d.err)
		}
		items = append(items, item)
	}
	return items, nil
}

// rowDecoder keeps the first conversion error so a row can be decoded
// field by field.
type rowDecoder struct {
	row query.Row
	err error
}

func (d *rowDecoder) fail(col string, v interface{}, typ string) {
	if d.err == nil {
		d.err = fmt.Errorf("column %s: cannot convert %v (%T) to %s", col, v, v, typ)
	}
}

// string returns "" for NULL.
func (d *rowDecoder) string(col string) string {
	switch v := d.row[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// float returns 0 for NULL, as cost columns are empty for line items they do
// not apply to.
func (d *rowDecoder) float(col string) float64 {
	switch v := d.row[col].(type) {
	case nil:
		return 0
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if v == "" {
			return 0
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			d.fail(col, v, "float64")
		}
		return f
	default:
		d.fail(col, v, "float64")
		return 0
	}
}

func (d *rowDecoder) time(col string) time.Time {
	switch v := d.row[col].(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
		d.fail(col, v, "time.Time")
	default:
		d.fail(col, v, "time.Time")
	}
	return time.Time{}
}
