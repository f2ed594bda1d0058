package attribution

import (
	"fmt"
	"strings"
)

// LineItemType is the pricing treatment tag of a cost and usage report row.
type LineItemType string

const (
	LineItemUsage           LineItemType = "Usage"
	LineItemDiscountedUsage LineItemType = "DiscountedUsage"
	LineItemRIFee           LineItemType = "RIFee"
	LineItemFee             LineItemType = "Fee"
)

// CostTreatment is the rule used to derive the hourly database cost of a
// line item. Treatments are evaluated in the order of CostTreatments.
type CostTreatment string

const (
	// TreatmentReservedUsage prices usage covered by a reservation at the
	// reservation's effective cost.
	TreatmentReservedUsage CostTreatment = "reserved-usage"
	// TreatmentUnusedReservation prices the unused portion of a reservation.
	TreatmentUnusedReservation CostTreatment = "unused-reservation"
	// TreatmentReservationPurchase zeroes the reservation purchase fee, it is
	// amortized into the other treatments.
	TreatmentReservationPurchase CostTreatment = "reservation-purchase"
	// TreatmentListPrice prices everything else at its unblended cost.
	TreatmentListPrice CostTreatment = "list-price"
)

// costRule is the SQL form of a treatment. {alias} stands for the alias of
// the billing relation.
type costRule struct {
	Treatment CostTreatment
	Condition string
	Value     string
}

// costRules lists every treatment in evaluation order. The last entry is the
// fallback and has no condition.
var costRules = []costRule{
	{
		Treatment: TreatmentReservedUsage,
		Condition: "{alias}.line_item_line_item_type = 'DiscountedUsage'",
		Value:     "{alias}.reservation_effective_cost",
	},
	{
		Treatment: TreatmentUnusedReservation,
		Condition: "{alias}.line_item_line_item_type = 'RIFee'",
		Value:     "{alias}.reservation_unused_amortized_upfront_fee_for_billing_period + {alias}.reservation_unused_recurring_fee",
	},
	{
		Treatment: TreatmentReservationPurchase,
		Condition: "{alias}.line_item_line_item_type = 'Fee' AND {alias}.reservation_reservation_a_r_n <> ''",
		Value:     "0",
	},
	{
		Treatment: TreatmentListPrice,
		Value:     "{alias}.line_item_unblended_cost",
	},
}

// CostTreatments returns the treatments in the order they are evaluated.
func CostTreatments() []CostTreatment {
	treatments := make([]CostTreatment, len(costRules))
	for i, rule := range costRules {
		treatments[i] = rule.Treatment
	}
	return treatments
}

// Treatment classifies the line item.
func (item BillingLineItem) Treatment() CostTreatment {
	switch item.LineItemType {
	case LineItemDiscountedUsage:
		return TreatmentReservedUsage
	case LineItemRIFee:
		return TreatmentUnusedReservation
	case LineItemFee:
		if item.ReservationARN != "" {
			return TreatmentReservationPurchase
		}
	}
	return TreatmentListPrice
}

// DatabaseCost returns the hourly instance cost carried by the line item.
func (item BillingLineItem) DatabaseCost() float64 {
	switch item.Treatment() {
	case TreatmentReservedUsage:
		return item.ReservationEffectiveCost
	case TreatmentUnusedReservation:
		return item.UnusedAmortizedUpfrontFee + item.UnusedRecurringFee
	case TreatmentReservationPurchase:
		return 0
	case TreatmentListPrice:
		return item.UnblendedCost
	default:
		panic(fmt.Sprintf("unhandled cost treatment %q", item.Treatment()))
	}
}

// DatabaseCostSQL renders the treatments as a SQL CASE expression over the
// billing relation aliased as alias.
func DatabaseCostSQL(alias string) string {
	var b strings.Builder
	b.WriteString("CASE")
	for _, rule := range costRules {
		value := expandAlias(rule.Value, alias)
		if rule.Condition == "" {
			fmt.Fprintf(&b, " ELSE %s", value)
			continue
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", expandAlias(rule.Condition, alias), value)
	}
	b.WriteString(" END")
	return b.String()
}

func expandAlias(expr, alias string) string {
	return strings.Replace(expr, "{alias}", alias, -1)
}
