package testhelpers

import (
	"time"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
)

const (
	TestAccount   = "123456789012"
	TestResource  = "arn:aws:rds:us-east-1:123456789012:db:shared-1"
	TestInstance  = "db.r5.2xlarge"
	TestEngine    = "postgres"
	TestUsageType = "InstanceUsage:db.r5.2xlarge"
)

var (
	// Hour1 is an overcommitted hour: tenants A and B put a load of 40 on 8
	// vCPUs.
	Hour1 = time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	// Hour2 is a mostly idle hour: tenants A and B put a load of 3 on 8
	// vCPUs.
	Hour2 = Hour1.Add(time.Hour)
)

func NewMetricSample(resource string, ts time.Time, tenant string, load, vcpus float64) attribution.MetricSample {
	return attribution.MetricSample{
		Timestamp:  ts,
		ResourceID: resource,
		AccountID:  TestAccount,
		InstanceID: "shared-1",
		Region:     "us-east-1",
		Metric:     "db.load.avg",
		TenantID:   tenant,
		NumVCPUs:   vcpus,
		LoadValue:  load,
	}
}

func NewUsageLineItem(resource string, start time.Time, cost float64) attribution.BillingLineItem {
	return attribution.BillingLineItem{
		UsageStartDate: start,
		ResourceID:     resource,
		LineItemType:   attribution.LineItemUsage,
		ProductCode:    attribution.DefaultProductCode,
		UnblendedCost:  cost,
		UsageType:      TestUsageType,
		Engine:         TestEngine,
		InstanceType:   TestInstance,
	}
}

// ScenarioInputs returns both reference hours with an hourly cost of 100.
func ScenarioInputs() attribution.Inputs {
	return attribution.Inputs{
		Samples: []attribution.MetricSample{
			NewMetricSample(TestResource, Hour1, "A", 30, 8),
			NewMetricSample(TestResource, Hour1, "B", 10, 8),
			NewMetricSample(TestResource, Hour2, "A", 2, 8),
			NewMetricSample(TestResource, Hour2, "B", 1, 8),
		},
		LineItems: []attribution.BillingLineItem{
			NewUsageLineItem(TestResource, Hour1, 100),
			NewUsageLineItem(TestResource, Hour2, 100),
		},
	}
}
