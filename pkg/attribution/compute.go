package attribution

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Inputs are the two feeds consumed by the pipeline.
type Inputs struct {
	Samples   []MetricSample
	LineItems []BillingLineItem
}

// Options tune Compute.
type Options struct {
	// ProductCode restricts the billing line items. Defaults to
	// DefaultProductCode.
	ProductCode string
	// Workers bounds the number of resources computed concurrently.
	Workers int
	Logger  logrus.FieldLogger
}

// Result holds the relations derived from a set of inputs.
type Result struct {
	Aggregates  []AggregateLoad
	Utilization []UtilizationRecord
	TenantCosts []TenantCostRecord
	UnusedCosts []UnusedCostRecord
	JoinStats   JoinStats
}

// Overallocated returns the number of resource-hours flagged as overallocated.
func (r *Result) Overallocated() int {
	n := 0
	for _, rec := range r.UnusedCosts {
		if rec.Overallocated {
			n++
		}
	}
	return n
}

type partition struct {
	resourceID string
	samples    []MetricSample
	lineItems  []BillingLineItem
}

// Compute runs the four stages over inputs. Resources are independent, so
// each resource's samples and line items are computed on their own worker.
// The merged relations are sorted by timestamp and resource.
func Compute(ctx context.Context, inputs Inputs, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "attribution")
	concurrency := opts.Workers
	if concurrency <= 0 {
		concurrency = defaultWorkers
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	partitions := partitionByResource(inputs)
	// create a channel to act as a semaphore to limit the number of
	// resources computed in parallel
	semaphore := make(chan struct{}, concurrency)
	resultsCh := make(chan *Result)
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range partitions {
		p := p
		g.Go(func() error {
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() {
				<-semaphore
			}()
			if err := ctx.Err(); err != nil {
				return err
			}

			res := computePartition(p, opts.ProductCode)
			select {
			case resultsCh <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}

	go func() {
		g.Wait()
		close(resultsCh)
	}()

	merged := &Result{}
	for res := range resultsCh {
		merged.Aggregates = append(merged.Aggregates, res.Aggregates...)
		merged.Utilization = append(merged.Utilization, res.Utilization...)
		merged.TenantCosts = append(merged.TenantCosts, res.TenantCosts...)
		merged.UnusedCosts = append(merged.UnusedCosts, res.UnusedCosts...)
		merged.JoinStats.Add(res.JoinStats)
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(merged.Aggregates, func(i, j int) bool {
		a, b := merged.Aggregates[i], merged.Aggregates[j]
		return lessBucket(a.Timestamp, a.ResourceID, b.Timestamp, b.ResourceID)
	})
	merged.Utilization = sortedUtilization(merged.Utilization)
	merged.TenantCosts = sortedTenantCosts(merged.TenantCosts)
	sort.SliceStable(merged.UnusedCosts, func(i, j int) bool {
		a, b := merged.UnusedCosts[i], merged.UnusedCosts[j]
		return lessBucket(a.Timestamp, a.ResourceID, b.Timestamp, b.ResourceID)
	})

	for _, agg := range merged.Aggregates {
		if agg.TotalComputeCapacity == 0 {
			logger.WithFields(logrus.Fields{
				"resource":  agg.ResourceID,
				"timestamp": agg.Timestamp,
			}).Warn("resource-hour has no vCPUs and no load, rebased utilization defaults to 0")
		}
	}
	for _, rec := range merged.UnusedCosts {
		if rec.Overallocated {
			logger.WithFields(logrus.Fields{
				"resource":      rec.ResourceID,
				"timestamp":     rec.Timestamp,
				"databaseUsage": rec.DatabaseUsage,
				"unusedCost":    rec.UnusedCost,
			}).Warn("resource-hour is overallocated")
		}
	}
	stats := merged.JoinStats
	if stats.UnmatchedBilling > 0 || stats.UnmatchedUtilization > 0 {
		logger.WithFields(logrus.Fields{
			"billingRows":          stats.BillingRows,
			"unmatchedBilling":     stats.UnmatchedBilling,
			"unmatchedUtilization": stats.UnmatchedUtilization,
		}).Warn("excluded unmatched rows from cost allocation")
	}
	return merged, nil
}

func computePartition(p partition, productCode string) *Result {
	aggregates := Aggregate(p.samples)
	utilization := Utilization(p.samples, aggregates)
	costs, stats := JoinCosts(utilization, p.lineItems, productCode)
	return &Result{
		Aggregates:  aggregates,
		Utilization: utilization,
		TenantCosts: costs,
		UnusedCosts: UnusedCosts(costs),
		JoinStats:   stats,
	}
}

func partitionByResource(inputs Inputs) []partition {
	byResource := make(map[string]*partition)
	get := func(resourceID string) *partition {
		p, ok := byResource[resourceID]
		if !ok {
			p = &partition{resourceID: resourceID}
			byResource[resourceID] = p
		}
		return p
	}
	for _, sample := range inputs.Samples {
		p := get(sample.ResourceID)
		p.samples = append(p.samples, sample)
	}
	for _, item := range inputs.LineItems {
		p := get(item.ResourceID)
		p.lineItems = append(p.lineItems, item)
	}

	partitions := make([]partition, 0, len(byResource))
	for _, p := range byResource {
		partitions = append(partitions, *p)
	}
	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].resourceID < partitions[j].resourceID
	})
	return partitions
}
