package output

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/attribution"
)

// LatestName is the object pointing at the most recent complete run.
const LatestName = "latest.json"

// RelationNames are the names the output relations are written under.
type RelationNames struct {
	Utilization    string
	CostAllocation string
	UnusedCost     string
}

// RelationObject locates one relation of a run.
type RelationObject struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	Rows int    `json:"rows"`
}

// Manifest describes a published run.
type Manifest struct {
	RunID              string                `json:"runID"`
	CreatedAt          time.Time             `json:"createdAt"`
	Relations          []RelationObject      `json:"relations"`
	JoinStats          attribution.JoinStats `json:"joinStats"`
	OverallocatedHours int                   `json:"overallocatedHours"`
}

// Relation returns the object of the named relation.
func (m *Manifest) Relation(name string) (RelationObject, bool) {
	for _, rel := range m.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return RelationObject{}, false
}

// Publisher writes runs to a Store. Every relation of a run is written
// under runs/<runID>/ before latest.json is replaced, so readers following
// the pointer only ever see complete runs.
type Publisher struct {
	store  Store
	names  RelationNames
	clock  clock.Clock
	logger logrus.FieldLogger
}

func NewPublisher(store Store, names RelationNames, clock clock.Clock, logger logrus.FieldLogger) *Publisher {
	return &Publisher{
		store:  store,
		names:  names,
		clock:  clock,
		logger: logger.WithField("component", "publisher"),
	}
}

func RunPrefix(runID string) string {
	return path.Join("runs", runID)
}

func (p *Publisher) Publish(ctx context.Context, runID string, result *attribution.Result) (*Manifest, error) {
	type relation struct {
		name   string
		rows   int
		encode func() ([]byte, error)
	}
	relations := []relation{
		{
			name:   p.names.Utilization,
			rows:   len(result.Utilization),
			encode: func() ([]byte, error) { return UtilizationCSV(result.Utilization) },
		},
		{
			name:   p.names.CostAllocation,
			rows:   len(result.TenantCosts),
			encode: func() ([]byte, error) { return CostAllocationCSV(result.TenantCosts) },
		},
		{
			name:   p.names.UnusedCost,
			rows:   len(result.UnusedCosts),
			encode: func() ([]byte, error) { return UnusedCostCSV(result.UnusedCosts) },
		},
	}

	manifest := &Manifest{
		RunID:              runID,
		CreatedAt:          p.clock.Now().UTC(),
		JoinStats:          result.JoinStats,
		OverallocatedHours: result.Overallocated(),
	}
	for _, rel := range relations {
		data, err := rel.encode()
		if err != nil {
			return nil, fmt.Errorf("unable to encode %s: %v", rel.name, err)
		}
		key := path.Join(RunPrefix(runID), rel.name+".csv")
		if err := p.store.Put(ctx, key, data, "text/csv"); err != nil {
			return nil, err
		}
		p.logger.WithFields(logrus.Fields{
			"runID":    runID,
			"relation": rel.name,
			"rows":     rel.rows,
		}).Debug("wrote relation")
		manifest.Relations = append(manifest.Relations, RelationObject{Name: rel.name, Key: key, Rows: rel.rows})
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, path.Join(RunPrefix(runID), "manifest.json"), data, "application/json"); err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, LatestName, data, "application/json"); err != nil {
		return nil, err
	}
	p.logger.WithField("runID", runID).Info("published run")
	return manifest, nil
}

// Latest returns the manifest of the most recently published run, or
// ErrNotExist when nothing was published yet.
func (p *Publisher) Latest(ctx context.Context) (*Manifest, error) {
	data, err := p.store.Get(ctx, LatestName)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid %s: %v", LatestName, err)
	}
	return &manifest, nil
}
