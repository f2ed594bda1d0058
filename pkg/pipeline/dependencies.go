package pipeline

import (
	"errors"
	"fmt"

	"github.com/kube-reporting/tenant-cost-attribution/pkg/views"
)

const maxDepth = 50

// ErrCycle is returned when stage dependencies form a cycle.
var ErrCycle = errors.New("dependency cycle")

type resolverContext struct {
	definitions map[views.Stage]views.Definition
	resolved    map[views.Stage]bool
	order       []views.Definition
}

// ResolveOrder returns defs ordered so every stage follows the stages it
// depends on. Independent stages keep their relative order in defs.
func ResolveOrder(defs []views.Definition) ([]views.Definition, error) {
	resolverCtx := &resolverContext{
		definitions: make(map[views.Stage]views.Definition, len(defs)),
		resolved:    make(map[views.Stage]bool, len(defs)),
		order:       make([]views.Definition, 0, len(defs)),
	}
	for _, def := range defs {
		if _, exists := resolverCtx.definitions[def.Stage]; exists {
			return nil, fmt.Errorf("stage %s is defined more than once", def.Stage)
		}
		resolverCtx.definitions[def.Stage] = def
	}
	for _, def := range defs {
		if err := resolverCtx.resolve(def.Stage, 0, maxDepth); err != nil {
			return nil, err
		}
	}
	return resolverCtx.order, nil
}

func (resolverCtx *resolverContext) resolve(stage views.Stage, depth, maxDepth int) error {
	if depth >= maxDepth {
		return fmt.Errorf("%w: detected at stage %s, depth %d", ErrCycle, stage, depth)
	}
	depth++

	// already resolved
	if resolverCtx.resolved[stage] {
		return nil
	}
	def, ok := resolverCtx.definitions[stage]
	if !ok {
		return fmt.Errorf("unknown stage %s", stage)
	}
	for _, dep := range def.DependsOn {
		if err := resolverCtx.resolve(dep, depth, maxDepth); err != nil {
			if errors.Is(err, ErrCycle) {
				return err
			}
			return fmt.Errorf("unable to resolve dependencies of stage %s: %v", stage, err)
		}
	}
	resolverCtx.resolved[stage] = true
	resolverCtx.order = append(resolverCtx.order, def)
	return nil
}
