// Package optimize implements the Plan Optimizer: reordering only the
// non-locked steps of a draft plan to minimize a caller-declared
// objective, while never disturbing a locked-sequence block, a
// declared "A before B" constraint, or an SOE sequence value. Candidate
// orderings are scored with a compiled CEL program, using the standard
// cel.NewEnv/cel.Program compile-once/evaluate-many shape.
package optimize

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/plan"
)

// maxExhaustiveSegment bounds brute-force permutation search; beyond
// this a free segment is optimized with a greedy nearest-step
// construction instead of factorial search.
const maxExhaustiveSegment = 7

// Constraint is a declared "A before B" ordering requirement over step
// types.
type Constraint struct {
	Before string
	After  string
}

// Objective compiles and caches a CEL expression that scores an ordered
// list of steps — lower is better. The expression sees a single
// variable `steps`, a list of maps with `type`, `cost`, and
// `duration_minutes` keys drawn from each step's Parameters.
type Objective struct {
	env *cel.Env

	mu  sync.Mutex
	prg cel.Program
}

// NewObjective compiles expr once; Score reuses the resulting compiled
// program on every subsequent call instead of recompiling per
// candidate ordering.
func NewObjective(expr string) (*Objective, error) {
	env, err := cel.NewEnv(cel.Variable("steps", cel.ListType(cel.DynType)))
	if err != nil {
		return nil, fmt.Errorf("optimize: new cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("optimize: compile objective: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("optimize: build program: %w", err)
	}
	return &Objective{env: env, prg: prg}, nil
}

// Score evaluates the objective over one candidate ordering.
func (o *Objective) Score(steps []plan.Step) (float64, error) {
	items := make([]any, len(steps))
	for i, s := range steps {
		cost, _ := s.Parameters["cost"].(float64)
		duration, _ := s.Parameters["duration_minutes"].(float64)
		resource, _ := s.Parameters["resource_units"].(float64)
		items[i] = map[string]any{
			"type":             s.Type,
			"cost":             cost,
			"duration_minutes": duration,
			"resource_units":   resource,
		}
	}

	o.mu.Lock()
	out, _, err := o.prg.Eval(map[string]any{"steps": items})
	o.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("optimize: eval objective: %w", err)
	}

	switch v := out.Value().(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("optimize: objective must return a number, got %T", out.Value())
	}
}

// Optimize reorders only p's free steps (neither locked-sequence nor
// SOE-sourced) to minimize objective, keeping every locked-sequence or
// SOE-sourced run in place as a contiguous ordered segment and
// honoring every declared before/after constraint, then writes a new
// version.
func Optimize(p *plan.DatumPlan, objective *Objective, constraints []Constraint, optimizedBy, optimizedAt string) (*plan.DatumPlan, error) {
	if err := plan.EnsureEditable(p); err != nil {
		return nil, err
	}

	segments := splitSegments(p.Steps)
	var ordered []plan.Step
	for _, seg := range segments {
		if seg.locked {
			ordered = append(ordered, seg.steps...)
			continue
		}
		best, err := bestOrdering(seg.steps, objective, constraints)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodePlanInvalidEdit, err)
		}
		ordered = append(ordered, best...)
	}

	next := *p
	next.Version = p.Version + 1
	next.ParentVersion = p.Version
	next.State = plan.StateDraft
	next.Locked = false
	next.Steps = make([]plan.Step, len(ordered))
	for i, s := range ordered {
		s.Sequence = i
		next.Steps[i] = s
	}
	next.Tests = append([]plan.Test(nil), p.Tests...)
	next.EvidenceIntent = append([]plan.EvidenceIntent(nil), p.EvidenceIntent...)
	next.SOEDecisionIDs = append([]string(nil), p.SOEDecisionIDs...)
	next.EditMetadata = &plan.EditMetadata{
		EditedBy:   optimizedBy,
		EditedAt:   optimizedAt,
		EditReason: "optimize",
	}
	return &next, nil
}

type segment struct {
	locked bool
	steps  []plan.Step
}

// splitSegments partitions steps into maximal contiguous runs of
// held and free steps; locked-sequence and SOE-sourced steps are held.
// A held run keeps its incoming order and position verbatim; only free
// runs are candidates for reordering.
func splitSegments(steps []plan.Step) []segment {
	var segs []segment
	for _, s := range steps {
		held := s.LockedSequence || s.SOEDecisionID != ""
		if len(segs) == 0 || segs[len(segs)-1].locked != held {
			segs = append(segs, segment{locked: held})
		}
		last := &segs[len(segs)-1]
		last.steps = append(last.steps, s)
	}
	return segs
}

func satisfies(order []plan.Step, constraints []Constraint) bool {
	pos := make(map[string]int, len(order))
	for i, s := range order {
		pos[s.Type] = i
	}
	for _, c := range constraints {
		bi, bok := pos[c.Before]
		ai, aok := pos[c.After]
		if bok && aok && bi >= ai {
			return false
		}
	}
	return true
}

// bestOrdering searches (exhaustively up to maxExhaustiveSegment steps,
// greedily above it) for the constraint-satisfying permutation of steps
// that minimizes objective.
func bestOrdering(steps []plan.Step, objective *Objective, constraints []Constraint) ([]plan.Step, error) {
	if len(steps) <= 1 {
		return steps, nil
	}
	if len(steps) > maxExhaustiveSegment {
		return greedyOrdering(steps, objective, constraints)
	}

	var best []plan.Step
	bestScore := 0.0
	found := false

	permute(steps, func(candidate []plan.Step) bool {
		if !satisfies(candidate, constraints) {
			return true
		}
		score, err := objective.Score(candidate)
		if err != nil {
			return false
		}
		if !found || score < bestScore {
			found = true
			bestScore = score
			best = append([]plan.Step(nil), candidate...)
		}
		return true
	})

	if !found {
		return nil, fmt.Errorf("no ordering of %d steps satisfies the declared constraints", len(steps))
	}
	return best, nil
}

// greedyOrdering builds an ordering one step at a time, each step
// picking whichever unplaced, constraint-eligible step yields the
// lowest running objective score — a bounded heuristic for segments
// too large to search exhaustively.
func greedyOrdering(steps []plan.Step, objective *Objective, constraints []Constraint) ([]plan.Step, error) {
	remaining := append([]plan.Step(nil), steps...)
	var chosen []plan.Step

	for len(remaining) > 0 {
		bestIdx := -1
		bestScore := 0.0
		for i, candidate := range remaining {
			trial := append(append([]plan.Step(nil), chosen...), candidate)
			if !partialSatisfies(trial, remaining, constraints) {
				continue
			}
			score, err := objective.Score(trial)
			if err != nil {
				return nil, err
			}
			if bestIdx == -1 || score < bestScore {
				bestIdx = i
				bestScore = score
			}
		}
		if bestIdx == -1 {
			return nil, fmt.Errorf("no eligible next step satisfies the declared constraints")
		}
		chosen = append(chosen, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return chosen, nil
}

// partialSatisfies checks that appending the trial's last step does not
// already violate a constraint against steps placed so far (a step
// still in the unplaced pool can't yet be judged out-of-order).
func partialSatisfies(trial []plan.Step, stillUnplaced []plan.Step, constraints []Constraint) bool {
	pos := make(map[string]int, len(trial))
	for i, s := range trial {
		pos[s.Type] = i
	}
	for _, c := range constraints {
		bi, bok := pos[c.Before]
		ai, aok := pos[c.After]
		if bok && aok && bi >= ai {
			return false
		}
	}
	return true
}

// permute visits every permutation of steps in place (Heap's
// algorithm), calling visit after each; visit returns false to stop
// early.
func permute(steps []plan.Step, visit func([]plan.Step) bool) {
	items := append([]plan.Step(nil), steps...)
	n := len(items)
	c := make([]int, n)

	if !visit(items) {
		return
	}
	for i := 0; i < n; {
		if c[i] < i {
			if i%2 == 0 {
				items[0], items[i] = items[i], items[0]
			} else {
				items[c[i]], items[i] = items[i], items[c[i]]
			}
			if !visit(items) {
				return
			}
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}
