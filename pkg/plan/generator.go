package plan

import (
	"sort"

	"github.com/SodiumBank/Datum/pkg/canonicalize"
	"github.com/SodiumBank/Datum/pkg/soe"
	"github.com/SodiumBank/Datum/pkg/standards"
)

const stepIDLength = 16

// baselineSequence is the package-agnostic fab/assembly stage order
// seeded before any SOE decision is applied.
var baselineSequence = []string{
	"INTAKE_REVIEW",
	"MATERIAL_PREP",
	"FABRICATION",
	"ASSEMBLY",
	"INSPECTION",
	"PACKAGING",
}

// stepRequest is a step insertion pending in the generator's working
// order, before Sequence (and therefore step_id) is finalized.
type stepRequest struct {
	Type           string
	LockedSequence bool
	SourceRules    []string
	SOEDecisionID  string
	SOEWhy         string
}

// GeneratePlan is the pure Plan Generator:
// generatePlan(quote, soeRun?) -> DatumPlan(version=1, state=draft,
// locked=false). Calling it twice with byte-identical quote and soeRun
// inputs produces byte-identical output; planID is supplied by the
// caller so this stays a pure function of its arguments.
func GeneratePlan(quote Quote, run *soe.Run, planID string) (*DatumPlan, error) {
	p := &DatumPlan{
		PlanID:  planID,
		QuoteID: quote.QuoteID,
		Version: 1,
		State:   StateDraft,
		Locked:  false,
		Tier:    quote.Tier,
	}

	requests := make([]stepRequest, 0, len(baselineSequence))
	for _, stageType := range baselineSequence {
		requests = append(requests, stepRequest{Type: stageType, SourceRules: []string{"BASELINE_DEFAULT_STEP"}})
	}

	if run != nil {
		p.SOERunID = run.SOERunID

		decisionIDs := make([]string, 0, len(run.Decisions))
		for _, d := range run.Decisions {
			decisionIDs = append(decisionIDs, d.ID)
		}
		sort.Strings(decisionIDs)
		p.SOEDecisionIDs = decisionIDs

		byID := make(map[string]soe.Decision, len(run.Decisions))
		for _, d := range run.Decisions {
			byID[d.ID] = d
		}

		// Decisions forming a locked sub-sequence (e.g. clean->bake->
		// polymer->cure->inspect) must preserve the rule's intended
		// intra-sequence position, not the hash order their decision ids
		// happen to sort into. Such decisions are
		// pulled out of the main hash-ordered walk, re-sorted by their
		// action's sequence_hint, and spliced back in as one contiguous
		// block at the position where the first of them was encountered —
		// before Sequence numbers (and step_id hashes) are assigned, so
		// the final numbering reflects the spliced order, not the walk
		// order.
		var lockedDecisions []soe.Decision
		lockedInsertPos := -1

		for _, id := range decisionIDs {
			d := byID[id]
			switch d.Action.Type {
			case standards.ActionInsertStep:
				if d.Action.LockedSequence {
					if lockedInsertPos == -1 {
						lockedInsertPos = len(requests)
					}
					lockedDecisions = append(lockedDecisions, d)
					continue
				}
				requests = append(requests, stepRequest{
					Type:          d.Action.StepType,
					SourceRules:   []string{d.Why.RuleID},
					SOEDecisionID: d.ID,
					SOEWhy:        d.Why.Rendered,
				})

			case standards.ActionRequire:
				switch d.ObjectType {
				case "step":
					requests = append(requests, stepRequest{
						Type:          d.ObjectID,
						SourceRules:   []string{d.Why.RuleID},
						SOEDecisionID: d.ID,
						SOEWhy:        d.Why.Rendered,
					})
				case "test":
					p.Tests = append(p.Tests, Test{
						TestID:        d.ObjectID,
						Name:          d.ObjectID,
						SOEDecisionID: d.ID,
					})
				case "evidence":
					p.EvidenceIntent = append(p.EvidenceIntent, EvidenceIntent{
						EvidenceType:  d.ObjectID,
						RetentionDays: d.Action.RetentionDays,
						SOEDecisionID: d.ID,
					})
				}
			}
		}

		if len(lockedDecisions) > 0 {
			sort.SliceStable(lockedDecisions, func(i, j int) bool {
				hi, hj := lockedDecisions[i].Action.SequenceHint, lockedDecisions[j].Action.SequenceHint
				if hi != hj {
					return hi < hj
				}
				return lockedDecisions[i].ID < lockedDecisions[j].ID
			})

			lockedRequests := make([]stepRequest, 0, len(lockedDecisions))
			for _, d := range lockedDecisions {
				lockedRequests = append(lockedRequests, stepRequest{
					Type:           d.Action.StepType,
					LockedSequence: true,
					SourceRules:    []string{d.Why.RuleID},
					SOEDecisionID:  d.ID,
					SOEWhy:         d.Why.Rendered,
				})
			}

			tail := append([]stepRequest(nil), requests[lockedInsertPos:]...)
			requests = append(requests[:lockedInsertPos], lockedRequests...)
			requests = append(requests, tail...)
		}
	}

	for seq, r := range requests {
		step, err := buildStep(stageBaseFields{
			Type:           r.Type,
			Sequence:       seq,
			Required:       true,
			LockedSequence: r.LockedSequence,
			SourceRules:    r.SourceRules,
			SOEDecisionID:  r.SOEDecisionID,
			SOEWhy:         r.SOEWhy,
		})
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, *step)
	}

	return p, nil
}

type stageBaseFields struct {
	Type           string
	Sequence       int
	Required       bool
	LockedSequence bool
	Parameters     map[string]any
	SourceRules    []string
	SOEDecisionID  string
	SOEWhy         string
}

// buildStep computes the deterministic step_id as
// hash(canonical(step_content)), excluding step_id itself from the
// hashed fields.
func buildStep(f stageBaseFields) (*Step, error) {
	type content struct {
		Type           string         `json:"type"`
		Sequence       int            `json:"sequence"`
		Required       bool           `json:"required"`
		LockedSequence bool           `json:"locked_sequence"`
		Parameters     map[string]any `json:"parameters,omitempty"`
		SourceRules    []string       `json:"source_rules"`
		SOEDecisionID  string         `json:"soe_decision_id,omitempty"`
	}

	hash, err := canonicalize.CanonicalHash(content{
		Type:           f.Type,
		Sequence:       f.Sequence,
		Required:       f.Required,
		LockedSequence: f.LockedSequence,
		Parameters:     f.Parameters,
		SourceRules:    f.SourceRules,
		SOEDecisionID:  f.SOEDecisionID,
	})
	if err != nil {
		return nil, err
	}

	return &Step{
		StepID:         canonicalize.ShortHash(hash, stepIDLength),
		Type:           f.Type,
		Sequence:       f.Sequence,
		Required:       f.Required,
		LockedSequence: f.LockedSequence,
		Parameters:     f.Parameters,
		SourceRules:    f.SourceRules,
		SOEDecisionID:  f.SOEDecisionID,
		SOEWhy:         f.SOEWhy,
	}, nil
}
