package plan

import (
	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/canonicalize"
)

// EditSet is the caller-supplied set of mutations for one edit call.
// Steps is the full desired step list post-edit; the editor diffs it
// against the loaded version to find removed/reordered SOE items.
type EditSet struct {
	Steps          []Step
	Tests          []Test
	EvidenceIntent []EvidenceIntent
}

// Edit applies edits to the latest (draft) version of a plan and
// returns the new version N+1.
// Overrides must cover every removed or reordered SOE-sourced item
// with a non-empty reason; anything else touching an SOE-locked item
// without a matching override is rejected.
func Edit(p *DatumPlan, edits EditSet, reason string, overrides []Override, editedBy, editedAt string) (*DatumPlan, error) {
	if err := EnsureEditable(p); err != nil {
		return nil, err
	}

	overridden := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		if o.Reason == "" {
			return nil, apperr.Newf(apperr.CodeOverrideMissingReason,
				"override for constraint %q on plan %s has no reason", o.Constraint, p.PlanID)
		}
		overridden[o.Constraint] = true
	}

	newByStepID := make(map[string]Step, len(edits.Steps))
	for _, s := range edits.Steps {
		newByStepID[s.StepID] = s
	}

	for _, old := range p.Steps {
		if old.SOEDecisionID == "" && !old.LockedSequence {
			continue // freely editable
		}
		newStep, stillPresent := newByStepID[old.StepID]
		if !stillPresent {
			if !overridden[old.StepID] {
				return nil, apperr.Newf(apperr.CodePlanInvalidEdit,
					"removing SOE-sourced step %s requires an override with reason", old.StepID)
			}
			continue
		}
		if newStep.Sequence != old.Sequence {
			if !overridden[old.StepID] {
				return nil, apperr.Newf(apperr.CodePlanInvalidEdit,
					"reordering SOE-sourced or locked-sequence step %s requires an override with reason", old.StepID)
			}
		}
	}

	newEvidenceSet := make(map[string]bool, len(edits.EvidenceIntent))
	for _, e := range edits.EvidenceIntent {
		newEvidenceSet[e.EvidenceType] = true
	}
	for _, old := range p.EvidenceIntent {
		if old.SOEDecisionID == "" {
			continue
		}
		if !newEvidenceSet[old.EvidenceType] && !overridden[old.EvidenceType] {
			return nil, apperr.Newf(apperr.CodePlanInvalidEdit,
				"removing required evidence %s requires an override with reason", old.EvidenceType)
		}
	}

	next := clone(p)
	next.Version = p.Version + 1
	next.ParentVersion = p.Version
	next.State = StateDraft
	next.Locked = false
	next.Steps = append([]Step(nil), edits.Steps...)
	next.Tests = append([]Test(nil), edits.Tests...)
	next.EvidenceIntent = append([]EvidenceIntent(nil), edits.EvidenceIntent...)
	next.EditMetadata = &EditMetadata{
		EditedBy:   editedBy,
		EditedAt:   editedAt,
		EditReason: reason,
		Overrides:  overrides,
	}
	return next, nil
}

// StepDiff describes one changed, added, or removed step between two
// plan versions. Change
// is one of added/removed/modified (content differs under the same
// step_id, e.g. an edited parameters/acceptance/notes field) or
// reordered (same content, different position).
type StepDiff struct {
	StepID   string `json:"step_id"`
	Change   string `json:"change"` // added | removed | modified | reordered
	OldIndex int    `json:"old_index,omitempty"`
	NewIndex int    `json:"new_index,omitempty"`
}

// contentKey hashes every field that can change without changing
// step_id — acceptance and notes are excluded from the step_id hash in
// buildStep, and Edit never recomputes step_id (so an edited
// parameters map keeps the old id too), so Diff needs its own
// full-content comparison to notice an edit that left step_id unchanged.
func contentKey(s Step) string {
	type full struct {
		Type           string         `json:"type"`
		Required       bool           `json:"required"`
		LockedSequence bool           `json:"locked_sequence"`
		Parameters     map[string]any `json:"parameters,omitempty"`
		Acceptance     string         `json:"acceptance,omitempty"`
		Notes          string         `json:"notes,omitempty"`
		SourceRules    []string       `json:"source_rules"`
		SOEDecisionID  string         `json:"soe_decision_id,omitempty"`
	}
	hash, err := canonicalize.CanonicalHash(full{
		Type:           s.Type,
		Required:       s.Required,
		LockedSequence: s.LockedSequence,
		Parameters:     s.Parameters,
		Acceptance:     s.Acceptance,
		Notes:          s.Notes,
		SourceRules:    s.SourceRules,
		SOEDecisionID:  s.SOEDecisionID,
	})
	if err != nil {
		// Content that fails to hash (should not happen for plan data)
		// is treated as always-different so the diff errs toward
		// reporting a change rather than silently hiding one.
		return s.StepID + ":unhashable"
	}
	return hash
}

// Diff computes a deterministic diff of v2's steps against v1's,
// covering additions, removals, content modifications, and pure
// reordering of unchanged steps.
func Diff(v1, v2 *DatumPlan) []StepDiff {
	oldIdx := make(map[string]int, len(v1.Steps))
	oldContent := make(map[string]string, len(v1.Steps))
	for i, s := range v1.Steps {
		oldIdx[s.StepID] = i
		oldContent[s.StepID] = contentKey(s)
	}
	newIdx := make(map[string]int, len(v2.Steps))
	for i, s := range v2.Steps {
		newIdx[s.StepID] = i
	}

	var diffs []StepDiff
	for i, s := range v2.Steps {
		oi, existed := oldIdx[s.StepID]
		switch {
		case !existed:
			diffs = append(diffs, StepDiff{StepID: s.StepID, Change: "added", NewIndex: i})
		case oldContent[s.StepID] != contentKey(s):
			diffs = append(diffs, StepDiff{StepID: s.StepID, Change: "modified", OldIndex: oi, NewIndex: i})
		case oi != i:
			diffs = append(diffs, StepDiff{StepID: s.StepID, Change: "reordered", OldIndex: oi, NewIndex: i})
		}
	}
	for i, s := range v1.Steps {
		if _, ok := newIdx[s.StepID]; !ok {
			diffs = append(diffs, StepDiff{StepID: s.StepID, Change: "removed", OldIndex: i})
		}
	}
	return diffs
}
