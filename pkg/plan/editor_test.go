package plan

import (
	"testing"

	"github.com/SodiumBank/Datum/pkg/apperr"
)

func planWithLockedStep() *DatumPlan {
	return &DatumPlan{
		PlanID:  "plan-1",
		QuoteID: "q-1",
		Version: 1,
		State:   StateDraft,
		Steps: []Step{
			{StepID: "free", Type: "PACKAGING", Sequence: 0, SourceRules: []string{"BASELINE_DEFAULT_STEP"}},
			{StepID: "locked", Type: "CURE", Sequence: 1, LockedSequence: true, SOEDecisionID: "dec-1", SourceRules: []string{"R1"}},
		},
	}
}

func TestEdit_FreeStepEditableWithoutOverride(t *testing.T) {
	p := planWithLockedStep()
	edits := EditSet{
		Steps: []Step{
			p.Steps[1],
			{StepID: "free", Type: "PACKAGING_RENAMED", Sequence: 0, SourceRules: []string{"BASELINE_DEFAULT_STEP"}},
		},
	}
	next, err := Edit(p, edits, "tidy up", nil, "eng-1", "2026-07-31T00:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Version != 2 || next.ParentVersion != 1 {
		t.Fatalf("expected v2 parent v1, got %+v", next)
	}
}

func TestEdit_RemovingLockedStepRequiresOverride(t *testing.T) {
	p := planWithLockedStep()
	edits := EditSet{Steps: []Step{p.Steps[0]}} // drops the locked SOE step

	if _, err := Edit(p, edits, "remove cure", nil, "eng-1", "t"); !apperr.Is(err, apperr.CodePlanInvalidEdit) {
		t.Fatalf("expected PLAN_INVALID_EDIT, got %v", err)
	}

	overrides := []Override{{Constraint: "locked", Reason: "customer accepted risk", UserID: "eng-1", Timestamp: "t"}}
	next, err := Edit(p, edits, "remove cure", overrides, "eng-1", "t")
	if err != nil {
		t.Fatalf("expected override to permit removal, got error: %v", err)
	}
	if len(next.Steps) != 1 {
		t.Fatalf("expected locked step removed, got %+v", next.Steps)
	}
}

func TestEdit_OverrideWithoutReasonRejected(t *testing.T) {
	p := planWithLockedStep()
	edits := EditSet{Steps: []Step{p.Steps[0]}}
	overrides := []Override{{Constraint: "locked", Reason: "", UserID: "eng-1", Timestamp: "t"}}

	if _, err := Edit(p, edits, "remove cure", overrides, "eng-1", "t"); !apperr.Is(err, apperr.CodeOverrideMissingReason) {
		t.Fatalf("expected OVERRIDE_MISSING_REASON, got %v", err)
	}
}

func TestEdit_RejectsNonDraft(t *testing.T) {
	p := planWithLockedStep()
	p.State = StateApproved
	if _, err := Edit(p, EditSet{Steps: p.Steps}, "r", nil, "u", "t"); !apperr.Is(err, apperr.CodePlanApprovedImmutable) {
		t.Fatalf("expected PLAN_APPROVED_IMMUTABLE, got %v", err)
	}
}

func TestDiff_DetectsAddedAndRemoved(t *testing.T) {
	v1 := planWithLockedStep()
	v2 := &DatumPlan{
		Steps: []Step{
			v1.Steps[1],
			{StepID: "new", Type: "INSPECTION", Sequence: 1},
		},
	}
	diffs := Diff(v1, v2)

	var sawRemoved, sawAdded bool
	for _, d := range diffs {
		if d.StepID == "free" && d.Change == "removed" {
			sawRemoved = true
		}
		if d.StepID == "new" && d.Change == "added" {
			sawAdded = true
		}
	}
	if !sawRemoved || !sawAdded {
		t.Fatalf("expected removed 'free' and added 'new', got %+v", diffs)
	}
}

func TestDiff_DetectsContentModificationAtUnchangedIndex(t *testing.T) {
	v1 := planWithLockedStep()
	v2 := &DatumPlan{
		Steps: []Step{
			{StepID: "free", Type: "PACKAGING", Sequence: 0, Acceptance: "visual inspection pass", SourceRules: []string{"BASELINE_DEFAULT_STEP"}},
			v1.Steps[1],
		},
	}
	diffs := Diff(v1, v2)

	var found bool
	for _, d := range diffs {
		if d.StepID == "free" {
			found = true
			if d.Change != "modified" {
				t.Fatalf("expected 'modified' for an acceptance-only change at the same index, got %q", d.Change)
			}
		}
	}
	if !found {
		t.Fatal("expected a diff entry for the modified 'free' step")
	}
}

func TestDiff_DetectsPureReorderOfUnchangedSteps(t *testing.T) {
	v1 := planWithLockedStep()
	v2 := &DatumPlan{Steps: []Step{v1.Steps[1], v1.Steps[0]}}
	diffs := Diff(v1, v2)

	var sawReordered bool
	for _, d := range diffs {
		if d.StepID == "free" {
			if d.Change != "reordered" {
				t.Fatalf("expected 'reordered' for an unchanged step at a new index, got %q", d.Change)
			}
			sawReordered = true
		}
	}
	if !sawReordered {
		t.Fatal("expected a reordered diff entry for 'free'")
	}
}
