package plan

import (
	"testing"

	"github.com/SodiumBank/Datum/pkg/soe"
	"github.com/SodiumBank/Datum/pkg/standards"
)

func TestGeneratePlan_SeedsBaselineSequence(t *testing.T) {
	q := Quote{QuoteID: "q-1", Tier: 1}
	p, err := GeneratePlan(q, nil, "plan-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Version != 1 || p.State != StateDraft || p.Locked {
		t.Fatalf("unexpected plan header: %+v", p)
	}
	if len(p.Steps) != len(baselineSequence) {
		t.Fatalf("expected %d baseline steps, got %d", len(baselineSequence), len(p.Steps))
	}
	for _, s := range p.Steps {
		if len(s.SourceRules) == 0 {
			t.Fatalf("every step must carry non-empty source_rules: %+v", s)
		}
		if s.StepID == "" {
			t.Fatal("expected a non-empty deterministic step_id")
		}
	}
}

func TestGeneratePlan_DeterministicForIdenticalInputs(t *testing.T) {
	q := Quote{QuoteID: "q-1", Tier: 2}
	p1, err := GeneratePlan(q, nil, "plan-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := GeneratePlan(q, nil, "plan-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range p1.Steps {
		if p1.Steps[i].StepID != p2.Steps[i].StepID {
			t.Fatalf("expected identical step ids, got %s vs %s", p1.Steps[i].StepID, p2.Steps[i].StepID)
		}
	}
}

func TestGeneratePlan_InsertsSOEDecisionsInSortedOrder(t *testing.T) {
	run := &soe.Run{
		SOERunID: "run-1",
		Decisions: []soe.Decision{
			{
				ID:         "bbb",
				Action:     standards.Action{Type: standards.ActionInsertStep, ObjectType: "step", ObjectID: "CURE", StepType: "CURE"},
				ObjectType: "step",
				ObjectID:   "CURE",
				Why:        soe.Why{RuleID: "R2", Rendered: "cure rule"},
			},
			{
				ID:         "aaa",
				Action:     standards.Action{Type: standards.ActionRequire, ObjectType: "test", ObjectID: "OUTGASSING"},
				ObjectType: "test",
				ObjectID:   "OUTGASSING",
				Why:        soe.Why{RuleID: "R1", Rendered: "outgassing rule"},
			},
		},
	}

	q := Quote{QuoteID: "q-2", Tier: 3}
	p, err := GeneratePlan(q, run, "plan-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SOERunID != "run-1" {
		t.Fatalf("expected soe_run_id set, got %q", p.SOERunID)
	}
	if len(p.SOEDecisionIDs) != 2 || p.SOEDecisionIDs[0] != "aaa" || p.SOEDecisionIDs[1] != "bbb" {
		t.Fatalf("expected sorted decision ids, got %v", p.SOEDecisionIDs)
	}
	if len(p.Tests) != 1 || p.Tests[0].TestID != "OUTGASSING" {
		t.Fatalf("expected OUTGASSING test appended, got %v", p.Tests)
	}

	foundCure := false
	for _, s := range p.Steps {
		if s.SOEDecisionID == "bbb" {
			foundCure = true
			if s.Type != "CURE" {
				t.Fatalf("expected inserted step type CURE, got %s", s.Type)
			}
		}
	}
	if !foundCure {
		t.Fatal("expected an inserted step for the CURE decision")
	}
}
