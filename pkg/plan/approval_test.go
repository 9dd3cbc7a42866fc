package plan

import (
	"testing"

	"github.com/SodiumBank/Datum/pkg/apperr"
)

func draftPlan() *DatumPlan {
	return &DatumPlan{
		PlanID:  "plan-1",
		QuoteID: "q-1",
		Version: 1,
		State:   StateDraft,
		Tier:    1,
		Steps: []Step{
			{StepID: "s1", Type: "INTAKE_REVIEW", Sequence: 0, Required: true, SourceRules: []string{"BASELINE_DEFAULT_STEP"}},
		},
	}
}

func TestApprovalHappyPath(t *testing.T) {
	p := draftPlan()

	submitted, err := Submit(p, "ready for review", "eng-1", "2026-07-31T00:00:00Z")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.State != StateSubmitted {
		t.Fatalf("expected submitted, got %s", submitted.State)
	}
	if p.State != StateDraft {
		t.Fatal("Submit must not mutate its input")
	}

	approved, err := Approve(submitted, "looks good", RoleOps, "ops-1", "2026-07-31T01:00:00Z")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.State != StateApproved || !approved.Locked {
		t.Fatalf("expected approved+locked, got %+v", approved)
	}
}

func TestApprove_RejectsWrongRole(t *testing.T) {
	p := draftPlan()
	submitted, _ := Submit(p, "r", "u", "t")
	if _, err := Approve(submitted, "r", RoleCustomer, "cust-1", "t"); err == nil {
		t.Fatal("expected error approving with a non-OPS/ADMIN role")
	}
}

func TestReject_ReturnsToSameVersionAsDraft(t *testing.T) {
	p := draftPlan()
	submitted, _ := Submit(p, "r", "u", "t")
	rejected, err := Reject(submitted, "missing evidence", "qa-1", "2026-07-31T02:00:00Z")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.State != StateDraft || rejected.Version != p.Version {
		t.Fatalf("expected same version back in draft, got %+v", rejected)
	}
}

func TestEnsureEditable_RejectsApproved(t *testing.T) {
	p := draftPlan()
	p.State = StateApproved
	err := EnsureEditable(p)
	if !apperr.Is(err, apperr.CodePlanApprovedImmutable) {
		t.Fatalf("expected PLAN_APPROVED_IMMUTABLE, got %v", err)
	}
}

func TestForkFromApproved_StartsNewDraftVersion(t *testing.T) {
	p := draftPlan()
	p.State = StateApproved
	p.Locked = true
	p.ApprovedBy = "ops-1"
	p.ApprovedAt = "2026-07-31T01:00:00Z"

	forked, err := ForkFromApproved(p)
	if err != nil {
		t.Fatalf("fork: %v", err)
	}
	if forked.Version != 2 || forked.ParentVersion != 1 {
		t.Fatalf("expected v2 parent v1, got %+v", forked)
	}
	if forked.State != StateDraft || forked.Locked {
		t.Fatalf("expected draft+unlocked fork, got %+v", forked)
	}
	if forked.ApprovedBy != "" {
		t.Fatal("fork must not carry forward approval stamps")
	}
}
