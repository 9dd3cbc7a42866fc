package soe

import (
	"context"
	"testing"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/ruleexpr"
	"github.com/SodiumBank/Datum/pkg/standards"
)

func mustPackRegistry(t *testing.T, packs ...*standards.Pack) *standards.MemoryRegistry {
	t.Helper()
	reg, err := standards.NewMemoryRegistry()
	if err != nil {
		t.Fatalf("new pack registry: %v", err)
	}
	for _, p := range packs {
		reg.Register(p)
	}
	return reg
}

func leafExpr(field string, op ruleexpr.Op, value any) ruleexpr.Expr {
	return ruleexpr.Expr{Leaf: &ruleexpr.Leaf{Field: field, Op: op, Value: value}}
}

func approvedProfile(id string, packs []string) *profiles.StandardsProfile {
	return &profiles.StandardsProfile{
		ProfileID:      id,
		ProfileType:    profiles.TypeBase,
		DefaultPacks:   packs,
		OverrideMode:   profiles.OverrideAdditive,
		ConflictPolicy: profiles.ConflictError,
		State:          profiles.StateApproved,
		Version:        "1.0.0",
	}
}

func TestEvaluate_SimpleRequireProducesDecision(t *testing.T) {
	pack := &standards.Pack{
		PackID:   "NASA_POLYMERICS",
		Industry: "aerospace",
		Rules: []standards.Rule{
			{
				RuleID:    "RULE_1",
				Summary:   "Outgassing test required for polymer components",
				Citations: []string{"NASA-STD-6016"},
				Trigger:   leafExpr("materials", ruleexpr.OpContains, "polymer"),
				Actions: []standards.Action{
					{Type: standards.ActionRequire, ObjectType: "test", ObjectID: "OUTGASSING"},
				},
			},
		},
	}

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(approvedProfile("p-base", []string{"NASA_POLYMERICS"}))

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, pack)}
	req := Request{
		IndustryProfile: "aerospace",
		ActiveProfiles:  []string{"p-base"},
		Inputs:          ruleexpr.Context{"materials": []any{"polymer", "aluminum"}},
	}

	run, err := Evaluate(context.Background(), deps, req, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(run.Decisions))
	}
	if run.Decisions[0].ObjectID != "OUTGASSING" {
		t.Fatalf("unexpected decision: %+v", run.Decisions[0])
	}
	if run.ActivePacks[0] != "NASA_POLYMERICS" {
		t.Fatalf("expected active_packs to include pack, got %v", run.ActivePacks)
	}
}

func TestEvaluate_NonApprovedProfileFailsRun(t *testing.T) {
	p := approvedProfile("p-draft", []string{"PACK_A"})
	p.State = profiles.StateDraft

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(p)

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t)}
	req := Request{IndustryProfile: "aerospace", ActiveProfiles: []string{"p-draft"}}

	_, err := Evaluate(context.Background(), deps, req, "run-2")
	if !apperr.Is(err, apperr.CodeProfileUnusable) {
		t.Fatalf("expected PROFILE_UNUSABLE, got %v", err)
	}
}

func TestEvaluate_DeprecatedProfileOnlyUsableUnderAuditReplay(t *testing.T) {
	p := approvedProfile("p-dep", []string{"PACK_A"})
	p.State = profiles.StateDeprecated

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(p)
	pack := &standards.Pack{PackID: "PACK_A", Industry: "aerospace"}

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, pack)}
	req := Request{IndustryProfile: "aerospace", ActiveProfiles: []string{"p-dep"}}

	if _, err := Evaluate(context.Background(), deps, req, "run-3"); !apperr.Is(err, apperr.CodeProfileUnusable) {
		t.Fatalf("expected PROFILE_UNUSABLE without audit replay, got %v", err)
	}

	req.AuditReplay = true
	run, err := Evaluate(context.Background(), deps, req, "run-4")
	if err != nil {
		t.Fatalf("unexpected error under audit replay: %v", err)
	}
	if !run.AuditReplay {
		t.Fatal("expected audit_replay=true on the resulting run")
	}
}

func TestEvaluate_UnresolvedPackFails(t *testing.T) {
	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(approvedProfile("p-1", []string{"MISSING_PACK"}))

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t)}
	req := Request{IndustryProfile: "aerospace", ActiveProfiles: []string{"p-1"}}

	_, err := Evaluate(context.Background(), deps, req, "run-5")
	if !apperr.Is(err, apperr.CodePackNotFound) {
		t.Fatalf("expected PACK_NOT_FOUND, got %v", err)
	}
}

func TestEvaluate_ConflictUnderErrorPolicyAborts(t *testing.T) {
	pack := &standards.Pack{
		PackID: "PACK_CONFLICT",
		Rules: []standards.Rule{
			{RuleID: "R1", Summary: "require", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionRequire, ObjectType: "step", ObjectID: "CLEAN"}}},
			{RuleID: "R2", Summary: "prohibit", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionProhibit, ObjectType: "step", ObjectID: "CLEAN"}}},
		},
	}

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(approvedProfile("p-1", []string{"PACK_CONFLICT"}))

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, pack)}
	req := Request{
		IndustryProfile: "aerospace",
		ActiveProfiles:  []string{"p-1"},
		Inputs:          ruleexpr.Context{"x": true},
	}

	_, err := Evaluate(context.Background(), deps, req, "run-6")
	if !apperr.Is(err, apperr.CodeRuleConflict) {
		t.Fatalf("expected RULE_CONFLICT, got %v", err)
	}
}

func TestEvaluate_ConflictUnderChildWinsSurvivesWithOverrideLayerSource(t *testing.T) {
	basePack := &standards.Pack{
		PackID: "PACK_BASE",
		Rules: []standards.Rule{
			{RuleID: "R_BASE", Summary: "base requires clean", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionRequire, ObjectType: "step", ObjectID: "CLEAN"}}},
		},
	}
	overridePack := &standards.Pack{
		PackID: "PACK_OVERRIDE",
		Rules: []standards.Rule{
			{RuleID: "R_OVERRIDE", Summary: "customer prohibits clean", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionProhibit, ObjectType: "step", ObjectID: "CLEAN"}}},
		},
	}

	base := approvedProfile("base-1", []string{"PACK_BASE"})
	base.ProfileType = profiles.TypeBase

	override := &profiles.StandardsProfile{
		ProfileID:        "override-1",
		ProfileType:      profiles.TypeDomain,
		ParentProfileIDs: []string{"base-1"},
		DefaultPacks:     []string{"PACK_OVERRIDE"},
		OverrideMode:     profiles.OverrideAdditive,
		ConflictPolicy:   profiles.ConflictChildWins,
		State:            profiles.StateApproved,
		Version:          "1.0.0",
	}

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(base)
	profReg.PutProfile(override)

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, basePack, overridePack)}
	req := Request{
		IndustryProfile: "aerospace",
		ActiveProfiles:  []string{"override-1"},
		Inputs:          ruleexpr.Context{"x": true},
	}

	run, err := Evaluate(context.Background(), deps, req, "run-child-wins")
	if err != nil {
		t.Fatalf("expected CHILD_WINS conflict to resolve without aborting, got error: %v", err)
	}
	if len(run.Decisions) != 2 {
		t.Fatalf("expected both conflicting decisions retained for traceability, got %d", len(run.Decisions))
	}

	var prohibit Decision
	for _, d := range run.Decisions {
		if d.Action.Type == standards.ActionProhibit {
			prohibit = d
		}
	}
	if prohibit.ProfileSource == nil || prohibit.ProfileSource.Layer != profiles.LayerDomain {
		t.Fatalf("expected the override (higher-layer) decision's profile_source to reflect layer=DOMAIN, got %+v", prohibit.ProfileSource)
	}
}

func TestEvaluate_ConflictUnderParentWinsSurvivesWithoutAbort(t *testing.T) {
	basePack := &standards.Pack{
		PackID: "PACK_BASE",
		Rules: []standards.Rule{
			{RuleID: "R_BASE", Summary: "base requires clean", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionRequire, ObjectType: "step", ObjectID: "CLEAN"}}},
		},
	}
	overridePack := &standards.Pack{
		PackID: "PACK_OVERRIDE",
		Rules: []standards.Rule{
			{RuleID: "R_OVERRIDE", Summary: "customer prohibits clean", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionProhibit, ObjectType: "step", ObjectID: "CLEAN"}}},
		},
	}

	base := approvedProfile("base-2", []string{"PACK_BASE"})
	base.ProfileType = profiles.TypeBase

	override := &profiles.StandardsProfile{
		ProfileID:        "override-2",
		ProfileType:      profiles.TypeDomain,
		ParentProfileIDs: []string{"base-2"},
		DefaultPacks:     []string{"PACK_OVERRIDE"},
		OverrideMode:     profiles.OverrideAdditive,
		ConflictPolicy:   profiles.ConflictParentWins,
		State:            profiles.StateApproved,
		Version:          "1.0.0",
	}

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(base)
	profReg.PutProfile(override)

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, basePack, overridePack)}
	req := Request{
		IndustryProfile: "aerospace",
		ActiveProfiles:  []string{"override-2"},
		Inputs:          ruleexpr.Context{"x": true},
	}

	run, err := Evaluate(context.Background(), deps, req, "run-parent-wins")
	if err != nil {
		t.Fatalf("expected PARENT_WINS conflict to resolve without aborting, got error: %v", err)
	}
	if len(run.Decisions) != 2 {
		t.Fatalf("expected both conflicting decisions retained for traceability, got %d", len(run.Decisions))
	}
}

func TestEvaluate_DeterministicAcrossPermutation(t *testing.T) {
	packA := &standards.Pack{
		PackID: "PACK_A",
		Rules: []standards.Rule{
			{RuleID: "RA1", Summary: "a", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionRequire, ObjectType: "test", ObjectID: "T1"}}},
		},
	}
	packB := &standards.Pack{
		PackID: "PACK_B",
		Rules: []standards.Rule{
			{RuleID: "RB1", Summary: "b", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{{Type: standards.ActionRequire, ObjectType: "test", ObjectID: "T2"}}},
		},
	}

	profReg1 := profiles.NewMemoryRegistry()
	profReg1.PutProfile(approvedProfile("p-1", []string{"PACK_B", "PACK_A"}))
	profReg2 := profiles.NewMemoryRegistry()
	profReg2.PutProfile(approvedProfile("p-1", []string{"PACK_A", "PACK_B"}))

	req := Request{
		IndustryProfile: "aerospace",
		ActiveProfiles:  []string{"p-1"},
		Inputs:          ruleexpr.Context{"x": true},
	}

	run1, err := Evaluate(context.Background(), Deps{Profiles: profReg1, Packs: mustPackRegistry(t, packA, packB)}, req, "run-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run2, err := Evaluate(context.Background(), Deps{Profiles: profReg2, Packs: mustPackRegistry(t, packA, packB)}, req, "run-x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(run1.ActivePacks) != len(run2.ActivePacks) {
		t.Fatalf("active pack count mismatch: %v vs %v", run1.ActivePacks, run2.ActivePacks)
	}
	for i := range run1.ActivePacks {
		if run1.ActivePacks[i] != run2.ActivePacks[i] {
			t.Fatalf("active pack order mismatch at %d: %v vs %v", i, run1.ActivePacks, run2.ActivePacks)
		}
	}
	for i := range run1.Decisions {
		if run1.Decisions[i].ID != run2.Decisions[i].ID {
			t.Fatalf("decision id order mismatch: %v vs %v", run1.Decisions, run2.Decisions)
		}
	}
}

func TestEvaluate_GateBlockedByEnforcement(t *testing.T) {
	pack := &standards.Pack{
		PackID: "PACK_GATE",
		Rules: []standards.Rule{
			{RuleID: "R1", Summary: "blocking require", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{
					{Type: standards.ActionRequire, ObjectType: "step", ObjectID: "CURE", Enforcement: standards.EnforcementBlockRelease},
				}},
			{RuleID: "R2", Summary: "gate on cure", Trigger: leafExpr("x", ruleexpr.OpEquals, true),
				Actions: []standards.Action{
					{Type: standards.ActionAddGate, ObjectType: "step", ObjectID: "CURE", GateID: "GATE_CURE"},
				}},
		},
	}

	profReg := profiles.NewMemoryRegistry()
	profReg.PutProfile(approvedProfile("p-1", []string{"PACK_GATE"}))

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, pack)}
	req := Request{IndustryProfile: "aerospace", ActiveProfiles: []string{"p-1"}, Inputs: ruleexpr.Context{"x": true}}

	run, err := Evaluate(context.Background(), deps, req, "run-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.Gates) != 1 {
		t.Fatalf("expected 1 gate, got %d", len(run.Gates))
	}
	if run.Gates[0].Status != GateBlocked {
		t.Fatalf("expected gate blocked, got %s", run.Gates[0].Status)
	}
	if len(run.Gates[0].BlockedBy) == 0 {
		t.Fatal("expected blocked_by to be non-empty")
	}
}

func TestEvaluate_FallsBackToIndustryDefaultsWhenNoExplicitStack(t *testing.T) {
	pack := &standards.Pack{PackID: "PACK_DEFAULT", Rules: nil}
	profReg := profiles.NewMemoryRegistry()
	profReg.PutIndustryProfile(&profiles.IndustryProfile{
		IndustryID:   "medical",
		DefaultPacks: []string{"PACK_DEFAULT"},
	})

	deps := Deps{Profiles: profReg, Packs: mustPackRegistry(t, pack)}
	req := Request{IndustryProfile: "medical"}

	run, err := Evaluate(context.Background(), deps, req, "run-8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(run.ActivePacks) != 1 || run.ActivePacks[0] != "PACK_DEFAULT" {
		t.Fatalf("expected industry default pack, got %v", run.ActivePacks)
	}
	if len(run.ProfileStack) != 0 {
		t.Fatalf("expected empty profile stack on pure industry-default fallback, got %v", run.ProfileStack)
	}
}
