package profiles

import "testing"

func baseProfile(id string) *StandardsProfile {
	return &StandardsProfile{
		ProfileID:      id,
		ProfileType:    TypeBase,
		DefaultPacks:   []string{"PACK_BASE"},
		OverrideMode:   OverrideAdditive,
		ConflictPolicy: ConflictError,
		State:          StateApproved,
		Version:        "1.0.0",
	}
}

func TestValidateGraph_AcceptsValidLayering(t *testing.T) {
	base := baseProfile("base-1")
	domain := &StandardsProfile{
		ProfileID:        "domain-1",
		ProfileType:      TypeDomain,
		ParentProfileIDs: []string{"base-1"},
		DefaultPacks:     []string{"PACK_DOMAIN"},
		OverrideMode:     OverrideAdditive,
		ConflictPolicy:   ConflictError,
		State:            StateApproved,
		Version:          "1.0.0",
	}
	override := &StandardsProfile{
		ProfileID:        "override-1",
		ProfileType:      TypeCustomerOverride,
		ParentProfileIDs: []string{"domain-1"},
		DefaultPacks:     []string{"PACK_OVERRIDE"},
		OverrideMode:     OverrideAdditive,
		ConflictPolicy:   ConflictChildWins,
		State:            StateApproved,
		Version:          "1.0.0",
	}

	all := map[string]*StandardsProfile{
		base.ProfileID:     base,
		domain.ProfileID:   domain,
		override.ProfileID: override,
	}
	if err := ValidateGraph(all); err != nil {
		t.Fatalf("expected valid graph, got error: %v", err)
	}
}

func TestValidateGraph_RejectsDomainWithNonBaseParent(t *testing.T) {
	domainA := &StandardsProfile{ProfileID: "domain-a", ProfileType: TypeDomain, DefaultPacks: []string{"X"}, State: StateApproved, Version: "1.0.0"}
	domainB := &StandardsProfile{ProfileID: "domain-b", ProfileType: TypeDomain, ParentProfileIDs: []string{"domain-a"}, DefaultPacks: []string{"Y"}, State: StateApproved, Version: "1.0.0"}

	all := map[string]*StandardsProfile{
		domainA.ProfileID: domainA,
		domainB.ProfileID: domainB,
	}
	if err := ValidateGraph(all); err == nil {
		t.Fatal("expected type constraint violation, got nil")
	}
}

func TestValidateGraph_RejectsCycle(t *testing.T) {
	a := &StandardsProfile{ProfileID: "a", ProfileType: TypeBase, ParentProfileIDs: []string{"b"}, DefaultPacks: []string{"X"}, State: StateApproved, Version: "1.0.0"}
	b := &StandardsProfile{ProfileID: "b", ProfileType: TypeBase, ParentProfileIDs: []string{"a"}, DefaultPacks: []string{"Y"}, State: StateApproved, Version: "1.0.0"}

	all := map[string]*StandardsProfile{"a": a, "b": b}
	if err := ValidateGraph(all); err == nil {
		t.Fatal("expected cycle detection error, got nil")
	}
}

func TestValidateGraph_RejectsUnknownParent(t *testing.T) {
	a := &StandardsProfile{ProfileID: "a", ProfileType: TypeDomain, ParentProfileIDs: []string{"missing"}, DefaultPacks: []string{"X"}, State: StateApproved, Version: "1.0.0"}
	all := map[string]*StandardsProfile{"a": a}
	if err := ValidateGraph(all); err == nil {
		t.Fatal("expected unknown parent error, got nil")
	}
}

func TestValidateGraph_RejectsBaseWithParents(t *testing.T) {
	parent := baseProfile("parent")
	child := &StandardsProfile{ProfileID: "child", ProfileType: TypeBase, ParentProfileIDs: []string{"parent"}, DefaultPacks: []string{"X"}, State: StateApproved, Version: "1.0.0"}
	all := map[string]*StandardsProfile{"parent": parent, "child": child}
	if err := ValidateGraph(all); err == nil {
		t.Fatal("expected BASE-with-parents error, got nil")
	}
}
