package profiles

import (
	"context"
	"testing"
)

func TestResolveActiveProfiles_DedupesPreservingFirstOccurrence(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.PutBundle(&Bundle{BundleID: "bundle-1", ProfileIDs: []string{"p-2", "p-3", "p-1"}})

	got, err := ResolveActiveProfiles(context.Background(), reg, []string{"p-1", "p-2"}, "bundle-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"p-1", "p-2", "p-3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestResolveActiveProfiles_NoBundle(t *testing.T) {
	reg := NewMemoryRegistry()
	got, err := ResolveActiveProfiles(context.Background(), reg, []string{"p-1"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "p-1" {
		t.Fatalf("got %v", got)
	}
}

func TestResolveActiveProfiles_UnknownBundle(t *testing.T) {
	reg := NewMemoryRegistry()
	if _, err := ResolveActiveProfiles(context.Background(), reg, nil, "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown bundle")
	}
}

func TestLoadGraph_WalksAncestry(t *testing.T) {
	reg := NewMemoryRegistry()
	base := baseProfile("base-1")
	domain := &StandardsProfile{
		ProfileID:        "domain-1",
		ProfileType:      TypeDomain,
		ParentProfileIDs: []string{"base-1"},
		DefaultPacks:     []string{"PACK_DOMAIN"},
		State:            StateApproved,
		Version:          "1.0.0",
	}
	reg.PutProfile(base)
	reg.PutProfile(domain)

	all, err := LoadGraph(context.Background(), reg, []string{"domain-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := all["base-1"]; !ok {
		t.Fatal("expected ancestry to include base-1")
	}
	if _, ok := all["domain-1"]; !ok {
		t.Fatal("expected graph to include domain-1")
	}
}

func TestEffectivePacks_AdditiveIncludesAncestors(t *testing.T) {
	base := baseProfile("base-1") // contributes PACK_BASE
	domain := &StandardsProfile{
		ProfileID:        "domain-1",
		ProfileType:      TypeDomain,
		ParentProfileIDs: []string{"base-1"},
		DefaultPacks:     []string{"PACK_DOMAIN"},
		OverrideMode:     OverrideAdditive,
		State:            StateApproved,
		Version:          "1.0.0",
	}
	all := map[string]*StandardsProfile{"base-1": base, "domain-1": domain}

	packs := EffectivePacks(all, "domain-1")
	want := []string{"PACK_BASE", "PACK_DOMAIN"}
	if len(packs) != len(want) {
		t.Fatalf("got %v, want %v", packs, want)
	}
	for i := range want {
		if packs[i] != want[i] {
			t.Fatalf("got %v, want %v", packs, want)
		}
	}
}

func TestEffectivePacks_ReplaceDropsAncestors(t *testing.T) {
	base := baseProfile("base-1")
	domain := &StandardsProfile{
		ProfileID:        "domain-1",
		ProfileType:      TypeDomain,
		ParentProfileIDs: []string{"base-1"},
		DefaultPacks:     []string{"PACK_DOMAIN"},
		OverrideMode:     OverrideReplace,
		State:            StateApproved,
		Version:          "1.0.0",
	}
	all := map[string]*StandardsProfile{"base-1": base, "domain-1": domain}

	packs := EffectivePacks(all, "domain-1")
	if len(packs) != 1 || packs[0] != "PACK_DOMAIN" {
		t.Fatalf("expected only PACK_DOMAIN under REPLACE, got %v", packs)
	}
}
