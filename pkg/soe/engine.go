package soe

import (
	"context"
	"fmt"
	"sort"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/canonicalize"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/ruleexpr"
	"github.com/SodiumBank/Datum/pkg/standards"
)

// decisionIDLength is the number of hex characters kept from the full
// SHA-256 digest for Decision.id, chosen and never varied within a
// deployment.
const decisionIDLength = 16

// Deps are the explicit, read-only catalogs an SOE Evaluate call needs
// — injected, never package-level globals.
type Deps struct {
	Profiles profiles.Registry
	Packs    standards.Registry
}

// Evaluate runs the full Standards Overlay Engine algorithm over req
// and returns a complete Run. runID is supplied by the caller
// (typically a uuid minted by the transport layer) so that this
// function stays a pure computation over its arguments.
func Evaluate(ctx context.Context, deps Deps, req Request, runID string) (*Run, error) {
	stackIDs, err := resolveProfileIDs(ctx, deps.Profiles, req)
	if err != nil {
		return nil, err
	}

	allProfiles, err := profiles.LoadGraph(ctx, deps.Profiles, stackIDs)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProfileGraphInvalid, err)
	}
	if err := profiles.ValidateGraph(allProfiles); err != nil {
		return nil, apperr.Wrap(apperr.CodeProfileGraphInvalid, err)
	}

	profileStack := make([]ProfileStackEntry, 0, len(stackIDs))
	for _, id := range stackIDs {
		p := allProfiles[id]
		if !profiles.Usable(p, req.AuditReplay) {
			return nil, apperr.Newf(apperr.CodeProfileUnusable,
				"profile %s is not usable (state=%s, audit_replay=%v)", p.ProfileID, p.State, req.AuditReplay).
				WithDetail(map[string]string{"profile_id": p.ProfileID, "state": string(p.State)})
		}
		profileStack = append(profileStack, ProfileStackEntry{
			ProfileID:        p.ProfileID,
			ProfileType:      p.ProfileType,
			Layer:            p.ProfileType.Layer(),
			ParentProfileIDs: p.ParentProfileIDs,
		})
	}

	packSet := make(map[string]bool)
	for _, id := range stackIDs {
		for _, packID := range profiles.EffectivePacks(allProfiles, id) {
			packSet[packID] = true
		}
	}
	for _, packID := range req.AdditionalPacks {
		packSet[packID] = true
	}

	// Ownership for profile_source tagging is the
	// profile that directly lists pack_id in its own default_packs —
	// never the stack member that merely inherited it — so that a
	// BASE-layer pack stays attributed to its BASE profile even when
	// reached through a DOMAIN/CUSTOMER_OVERRIDE descendant's additive
	// inheritance.
	packOwners := make(map[string][]string) // pack_id -> profile_ids that directly contribute it
	for id, p := range allProfiles {
		for _, packID := range p.DefaultPacks {
			if !packSet[packID] {
				continue
			}
			packOwners[packID] = append(packOwners[packID], id)
		}
	}
	if len(stackIDs) == 0 {
		industry, err := deps.Profiles.GetIndustryProfile(ctx, req.IndustryProfile)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeProfileGraphInvalid, err)
		}
		for _, packID := range industry.DefaultPacks {
			packSet[packID] = true
		}
	}

	activePacks := make([]string, 0, len(packSet))
	for packID := range packSet {
		activePacks = append(activePacks, packID)
	}
	sort.Strings(activePacks)

	decisions := make(map[string]Decision)
	decisionOrder := make([]string, 0)
	addDecision := func(d Decision) {
		if _, ok := decisions[d.ID]; ok {
			return
		}
		decisions[d.ID] = d
		decisionOrder = append(decisionOrder, d.ID)
	}

	for _, packID := range activePacks {
		pack, err := deps.Packs.GetPack(ctx, packID)
		if err != nil {
			return nil, apperr.Newf(apperr.CodePackNotFound, "pack not found: %s", packID).WithDetail(packID)
		}
		for _, rule := range pack.Rules {
			if !ruleexpr.Eval(rule.Trigger, req.Inputs) {
				continue
			}
			for _, action := range rule.Actions {
				dec, err := buildDecision(req, rule, pack, action)
				if err != nil {
					return nil, err
				}
				dec.ProfileSource = resolveProfileSource(allProfiles, packOwners[packID])
				addDecision(dec)
			}
		}
	}

	sort.Strings(decisionOrder)
	orderedDecisions := make([]Decision, 0, len(decisionOrder))
	for _, id := range decisionOrder {
		orderedDecisions = append(orderedDecisions, decisions[id])
	}

	if err := resolveConflicts(orderedDecisions, allProfiles, packOwners); err != nil {
		return nil, err
	}

	gates, requiredEvidence, costModifiers := deriveArtifacts(orderedDecisions)

	return &Run{
		SOERunID:         runID,
		IndustryProfile:  req.IndustryProfile,
		HardwareClass:    req.HardwareClass,
		ActivePacks:      activePacks,
		ProfileStack:     profileStack,
		Decisions:        orderedDecisions,
		Gates:            gates,
		RequiredEvidence: requiredEvidence,
		CostModifiers:    costModifiers,
		AuditReplay:      req.AuditReplay,
	}, nil
}

// resolveProfileIDs merges explicit active_profiles (or a bundle's
// expansion) first, preserving first-occurrence order. If neither is
// given, the run falls back to the industry profile's raw
// default_packs (folded in directly by Evaluate, since industry
// defaults have no owning profile entity to place in profile_stack).
func resolveProfileIDs(ctx context.Context, reg profiles.Registry, req Request) ([]string, error) {
	explicit, err := profiles.ResolveActiveProfiles(ctx, reg, req.ActiveProfiles, req.ProfileBundleID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeProfileGraphInvalid, err)
	}
	return explicit, nil
}

func buildDecision(req Request, rule standards.Rule, pack *standards.Pack, action standards.Action) (Decision, error) {
	type idFields struct {
		RuleID     string `json:"rule_id"`
		PackID     string `json:"pack_id"`
		Action     string `json:"action"`
		ObjectType string `json:"object_type"`
		ObjectID   string `json:"object_id"`
	}
	hash, err := canonicalize.CanonicalHash(idFields{
		RuleID:     rule.RuleID,
		PackID:     pack.PackID,
		Action:     string(action.Type),
		ObjectType: action.ObjectType,
		ObjectID:   action.ObjectID,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("soe: hash decision fields: %w", err)
	}

	return Decision{
		ID:          canonicalize.ShortHash(hash, decisionIDLength),
		Action:      action,
		ObjectType:  action.ObjectType,
		ObjectID:    action.ObjectID,
		Enforcement: action.Enforcement,
		Why: Why{
			RuleID:    rule.RuleID,
			PackID:    pack.PackID,
			Citations: rule.Citations,
			Summary:   rule.Summary,
			Rendered:  renderWhy(req, rule, pack),
		},
	}, nil
}

// renderWhy produces a locale-independent human string.
func renderWhy(req Request, rule standards.Rule, pack *standards.Pack) string {
	s := fmt.Sprintf("[%s", req.IndustryProfile)
	if req.HardwareClass != "" {
		s += "/" + req.HardwareClass
	}
	s += fmt.Sprintf("] %s: %s", pack.PackID, rule.Summary)
	for _, c := range rule.Citations {
		s += " (" + c + ")"
	}
	return s
}

// resolveProfileSource picks the highest layer among the profiles that
// contribute a pack, ties broken by profile_id ascending.
func resolveProfileSource(all map[string]*profiles.StandardsProfile, owners []string) *ProfileSource {
	if len(owners) == 0 {
		return nil
	}
	best := owners[0]
	for _, id := range owners[1:] {
		bp, cp := all[best], all[id]
		if cp.ProfileType.Layer() > bp.ProfileType.Layer() {
			best = id
		} else if cp.ProfileType.Layer() == bp.ProfileType.Layer() && id < best {
			best = id
		}
	}
	p := all[best]
	return &ProfileSource{
		ProfileID:   p.ProfileID,
		ProfileType: p.ProfileType,
		Layer:       p.ProfileType.Layer(),
	}
}

// resolveConflicts resolves decisions on the same (object_type,
// object_id) with contradictory actions via the governing profile's
// conflict_policy. Default ERROR.
func resolveConflicts(decisions []Decision, all map[string]*profiles.StandardsProfile, packOwners map[string][]string) error {
	byObject := make(map[string][]Decision)
	for _, d := range decisions {
		key := d.ObjectType + "/" + d.ObjectID
		byObject[key] = append(byObject[key], d)
	}

	for key, ds := range byObject {
		if len(ds) < 2 {
			continue
		}
		for i := 0; i < len(ds); i++ {
			for j := i + 1; j < len(ds); j++ {
				if !contradictory(ds[i].Action.Type, ds[j].Action.Type) {
					continue
				}
				// The governing profile is the higher-layer source of the pair.
				gov := ds[i]
				if ds[j].ProfileSource != nil && (gov.ProfileSource == nil || ds[j].ProfileSource.Layer > gov.ProfileSource.Layer) {
					gov = ds[j]
				}
				policy := governingPolicy(gov, all, packOwners)
				switch policy {
				case profiles.ConflictParentWins, profiles.ConflictChildWins:
					// Resolved by profile_source layer precedence already
					// applied at decision-tagging time; both decisions are
					// kept visible in the run for traceability, so no error.
					continue
				default:
					return apperr.Newf(apperr.CodeRuleConflict,
						"conflicting decisions on %s: %s vs %s", key, ds[i].ID, ds[j].ID).
						WithDetail(map[string]any{"object": key, "decisions": []string{ds[i].ID, ds[j].ID}})
				}
			}
		}
	}
	return nil
}

func contradictory(a, b standards.ActionType) bool {
	pairs := map[standards.ActionType]standards.ActionType{
		standards.ActionRequire:  standards.ActionProhibit,
		standards.ActionProhibit: standards.ActionRequire,
	}
	return pairs[a] == b
}

func governingPolicy(d Decision, all map[string]*profiles.StandardsProfile, packOwners map[string][]string) profiles.ConflictPolicy {
	if d.ProfileSource == nil {
		return profiles.ConflictError
	}
	p, ok := all[d.ProfileSource.ProfileID]
	if !ok {
		return profiles.ConflictError
	}
	return p.ConflictPolicy
}

// deriveArtifacts derives Gates, RequiredEvidence, and CostModifiers
// from the final decision set. A gate "points to" every decision
// sharing its ADD_GATE action's (object_type, object_id) — the same
// key resolveConflicts groups decisions by — and is `blocked` iff any
// of those decisions carries BLOCK_RELEASE enforcement.
func deriveArtifacts(decisions []Decision) ([]Gate, []RequiredEvidence, []CostModifier) {
	byObject := make(map[string][]Decision)
	for _, d := range decisions {
		key := d.ObjectType + "/" + d.ObjectID
		byObject[key] = append(byObject[key], d)
	}

	var gateOrder []string
	gateKey := make(map[string]string) // gate_id -> object key
	var requiredEvidence []RequiredEvidence
	var costModifiers []CostModifier

	for _, d := range decisions {
		switch d.Action.Type {
		case standards.ActionAddGate:
			if _, ok := gateKey[d.Action.GateID]; !ok {
				gateOrder = append(gateOrder, d.Action.GateID)
				gateKey[d.Action.GateID] = d.ObjectType + "/" + d.ObjectID
			}
		case standards.ActionAddCostModifier:
			costModifiers = append(costModifiers, CostModifier{
				DecisionID: d.ID,
				Amount:     d.Action.CostDelta,
				Basis:      d.Action.CostCurrency,
			})
		case standards.ActionRequire:
			if d.ObjectType == "evidence" {
				requiredEvidence = append(requiredEvidence, RequiredEvidence{
					DecisionID:   d.ID,
					EvidenceType: d.ObjectID,
					Retention:    d.Action.RetentionDays,
				})
			}
		}
	}

	gates := make([]Gate, 0, len(gateOrder))
	for _, gateID := range gateOrder {
		var blockers []string
		for _, d := range byObject[gateKey[gateID]] {
			if d.Enforcement == standards.EnforcementBlockRelease {
				blockers = append(blockers, d.ID)
			}
		}
		status := GateOpen
		if len(blockers) > 0 {
			status = GateBlocked
		}
		gates = append(gates, Gate{GateID: gateID, Status: status, BlockedBy: blockers})
	}

	return gates, requiredEvidence, costModifiers
}
