// Package soe implements the Standards Overlay Engine: a pure,
// deterministic function from an industry profile, an active profile
// stack, and a set of manufacturing inputs to a fully resolved SOERun
// of Decisions, Gates, and derived artifacts. Nothing in
// this package performs I/O, reads the clock, or touches randomness —
// every non-determinism the engine needs (ids, timestamps) is supplied
// by the caller.
package soe

import (
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/ruleexpr"
	"github.com/SodiumBank/Datum/pkg/standards"
)

// Request is the full set of inputs to an SOE run. Exactly one of
// ActiveProfiles or ProfileBundleID should be set; if neither is set,
// the run falls back to the industry profile's own defaults.
type Request struct {
	IndustryProfile string
	HardwareClass   string
	ActiveProfiles  []string
	ProfileBundleID string
	AdditionalPacks []string
	Inputs          ruleexpr.Context
	AuditReplay     bool
}

// ProfileStackEntry is one resolved member of profile_stack — layer is
// always the semantic constant, never a list index.
type ProfileStackEntry struct {
	ProfileID        string               `json:"profile_id"`
	ProfileType      profiles.ProfileType `json:"profile_type"`
	Layer            profiles.Layer       `json:"layer"`
	ParentProfileIDs []string             `json:"parent_profile_ids,omitempty"`
}

// ProfileSource tags a Decision with the profile that introduced its
// governing pack.
type ProfileSource struct {
	ProfileID   string               `json:"profile_id"`
	ProfileType profiles.ProfileType `json:"profile_type"`
	Layer       profiles.Layer       `json:"layer"`
}

// Why is the rendered, human-readable justification for a Decision.
type Why struct {
	RuleID    string   `json:"rule_id"`
	PackID    string   `json:"pack_id"`
	Citations []string `json:"citations,omitempty"`
	Summary   string   `json:"summary"`
	Rendered  string   `json:"rendered"`
}

// Decision is one content-addressed, action-bearing outcome of rule
// evaluation.
type Decision struct {
	ID            string                `json:"id"`
	Action        standards.Action      `json:"action"`
	ObjectType    string                `json:"object_type"`
	ObjectID      string                `json:"object_id"`
	Enforcement   standards.Enforcement `json:"enforcement,omitempty"`
	Why           Why                   `json:"why"`
	ProfileSource *ProfileSource        `json:"profile_source,omitempty"`
}

// GateStatus is the resolved state of a Gate.
type GateStatus string

const (
	GateOpen    GateStatus = "open"
	GateBlocked GateStatus = "blocked"
	GateWarning GateStatus = "warning"
)

// Gate aggregates the decisions that guard a release checkpoint.
type Gate struct {
	GateID    string     `json:"gate_id"`
	Status    GateStatus `json:"status"`
	BlockedBy []string   `json:"blocked_by,omitempty"`
}

// CostModifier is a derived ADD_COST_MODIFIER artifact.
type CostModifier struct {
	DecisionID string  `json:"decision_id"`
	Amount     float64 `json:"amount"`
	Basis      string  `json:"basis,omitempty"`
}

// RequiredEvidence is a derived REQUIRE-on-evidence artifact.
type RequiredEvidence struct {
	DecisionID   string `json:"decision_id"`
	EvidenceType string `json:"evidence_type"`
	Retention    int    `json:"retention_days,omitempty"`
}

// Run is the complete, pure output of an SOE evaluation. Regenerating
// a Run from identical inputs must yield byte-equal canonical JSON.
type Run struct {
	SOERunID         string              `json:"soe_run_id"`
	IndustryProfile  string              `json:"industry_profile"`
	HardwareClass    string              `json:"hardware_class,omitempty"`
	ActivePacks      []string            `json:"active_packs"`
	ProfileStack     []ProfileStackEntry `json:"profile_stack"`
	Decisions        []Decision          `json:"decisions"`
	Gates            []Gate              `json:"gates"`
	RequiredEvidence []RequiredEvidence  `json:"required_evidence,omitempty"`
	CostModifiers    []CostModifier      `json:"cost_modifiers,omitempty"`
	AuditReplay      bool                `json:"audit_replay,omitempty"`
}
