// Package standards holds the StandardsPack/Rule catalog data model —
// the shared, read-only library data that profiles reference by id and
// the SOE engine evaluates. Packs are loaded from an external catalog
// and are immutable once published; nothing in this package mutates a
// Pack after Load.
package standards

import "github.com/SodiumBank/Datum/pkg/ruleexpr"

// ActionType is the closed enum of effects a matched Rule can produce.
type ActionType string

const (
	ActionRequire         ActionType = "REQUIRE"
	ActionOptional        ActionType = "OPTIONAL"
	ActionProhibit        ActionType = "PROHIBIT"
	ActionInsertStep      ActionType = "INSERT_STEP"
	ActionEscalate        ActionType = "ESCALATE"
	ActionSetRetention    ActionType = "SET_RETENTION"
	ActionAddCostModifier ActionType = "ADD_COST_MODIFIER"
	ActionAddGate         ActionType = "ADD_GATE"
)

// Enforcement is attached to actions that gate release.
type Enforcement string

const (
	EnforcementBlockRelease Enforcement = "BLOCK_RELEASE"
	EnforcementWarn         Enforcement = "WARN"
)

// Action is one effect a Rule produces when its Trigger matches. Fields
// beyond Type/ObjectType/ObjectID are populated according to Type — a
// tagged record rather than an interface, so Decision.id (computed from
// a fixed field set, see pkg/soe) stays stable under refactoring.
type Action struct {
	Type        ActionType  `json:"type"`
	ObjectType  string      `json:"object_type"`
	ObjectID    string      `json:"object_id"`
	Enforcement Enforcement `json:"enforcement,omitempty"`

	// INSERT_STEP payload.
	StepType       string `json:"step_type,omitempty"`
	LockedSequence bool   `json:"locked_sequence,omitempty"`
	SequenceHint   int    `json:"sequence_hint,omitempty"`

	// SET_RETENTION payload.
	RetentionDays int `json:"retention_days,omitempty"`

	// ADD_COST_MODIFIER payload.
	CostDelta    float64 `json:"cost_delta,omitempty"`
	CostCurrency string  `json:"cost_currency,omitempty"`

	// ADD_GATE payload.
	GateID string `json:"gate_id,omitempty"`

	// ESCALATE payload.
	EscalateTo string `json:"escalate_to,omitempty"`
}

// Severity classifies a rule for reporting/triage purposes; it does not
// affect evaluation.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

// Rule is pure data: trigger + actions, cited against a specific clause
// of a specific standard. Evaluation (pkg/ruleexpr.Eval) is deterministic.
type Rule struct {
	RuleID    string          `json:"rule_id"`
	Summary   string          `json:"summary"`
	Citations []string        `json:"citations"`
	Trigger   ruleexpr.Expr   `json:"trigger"`
	Actions   []Action        `json:"actions"`
	Severity  Severity        `json:"severity,omitempty"`
}

// Pack is an ordered collection of rules citing one external standard.
// Rule declaration order within a Pack is part of the determinism
// contract.
type Pack struct {
	PackID   string `json:"pack_id"`
	Industry string `json:"industry"`
	Rules    []Rule `json:"rules"`
}
