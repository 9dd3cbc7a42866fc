// Package profiles implements the StandardsProfile/IndustryProfile/
// ProfileBundle data model and their governed lifecycle — the same
// draft→submitted→approved/rejected→deprecated discipline applied to
// the profiles that gate an SOE run, so that "what the auditor sees"
// cannot silently change under production plans.
package profiles

// ProfileType constrains how a StandardsProfile may be layered.
type ProfileType string

const (
	TypeBase             ProfileType = "BASE"
	TypeDomain           ProfileType = "DOMAIN"
	TypeCustomerOverride ProfileType = "CUSTOMER_OVERRIDE"
)

// Layer is the semantic layer constant used for profile_source tagging
// in pkg/soe — never the index into a resolved list.
type Layer int

const (
	LayerBase             Layer = 0
	LayerDomain           Layer = 1
	LayerCustomerOverride Layer = 2
)

func (t ProfileType) Layer() Layer {
	switch t {
	case TypeDomain:
		return LayerDomain
	case TypeCustomerOverride:
		return LayerCustomerOverride
	default:
		return LayerBase
	}
}

// OverrideMode governs how a profile's packs compose with its parents'.
type OverrideMode string

const (
	OverrideStrict   OverrideMode = "STRICT"
	OverrideAdditive OverrideMode = "ADDITIVE"
	OverrideReplace  OverrideMode = "REPLACE"
)

// ConflictPolicy governs how contradictory decisions on the same object
// are resolved when two profiles in the stack disagree.
type ConflictPolicy string

const (
	ConflictError      ConflictPolicy = "ERROR"
	ConflictParentWins ConflictPolicy = "PARENT_WINS"
	ConflictChildWins  ConflictPolicy = "CHILD_WINS"
)

// State is the profile lifecycle state. Mirrors the plan
// lifecycle in pkg/plan but adds a terminal `deprecated` state reachable
// only from `approved`.
type State string

const (
	StateDraft      State = "draft"
	StateSubmitted  State = "submitted"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateDeprecated State = "deprecated"
)

// StandardsProfile is a typed, layered bundle of default packs plus
// override/conflict policy. An approved version is
// immutable except for the single forward transition to deprecated.
type StandardsProfile struct {
	ProfileID        string         `json:"profile_id"`
	ProfileType      ProfileType    `json:"profile_type"`
	ParentProfileIDs []string       `json:"parent_profile_ids,omitempty"`
	DefaultPacks     []string       `json:"default_packs"`
	OverrideMode     OverrideMode   `json:"override_mode"`
	ConflictPolicy   ConflictPolicy `json:"conflict_policy"`
	State            State          `json:"state"`
	Version          string         `json:"version"` // semver X.Y.Z
	ParentVersion    string         `json:"parent_version,omitempty"`

	ApprovedBy string `json:"approved_by,omitempty"`
	ApprovedAt string `json:"approved_at,omitempty"` // RFC3339; set on approval
}

// IndustryProfile is a read-only catalog entry describing the defaults
// applied when a caller supplies no explicit profile stack.
type IndustryProfile struct {
	IndustryID        string   `json:"industry_id"`
	DefaultPacks      []string `json:"default_packs"`
	RiskPosture       string   `json:"risk_posture"`
	TraceabilityDepth string   `json:"traceability_depth"`
	EvidenceRetention int      `json:"evidence_retention"` // days
}

// Bundle is a named set of profile ids — never a copy of profile
// content — optionally scoped to a program/customer/contract.
type Bundle struct {
	BundleID   string   `json:"bundle_id"`
	ProfileIDs []string `json:"profile_ids"`
	ProgramID  string   `json:"program_id,omitempty"`
	CustomerID string   `json:"customer_id,omitempty"`
	ContractID string   `json:"contract_id,omitempty"`
}
