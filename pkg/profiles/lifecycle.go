package profiles

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Usable reports whether a profile's state is acceptable for use in an
// SOE run. A deprecated
// profile is usable only in explicit audit-replay mode.
func Usable(p *StandardsProfile, auditReplay bool) bool {
	switch p.State {
	case StateApproved:
		return true
	case StateDeprecated:
		return auditReplay
	default:
		return false
	}
}

// Submit transitions draft -> submitted.
func Submit(p *StandardsProfile) (*StandardsProfile, error) {
	if p.State != StateDraft {
		return nil, fmt.Errorf("profiles: cannot submit profile %s from state %s", p.ProfileID, p.State)
	}
	next := *p
	next.State = StateSubmitted
	return &next, nil
}

// Approve transitions submitted -> approved, stamping approver metadata.
func Approve(p *StandardsProfile, approvedBy, approvedAt string) (*StandardsProfile, error) {
	if p.State != StateSubmitted {
		return nil, fmt.Errorf("profiles: cannot approve profile %s from state %s", p.ProfileID, p.State)
	}
	next := *p
	next.State = StateApproved
	next.ApprovedBy = approvedBy
	next.ApprovedAt = approvedAt
	return &next, nil
}

// Reject transitions submitted -> rejected.
func Reject(p *StandardsProfile) (*StandardsProfile, error) {
	if p.State != StateSubmitted {
		return nil, fmt.Errorf("profiles: cannot reject profile %s from state %s", p.ProfileID, p.State)
	}
	next := *p
	next.State = StateRejected
	return &next, nil
}

// Deprecate is the only transition permitted out of approved — a
// profile's state cannot move back from approved except forward to
// deprecated.
func Deprecate(p *StandardsProfile) (*StandardsProfile, error) {
	if p.State != StateApproved {
		return nil, fmt.Errorf("profiles: cannot deprecate profile %s from state %s (must be approved)", p.ProfileID, p.State)
	}
	next := *p
	next.State = StateDeprecated
	return &next, nil
}

// BumpKind selects which semver component a new draft version increments.
type BumpKind string

const (
	BumpMajor BumpKind = "major"
	BumpMinor BumpKind = "minor"
	BumpPatch BumpKind = "patch"
)

// NewDraftVersion clones an approved profile into a new draft, bumping
// its semver and recording parent_version — the profile analogue of
// forking a new plan draft from an approved ancestor.
func NewDraftVersion(p *StandardsProfile, bump BumpKind) (*StandardsProfile, error) {
	if p.State != StateApproved {
		return nil, fmt.Errorf("profiles: cannot fork a new version of %s from state %s (must be approved)", p.ProfileID, p.State)
	}

	cur, err := semver.NewVersion(p.Version)
	if err != nil {
		return nil, fmt.Errorf("profiles: parse version %q: %w", p.Version, err)
	}

	var next semver.Version
	switch bump {
	case BumpMajor:
		next = cur.IncMajor()
	case BumpMinor:
		next = cur.IncMinor()
	case BumpPatch:
		next = cur.IncPatch()
	default:
		return nil, fmt.Errorf("profiles: unknown bump kind %q", bump)
	}

	draft := *p
	draft.ParentVersion = p.Version
	draft.Version = next.String()
	draft.State = StateDraft
	draft.ApprovedBy = ""
	draft.ApprovedAt = ""
	return &draft, nil
}

// SatisfiesConstraint reports whether a profile's version satisfies a
// semver constraint string (e.g. a bundle pinning ">=2.1.0"), used when
// resolving bundles that pin minimum profile versions.
func SatisfiesConstraint(p *StandardsProfile, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("profiles: invalid constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return false, fmt.Errorf("profiles: parse version %q: %w", p.Version, err)
	}
	return c.Check(v), nil
}
