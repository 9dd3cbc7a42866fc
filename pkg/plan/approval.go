package plan

import "github.com/SodiumBank/Datum/pkg/apperr"

// Role is the caller role an approval is checked against; only OPS and
// ADMIN may approve a plan.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleOps      Role = "OPS"
	RoleQA       Role = "QA"
	RoleAdmin    Role = "ADMIN"
)

func canApprove(r Role) bool {
	return r == RoleOps || r == RoleAdmin
}

// Submit transitions draft -> submitted.
func Submit(p *DatumPlan, reason, editedBy, editedAt string) (*DatumPlan, error) {
	if p.State != StateDraft {
		return nil, apperr.Newf(apperr.CodePlanStateTransitionInvalid,
			"cannot submit plan %s v%d from state %s", p.PlanID, p.Version, p.State)
	}
	next := clone(p)
	next.State = StateSubmitted
	next.EditMetadata = &EditMetadata{EditedBy: editedBy, EditedAt: editedAt, EditReason: reason}
	return next, nil
}

// Approve transitions submitted -> approved, locking the plan. Only
// OPS or ADMIN roles may approve.
func Approve(p *DatumPlan, reason string, role Role, approvedBy, approvedAt string) (*DatumPlan, error) {
	if p.State != StateSubmitted {
		return nil, apperr.Newf(apperr.CodePlanStateTransitionInvalid,
			"cannot approve plan %s v%d from state %s", p.PlanID, p.Version, p.State)
	}
	if !canApprove(role) {
		return nil, apperr.Newf(apperr.CodePlanStateTransitionInvalid,
			"role %s is not permitted to approve plans", role)
	}
	next := clone(p)
	next.State = StateApproved
	next.Locked = true
	next.ApprovedBy = approvedBy
	next.ApprovedAt = approvedAt
	next.EditMetadata = &EditMetadata{EditedBy: approvedBy, EditedAt: approvedAt, EditReason: reason}
	return next, nil
}

// Reject transitions submitted -> draft, staying on the same plan id
// and version; the rejection is recorded in edit metadata. Locked
// stays false.
func Reject(p *DatumPlan, reason, rejectedBy, rejectedAt string) (*DatumPlan, error) {
	if p.State != StateSubmitted {
		return nil, apperr.Newf(apperr.CodePlanStateTransitionInvalid,
			"cannot reject plan %s v%d from state %s", p.PlanID, p.Version, p.State)
	}
	next := clone(p)
	next.State = StateDraft
	next.Locked = false
	next.EditMetadata = &EditMetadata{EditedBy: rejectedBy, EditedAt: rejectedAt, EditReason: reason}
	return next, nil
}

// EnsureEditable returns PLAN_APPROVED_IMMUTABLE if p cannot be edited
// in place — an approved plan must be forked into a new draft version
// instead.
func EnsureEditable(p *DatumPlan) error {
	if p.State == StateApproved {
		return apperr.Newf(apperr.CodePlanApprovedImmutable,
			"plan %s v%d is approved and immutable; open a new version", p.PlanID, p.Version)
	}
	if p.State != StateDraft {
		return apperr.Newf(apperr.CodePlanStateTransitionInvalid,
			"plan %s v%d is not editable from state %s", p.PlanID, p.Version, p.State)
	}
	return nil
}

// ForkFromApproved opens a new draft version (N+1) from an approved
// ancestor, clearing approval stamps and lock state — the caller must
// open a new version from the approved ancestor, which starts in
// draft.
func ForkFromApproved(p *DatumPlan) (*DatumPlan, error) {
	if p.State != StateApproved {
		return nil, apperr.Newf(apperr.CodePlanStateTransitionInvalid,
			"cannot fork plan %s v%d from state %s (must be approved)", p.PlanID, p.Version, p.State)
	}
	next := clone(p)
	next.Version = p.Version + 1
	next.ParentVersion = p.Version
	next.State = StateDraft
	next.Locked = false
	next.ApprovedBy = ""
	next.ApprovedAt = ""
	next.EditMetadata = nil
	return next, nil
}

func clone(p *DatumPlan) *DatumPlan {
	n := *p
	n.Steps = append([]Step(nil), p.Steps...)
	n.Tests = append([]Test(nil), p.Tests...)
	n.EvidenceIntent = append([]EvidenceIntent(nil), p.EvidenceIntent...)
	n.SOEDecisionIDs = append([]string(nil), p.SOEDecisionIDs...)
	return &n
}
