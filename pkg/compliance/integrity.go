package compliance

import (
	"fmt"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/plan"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/soe"
)

// Finding is one failed or noteworthy check surfaced by an audit
// integrity run — a structured report, not a boolean.
type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	FindingMissingProvenance   = "MISSING_PROVENANCE"
	FindingUnresolvableSOERun  = "SOE_RUN_UNRESOLVABLE"
	FindingDanglingDecisionRef = "DANGLING_DECISION_REFERENCE"
	FindingMalformedDecisionID = "MALFORMED_DECISION_ID"
	FindingProfileNotUsable    = "PROFILE_NOT_APPROVED_OR_DEPRECATED"
	FindingProfileDeprecated   = "PROFILE_DEPRECATED_IN_ACTIVE_ARTIFACT"
)

// IntegrityReport is the structured result of an audit integrity
// check. Passed is true iff Findings contains nothing that constitutes
// a hard failure — deprecated-profile findings are informational, not
// failures; export still succeeds but carries the finding.
type IntegrityReport struct {
	PlanID   string    `json:"plan_id"`
	Version  int       `json:"version"`
	Passed   bool      `json:"passed"`
	Findings []Finding `json:"findings"`
}

// decisionIDLength must match pkg/plan's stepIDLength and pkg/soe's
// decision-id length so a content-hash-shape check has something fixed
// to compare against.
const decisionIDLength = 16

// CheckIntegrity verifies: plan approved; provenance
// metadata present; every profile in the run's stack is approved or
// deprecated; soe_run_id resolvable; step-to-decision references
// intact; decision ids have the canonical content-hash shape.
func CheckIntegrity(p *plan.DatumPlan, run *soe.Run, profileStates map[string]profiles.State) *IntegrityReport {
	report := &IntegrityReport{PlanID: p.PlanID, Version: p.Version, Passed: true}

	add := func(code, format string, args ...any) {
		report.Findings = append(report.Findings, Finding{Code: code, Message: fmt.Sprintf(format, args...)})
	}
	fail := func(code, format string, args ...any) {
		add(code, format, args...)
		report.Passed = false
	}

	if p.State != plan.StateApproved {
		fail(string(apperr.CodeAuditIntegrityFailed), "plan %s v%d is not approved", p.PlanID, p.Version)
		return report
	}
	if p.ApprovedBy == "" || p.ApprovedAt == "" {
		fail(FindingMissingProvenance, "plan %s v%d is missing approval provenance (approved_by/approved_at)", p.PlanID, p.Version)
	}

	if p.SOERunID == "" || run == nil || run.SOERunID != p.SOERunID {
		fail(FindingUnresolvableSOERun, "plan %s v%d's soe_run_id %q does not resolve to the supplied run", p.PlanID, p.Version, p.SOERunID)
		return report
	}

	byID := make(map[string]soe.Decision, len(run.Decisions))
	for _, d := range run.Decisions {
		byID[d.ID] = d
		if len(d.ID) != decisionIDLength {
			fail(FindingMalformedDecisionID, "decision %s does not have the canonical %d-char content-hash shape", d.ID, decisionIDLength)
		}
	}

	checkRef := func(id string) {
		if id == "" {
			return
		}
		if _, ok := byID[id]; !ok {
			fail(FindingDanglingDecisionRef, "reference to soe_decision_id %s does not resolve to a decision in run %s", id, run.SOERunID)
		}
	}
	for _, s := range p.Steps {
		checkRef(s.SOEDecisionID)
	}
	for _, t := range p.Tests {
		checkRef(t.SOEDecisionID)
	}
	for _, e := range p.EvidenceIntent {
		checkRef(e.SOEDecisionID)
	}

	for _, entry := range run.ProfileStack {
		state, known := profileStates[entry.ProfileID]
		if !known {
			fail(FindingProfileNotUsable, "profile %s in the active stack has no known lifecycle state", entry.ProfileID)
			continue
		}
		switch state {
		case profiles.StateApproved:
			// fine
		case profiles.StateDeprecated:
			add(FindingProfileDeprecated, "profile %s is deprecated but referenced by an active artifact", entry.ProfileID)
		default:
			fail(FindingProfileNotUsable, "profile %s is in state %s, not approved or deprecated", entry.ProfileID, state)
		}
	}

	return report
}
