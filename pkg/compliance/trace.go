// Package compliance implements Compliance Trace & Report: a per-item
// traceability mapping from an approved plan's steps/tests/evidence
// back to the rule, pack, and profile layer that produced them, and a
// pure nine-section HTML report renderer over that trace, rendered via
// html/template and hashed for integrity.
package compliance

import (
	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/plan"
	"github.com/SodiumBank/Datum/pkg/soe"
)

// Trace is one item's traceability record: {rule_id, pack_id,
// citations[], profile_source, decision_id}.
type Trace struct {
	ItemKind      string             `json:"item_kind"` // step | test | evidence
	ItemID        string             `json:"item_id"`
	RuleID        string             `json:"rule_id"`
	PackID        string             `json:"pack_id"`
	Citations     []string           `json:"citations,omitempty"`
	ProfileSource *soe.ProfileSource `json:"profile_source,omitempty"`
	DecisionID    string             `json:"decision_id"`
}

// BuildTraces derives the full per-item trace set for p against the SOE
// run that produced it. Items with no soe_decision_id (freely-added,
// non-SOE items) are skipped — they have nothing to trace to.
func BuildTraces(p *plan.DatumPlan, run *soe.Run) []Trace {
	byID := make(map[string]soe.Decision, len(run.Decisions))
	for _, d := range run.Decisions {
		byID[d.ID] = d
	}

	var traces []Trace
	for _, s := range p.Steps {
		if s.SOEDecisionID == "" {
			continue
		}
		if t, ok := traceFor("step", s.StepID, s.SOEDecisionID, byID); ok {
			traces = append(traces, t)
		}
	}
	for _, tst := range p.Tests {
		if tst.SOEDecisionID == "" {
			continue
		}
		if t, ok := traceFor("test", tst.TestID, tst.SOEDecisionID, byID); ok {
			traces = append(traces, t)
		}
	}
	for _, ev := range p.EvidenceIntent {
		if ev.SOEDecisionID == "" {
			continue
		}
		if t, ok := traceFor("evidence", ev.EvidenceType, ev.SOEDecisionID, byID); ok {
			traces = append(traces, t)
		}
	}
	return traces
}

func traceFor(kind, itemID, decisionID string, byID map[string]soe.Decision) (Trace, bool) {
	d, ok := byID[decisionID]
	if !ok {
		return Trace{}, false
	}
	return Trace{
		ItemKind:      kind,
		ItemID:        itemID,
		RuleID:        d.Why.RuleID,
		PackID:        d.Why.PackID,
		Citations:     d.Why.Citations,
		ProfileSource: d.ProfileSource,
		DecisionID:    d.ID,
	}, true
}

// ensureApproved refuses to render when plan state != approved. It is
// used by GenerateReport; CheckIntegrity performs its own approval
// check and reports it as a finding instead.
func ensureApproved(p *plan.DatumPlan) error {
	if p.State != plan.StateApproved {
		return apperr.Newf(apperr.CodeExportRequiresApproval,
			"plan %s v%d is not approved; compliance artifacts require an approved version", p.PlanID, p.Version)
	}
	return nil
}
