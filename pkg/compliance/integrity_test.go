package compliance

import (
	"testing"

	"github.com/SodiumBank/Datum/pkg/profiles"
)

func TestCheckIntegrity_PassesForWellFormedApprovedPlan(t *testing.T) {
	p, run := approvedPlanWithRun()
	states := map[string]profiles.State{"p-base": profiles.StateApproved}

	report := CheckIntegrity(p, run, states)
	if !report.Passed {
		t.Fatalf("expected a passing report, got findings: %+v", report.Findings)
	}
}

func TestCheckIntegrity_FlagsDeprecatedProfileWithoutFailing(t *testing.T) {
	p, run := approvedPlanWithRun()
	states := map[string]profiles.State{"p-base": profiles.StateDeprecated}

	report := CheckIntegrity(p, run, states)
	if !report.Passed {
		t.Fatal("expected a deprecated-profile finding to not fail the report")
	}
	var found bool
	for _, f := range report.Findings {
		if f.Code == FindingProfileDeprecated {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a PROFILE_DEPRECATED_IN_ACTIVE_ARTIFACT finding")
	}
}

func TestCheckIntegrity_FailsOnDanglingDecisionReference(t *testing.T) {
	p, run := approvedPlanWithRun()
	p.Tests[0].SOEDecisionID = "dec-missing"
	states := map[string]profiles.State{"p-base": profiles.StateApproved}

	report := CheckIntegrity(p, run, states)
	if report.Passed {
		t.Fatal("expected a dangling decision reference to fail the report")
	}
}

func TestCheckIntegrity_FailsOnUnapprovedPlan(t *testing.T) {
	p, run := approvedPlanWithRun()
	p.State = "draft"

	report := CheckIntegrity(p, run, nil)
	if report.Passed {
		t.Fatal("expected a non-approved plan to fail integrity")
	}
}
