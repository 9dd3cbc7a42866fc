package compliance

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/canonicalize"
	"github.com/SodiumBank/Datum/pkg/plan"
	"github.com/SodiumBank/Datum/pkg/soe"
)

// Format is the compliance report's output format contract — only
// html is supported.
type Format string

const FormatHTML Format = "html"

// Report is the rendered nine-section compliance artifact: Executive
// Summary, Scope, Standards Coverage, Compliance Traceability,
// Deviations & Overrides, Approvals Trail, Profile Stack, Evidence
// Requirements, Audit Metadata.
type Report struct {
	PlanID      string `json:"plan_id"`
	PlanVersion int    `json:"plan_version"`
	Format      Format `json:"format"`
	Body        string `json:"body"`
	ReportHash  string `json:"report_hash"`
}

// deviation is one plan override surfaced under the "Deviations &
// Overrides" section. Conflict-policy resolutions from the SOE run
// (PARENT_WINS/CHILD_WINS) are not listed here.
type deviation struct {
	Constraint string
	Reason     string
	UserID     string
	Timestamp  string
}

type reportData struct {
	Plan         *plan.DatumPlan
	Run          *soe.Run
	ProfileStack []soe.ProfileStackEntry
	Traces       []Trace
	Deviations   []deviation
	GeneratedAt  string
}

// GenerateReport renders the nine-section compliance report for an
// approved plan. Only FormatHTML is accepted; any other
// format is rejected with UNSUPPORTED_FORMAT and no silent fallback.
// The renderer is a pure function of its inputs: report_hash is the
// SHA-256 of the canonicalized body bytes, so identical inputs always
// produce an identical hash.
func GenerateReport(p *plan.DatumPlan, run *soe.Run, format Format, generatedAt string) (*Report, error) {
	if format != FormatHTML {
		return nil, apperr.Newf(apperr.CodeUnsupportedFormat,
			"compliance report format %q is not supported; only %q is", format, FormatHTML)
	}
	if err := ensureApproved(p); err != nil {
		return nil, err
	}

	data := reportData{
		Plan:         p,
		Run:          run,
		ProfileStack: run.ProfileStack,
		Traces:       BuildTraces(p, run),
		Deviations:   collectDeviations(p),
		GeneratedAt:  generatedAt,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("compliance: render report: %w", err)
	}
	body := buf.String()

	hash, err := canonicalize.CanonicalHash(body)
	if err != nil {
		return nil, fmt.Errorf("compliance: hash report body: %w", err)
	}

	return &Report{
		PlanID:      p.PlanID,
		PlanVersion: p.Version,
		Format:      format,
		Body:        body,
		ReportHash:  hash,
	}, nil
}

// collectDeviations surfaces every override recorded against the plan's
// edit history — the "Deviations & Overrides" section's source of
// truth.
func collectDeviations(p *plan.DatumPlan) []deviation {
	if p.EditMetadata == nil {
		return nil
	}
	out := make([]deviation, 0, len(p.EditMetadata.Overrides))
	for _, o := range p.EditMetadata.Overrides {
		out = append(out, deviation{
			Constraint: o.Constraint,
			Reason:     o.Reason,
			UserID:     o.UserID,
			Timestamp:  o.Timestamp,
		})
	}
	return out
}

var reportTemplate = template.Must(template.New("compliance-report").Parse(`<!DOCTYPE html>
<html>
<head><title>Compliance Report — {{.Plan.PlanID}} v{{.Plan.Version}}</title></head>
<body>
<h1>Compliance Report</h1>

<h2>1. Executive Summary</h2>
<p>Plan {{.Plan.PlanID}} version {{.Plan.Version}}, state {{.Plan.State}}, generated {{.GeneratedAt}}.</p>

<h2>2. Scope</h2>
<p>Quote {{.Plan.QuoteID}}, industry profile {{.Run.IndustryProfile}}{{if .Run.HardwareClass}}, hardware class {{.Run.HardwareClass}}{{end}}.</p>

<h2>3. Standards Coverage</h2>
<ul>
{{range .Run.ActivePacks}}<li>{{.}}</li>
{{end}}
</ul>

<h2>4. Compliance Traceability</h2>
<table border="1">
<tr><th>Item</th><th>Kind</th><th>Rule</th><th>Pack</th><th>Citations</th><th>Profile Source</th><th>Decision</th></tr>
{{range .Traces}}<tr>
<td>{{.ItemID}}</td><td>{{.ItemKind}}</td><td>{{.RuleID}}</td><td>{{.PackID}}</td>
<td>{{range .Citations}}{{.}} {{end}}</td>
<td>{{if .ProfileSource}}{{.ProfileSource.ProfileID}} (layer {{.ProfileSource.Layer}}){{end}}</td>
<td>{{.DecisionID}}</td>
</tr>
{{end}}
</table>

<h2>5. Deviations &amp; Overrides</h2>
{{if .Deviations}}<table border="1">
<tr><th>Constraint</th><th>Reason</th><th>User</th><th>Timestamp</th></tr>
{{range .Deviations}}<tr><td>{{.Constraint}}</td><td>{{.Reason}}</td><td>{{.UserID}}</td><td>{{.Timestamp}}</td></tr>
{{end}}
</table>{{else}}<p>None.</p>{{end}}

<h2>6. Approvals Trail</h2>
<p>Approved by {{.Plan.ApprovedBy}} at {{.Plan.ApprovedAt}}.</p>

<h2>7. Profile Stack</h2>
<table border="1">
<tr><th>Profile</th><th>Type</th><th>Layer</th></tr>
{{range .ProfileStack}}<tr><td>{{.ProfileID}}</td><td>{{.ProfileType}}</td><td>{{.Layer}}</td></tr>
{{end}}
</table>

<h2>8. Evidence Requirements</h2>
<ul>
{{range .Plan.EvidenceIntent}}<li>{{.EvidenceType}}{{if .RetentionDays}} (retain {{.RetentionDays}}d){{end}}</li>
{{end}}
</ul>

<h2>9. Audit Metadata</h2>
<p>soe_run_id: {{.Run.SOERunID}}{{if .Run.AuditReplay}} (audit replay){{end}}</p>
</body>
</html>
`))
