package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DatumPlan-specific semantic convention attributes.
var (
	AttrPlanID      = attribute.Key("datumplan.plan.id")
	AttrPlanVersion = attribute.Key("datumplan.plan.version")
	AttrPlanState   = attribute.Key("datumplan.plan.state")

	AttrSOERunID        = attribute.Key("datumplan.soe.run_id")
	AttrIndustryProfile = attribute.Key("datumplan.soe.industry_profile")
	AttrDecisionCount   = attribute.Key("datumplan.soe.decision_count")
	AttrGateBlocked     = attribute.Key("datumplan.soe.gate_blocked")

	AttrProfileID    = attribute.Key("datumplan.profile.id")
	AttrProfileState = attribute.Key("datumplan.profile.state")

	AttrExportFormat      = attribute.Key("datumplan.export.format")
	AttrExportContentHash = attribute.Key("datumplan.export.content_hash")

	AttrComplianceFormat      = attribute.Key("datumplan.compliance.format")
	AttrComplianceFindingCode = attribute.Key("datumplan.compliance.finding_code")
)

// SOEEvaluation creates attributes for an SOE evaluation span.
func SOEEvaluation(runID, industryProfile string, decisionCount int, gateBlocked bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrSOERunID.String(runID),
		AttrIndustryProfile.String(industryProfile),
		AttrDecisionCount.Int(decisionCount),
		AttrGateBlocked.Bool(gateBlocked),
	}
}

// PlanOperation creates attributes for a plan lifecycle operation.
func PlanOperation(planID string, version int, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrPlanID.String(planID),
		AttrPlanVersion.Int(version),
		AttrPlanState.String(state),
	}
}

// ProfileOperation creates attributes for a profile lifecycle operation.
func ProfileOperation(profileID, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProfileID.String(profileID),
		AttrProfileState.String(state),
	}
}

// ExportOperation creates attributes for a plan export.
func ExportOperation(format, contentHash string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrExportFormat.String(format),
		AttrExportContentHash.String(contentHash),
	}
}

// ComplianceOperation creates attributes for a report/integrity check.
func ComplianceOperation(format string, findingCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrComplianceFormat.String(format),
		AttrComplianceFindingCode.Int(findingCount),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records an error, if any, on the current span.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
