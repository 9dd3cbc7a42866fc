// Package export implements Hardened Export (the audit integrity check
// lives in pkg/compliance):
// rendering an approved plan to csv/json/placement_csv with a
// provenance/content_hash envelope, tier gating for exports that carry
// execution outputs, and an optional content-addressed S3 sink.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/canonicalize"
	"github.com/SodiumBank/Datum/pkg/plan"
)

// Format is the export's requested rendering: csv, json, or
// placement_csv.
type Format string

const (
	FormatCSV          Format = "csv"
	FormatJSON         Format = "json"
	FormatPlacementCSV Format = "placement_csv"
)

// minExportTier is the tier required for exports that include execution
// outputs.
const minExportTier = 3

// Provenance is embedded in a JSON export: plan_version, profile_stack,
// approved_by, approved_at, export_generated_at.
type Provenance struct {
	PlanVersion       int      `json:"plan_version"`
	ProfileStack      []string `json:"profile_stack"`
	ApprovedBy        string   `json:"approved_by"`
	ApprovedAt        string   `json:"approved_at"`
	ExportGeneratedAt string   `json:"export_generated_at"`
}

// JSONExport is the hardened JSON export envelope.
type JSONExport struct {
	PlanID      string      `json:"plan_id"`
	Steps       []plan.Step `json:"steps"`
	Tests       []plan.Test `json:"tests,omitempty"`
	Provenance  Provenance  `json:"provenance"`
	ContentHash string      `json:"content_hash"`
}

// Result is the rendered export artifact plus its content_hash.
type Result struct {
	Format      Format
	Bytes       []byte
	ContentHash string
}

// Request selects an export's format and provenance inputs;
// IncludeExecutionOutputs marks a request that carries execution-result
// data, which requires tier>=3.
type Request struct {
	Format                  Format
	IncludeExecutionOutputs bool
	ProfileStack            []string
	ExportGeneratedAt       string
}

// Export renders p per req.Format, refusing an unapproved plan or a
// tier-insufficient request for execution outputs.
func Export(p *plan.DatumPlan, req Request) (*Result, error) {
	if p.State != plan.StateApproved {
		return nil, apperr.Newf(apperr.CodeExportRequiresApproval,
			"plan %s v%d is not approved; export is refused", p.PlanID, p.Version)
	}
	if req.IncludeExecutionOutputs && p.Tier < minExportTier {
		return nil, apperr.Newf(apperr.CodeTierInsufficient,
			"plan %s tier %d cannot export execution outputs (requires tier >= %d)", p.PlanID, p.Tier, minExportTier)
	}

	switch req.Format {
	case FormatJSON:
		return exportJSON(p, req)
	case FormatCSV:
		return exportCSV(p)
	case FormatPlacementCSV:
		return exportPlacementCSV(p)
	default:
		return nil, apperr.Newf(apperr.CodeUnsupportedFormat, "export format %q is not supported", req.Format)
	}
}

func exportJSON(p *plan.DatumPlan, req Request) (*Result, error) {
	bodyWithoutHash := JSONExport{
		PlanID: p.PlanID,
		Steps:  p.Steps,
		Tests:  p.Tests,
		Provenance: Provenance{
			PlanVersion:       p.Version,
			ProfileStack:      req.ProfileStack,
			ApprovedBy:        p.ApprovedBy,
			ApprovedAt:        p.ApprovedAt,
			ExportGeneratedAt: req.ExportGeneratedAt,
		},
	}

	// content_hash = SHA-256(canonical(content_without_hash)) — hashed
	// before ContentHash is populated on the struct so the hash never
	// includes itself.
	hash, err := canonicalize.CanonicalHash(bodyWithoutHash)
	if err != nil {
		return nil, fmt.Errorf("export: hash content: %w", err)
	}

	final := bodyWithoutHash
	final.ContentHash = hash
	out, err := json.Marshal(final)
	if err != nil {
		return nil, fmt.Errorf("export: marshal json export: %w", err)
	}
	return &Result{Format: FormatJSON, Bytes: out, ContentHash: hash}, nil
}

func exportCSV(p *plan.DatumPlan) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"step_id", "sequence", "type", "required", "locked_sequence", "source_rules"}); err != nil {
		return nil, fmt.Errorf("export: write csv header: %w", err)
	}
	for _, s := range p.Steps {
		record := []string{
			s.StepID,
			fmt.Sprintf("%d", s.Sequence),
			s.Type,
			fmt.Sprintf("%t", s.Required),
			fmt.Sprintf("%t", s.LockedSequence),
			fmt.Sprintf("%v", s.SourceRules),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush csv: %w", err)
	}

	data := buf.Bytes()
	return &Result{Format: FormatCSV, Bytes: data, ContentHash: canonicalize.HashBytes(data)}, nil
}

// exportPlacementCSV renders a placement-oriented view: one row per
// step carrying a "placement" parameter — pick-and-place / fixture
// placement steps only.
func exportPlacementCSV(p *plan.DatumPlan) (*Result, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"step_id", "sequence", "type", "placement"}); err != nil {
		return nil, fmt.Errorf("export: write placement csv header: %w", err)
	}
	for _, s := range p.Steps {
		placement, ok := s.Parameters["placement"]
		if !ok {
			continue
		}
		if err := w.Write([]string{s.StepID, fmt.Sprintf("%d", s.Sequence), s.Type, fmt.Sprintf("%v", placement)}); err != nil {
			return nil, fmt.Errorf("export: write placement csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush placement csv: %w", err)
	}

	data := buf.Bytes()
	return &Result{Format: FormatPlacementCSV, Bytes: data, ContentHash: canonicalize.HashBytes(data)}, nil
}

// S3Sink persists a hardened export to S3, keyed by content hash and
// carrying content_hash and plan id as object metadata; the provenance
// envelope is not copied into metadata.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Sink wraps an already-configured S3 client; see
// awsconfig.LoadDefaultConfig in cmd/datumplan/main.go for how one
// gets constructed.
func NewS3Sink(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads result under a content-addressed key and attaches the
// content hash and plan id as S3 object metadata.
func (s *S3Sink) Put(ctx context.Context, planID string, result *Result) (string, error) {
	key := fmt.Sprintf("%sexports/%s/%s.%s", s.prefix, planID, result.ContentHash, result.Format)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(result.Bytes),
		Metadata: map[string]string{
			"content-hash": result.ContentHash,
			"plan-id":      planID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("export: s3 put: %w", err)
	}
	return key, nil
}
