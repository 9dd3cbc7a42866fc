package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SodiumBank/Datum/pkg/compliance"
	"github.com/SodiumBank/Datum/pkg/export"
	"github.com/SodiumBank/Datum/pkg/profiles"
)

// handleComplianceReport implements `POST /compliance/plans/{id}/reports/generate`.
func (s *Server) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.mu.Lock()
	run := s.runs[p.SOERunID]
	s.mu.Unlock()

	report, err := compliance.GenerateReport(p, run, compliance.FormatHTML, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(report.Body))
}

// handleAuditIntegrity implements `GET /compliance/plans/{id}/audit-integrity`.
func (s *Server) handleAuditIntegrity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	s.mu.Lock()
	run := s.runs[p.SOERunID]
	s.mu.Unlock()

	profileStates := map[string]profiles.State{}
	if run != nil && s.Profiles != nil {
		for _, entry := range run.ProfileStack {
			if prof, err := s.Profiles.GetProfile(r.Context(), entry.ProfileID); err == nil {
				profileStates[entry.ProfileID] = prof.State
			}
		}
	}

	report := compliance.CheckIntegrity(p, run, profileStates)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

type exportRequest struct {
	IncludeExecutionOutputs bool     `json:"include_execution_outputs"`
	ProfileStack            []string `json:"profile_stack"`
}

// handlePlanExport implements `GET /plans/{id}/export/{format}`.
func (s *Server) handlePlanExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	format := r.PathValue("format")

	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var req exportRequest
	req.IncludeExecutionOutputs = r.URL.Query().Get("include_execution_outputs") == "true"

	result, err := export.Export(p, export.Request{
		Format:                  export.Format(format),
		IncludeExecutionOutputs: req.IncludeExecutionOutputs,
		ProfileStack:            req.ProfileStack,
		ExportGeneratedAt:       time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}

	if s.AuditLog != nil {
		actorID, role := actorFromContext(r)
		_ = s.AuditLog.Append(r.Context(), "plan", id, actorID, string(role), string(p.State), string(p.State), "export:"+format, "ok", time.Now())
	}

	if s.ExportSink != nil {
		if key, putErr := s.ExportSink.Put(r.Context(), id, result); putErr != nil {
			s.Logger.Warn("export sink put failed", "plan_id", id, "error", putErr)
		} else {
			w.Header().Set("X-Export-Sink-Key", key)
		}
	}

	switch export.Format(format) {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("X-Content-Hash", result.ContentHash)
	_, _ = w.Write(result.Bytes)
}
