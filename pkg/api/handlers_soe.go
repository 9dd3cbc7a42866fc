package api

import (
	"encoding/json"
	"net/http"

	"github.com/SodiumBank/Datum/pkg/ruleexpr"
	"github.com/SodiumBank/Datum/pkg/soe"
)

type soeEvaluateRequest struct {
	IndustryProfile string           `json:"industry_profile"`
	HardwareClass   string           `json:"hardware_class"`
	ActiveProfiles  []string         `json:"active_profiles"`
	ProfileBundleID string           `json:"profile_bundle_id"`
	AdditionalPacks []string         `json:"additional_packs"`
	Inputs          ruleexpr.Context `json:"inputs"`
	AuditReplay     bool             `json:"audit_replay"`
	RequestID       string           `json:"request_id"`
}

// handleSOEEvaluate implements `POST /soe/evaluate`: runs the Standards
// Overlay Engine given a request context. Available to any
// authenticated caller.
func (s *Server) handleSOEEvaluate(w http.ResponseWriter, r *http.Request) {
	var req soeEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	runID := req.RequestID
	if runID == "" {
		runID = newID()
	}

	run, err := soe.Evaluate(r.Context(), soe.Deps{Profiles: s.Profiles, Packs: s.Packs}, soe.Request{
		IndustryProfile: req.IndustryProfile,
		HardwareClass:   req.HardwareClass,
		ActiveProfiles:  req.ActiveProfiles,
		ProfileBundleID: req.ProfileBundleID,
		AdditionalPacks: req.AdditionalPacks,
		Inputs:          req.Inputs,
		AuditReplay:     req.AuditReplay,
	}, runID)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	s.mu.Lock()
	s.runs[run.SOERunID] = run
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(run)
}
