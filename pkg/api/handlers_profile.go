package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/profiles"
)

// mutableProfiles returns the registry narrowed to the mutable
// MemoryRegistry, the only Registry implementation that supports
// writes — lifecycle transitions go through it directly rather than
// widening the Registry interface for a capability only the server
// needs, avoiding smuggling write capability into a read-only
// dependency.
func (s *Server) mutableProfiles() (*profiles.MemoryRegistry, error) {
	mr, ok := s.Profiles.(*profiles.MemoryRegistry)
	if !ok {
		return nil, apperr.Newf(apperr.CodeProfileUnusable, "profile registry does not support writes")
	}
	return mr, nil
}

// handleProfileTransition builds a handler for the state-only
// transitions (submit/reject/deprecate) that share the uniform
// func(*StandardsProfile) (*StandardsProfile, error) shape.
func (s *Server) handleProfileTransition(transition func(*profiles.StandardsProfile) (*profiles.StandardsProfile, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		mr, err := s.mutableProfiles()
		if err != nil {
			writeErr(w, r, err)
			return
		}
		p, err := mr.GetProfile(r.Context(), id)
		if err != nil {
			WriteNotFound(w, err.Error())
			return
		}
		next, err := transition(p)
		if err != nil {
			WriteBadRequest(w, err.Error())
			return
		}
		mr.PutProfile(next)

		if s.AuditLog != nil {
			actorID, role := actorFromContext(r)
			_ = s.AuditLog.Append(r.Context(), "profile", id, actorID, string(role), string(p.State), string(next.State), r.URL.Path, "ok", time.Now())
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(next)
	}
}

// handleProfileApprove implements `POST /profiles/{id}/approve`, kept
// separate from handleProfileTransition since profiles.Approve takes
// approver metadata the other transitions don't.
func (s *Server) handleProfileApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mr, err := s.mutableProfiles()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	p, err := mr.GetProfile(r.Context(), id)
	if err != nil {
		WriteNotFound(w, err.Error())
		return
	}
	actorID, role := actorFromContext(r)
	next, err := profiles.Approve(p, actorID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	mr.PutProfile(next)

	if s.AuditLog != nil {
		_ = s.AuditLog.Append(r.Context(), "profile", id, actorID, string(role), string(p.State), string(next.State), "approved", "ok", time.Now())
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(next)
}

// handleProfileVersions implements `GET /profiles/{id}/versions`,
// walking the parent_version chain recorded on each StandardsProfile
// rather than a separate version index, since profile history is a
// linked list of approved drafts.
func (s *Server) handleProfileVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mr, err := s.mutableProfiles()
	if err != nil {
		writeErr(w, r, err)
		return
	}
	p, err := mr.GetProfile(r.Context(), id)
	if err != nil {
		WriteNotFound(w, err.Error())
		return
	}

	versions := []string{p.Version}
	all := mr.AllByID()
	cursor := p
	for cursor.ParentVersion != "" {
		found := false
		for _, candidate := range all {
			if candidate.Version == cursor.ParentVersion && candidate.ProfileID == cursor.ProfileID {
				versions = append(versions, candidate.Version)
				cursor = candidate
				found = true
				break
			}
		}
		if !found {
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versions)
}

type createBundleRequest struct {
	BundleID   string   `json:"bundle_id"`
	ProfileIDs []string `json:"profile_ids"`
	ProgramID  string   `json:"program_id,omitempty"`
}

// handleCreateBundle implements `POST /profiles/bundles`, validating
// that every member profile actually exists and that the resulting
// graph is well-formed before the bundle is published for use by SOE
// evaluations.
func (s *Server) handleCreateBundle(w http.ResponseWriter, r *http.Request) {
	var req createBundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	mr, err := s.mutableProfiles()
	if err != nil {
		writeErr(w, r, err)
		return
	}

	graph, err := profiles.LoadGraph(r.Context(), mr, req.ProfileIDs)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if err := profiles.ValidateGraph(graph); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if req.BundleID == "" {
		req.BundleID = newID()
	}
	bundle := &profiles.Bundle{BundleID: req.BundleID, ProfileIDs: req.ProfileIDs, ProgramID: req.ProgramID}
	mr.PutBundle(bundle)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(bundle)
}
