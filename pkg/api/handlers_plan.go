package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/auth"
	"github.com/SodiumBank/Datum/pkg/optimize"
	"github.com/SodiumBank/Datum/pkg/plan"
)

func actorFromContext(r *http.Request) (id string, role plan.Role) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		return "system", plan.RoleCustomer
	}
	id = p.GetID()
	for _, role := range p.GetRoles() {
		if role == auth.RoleAdmin {
			return id, plan.RoleAdmin
		}
	}
	roles := p.GetRoles()
	if len(roles) > 0 {
		return id, plan.Role(roles[0])
	}
	return id, plan.RoleCustomer
}

func (s *Server) getPlan(id string) (*plan.DatumPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, apperr.Newf(apperr.CodePlanStateTransitionInvalid, "plan %s does not exist", id)
	}
	return p, nil
}

// putPlan persists a new version through the versioned store's
// single-writer-per-entity optimistic CAS and updates the in-process
// cache.
func (s *Server) putPlan(r *http.Request, p *plan.DatumPlan) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if s.Store != nil {
		if _, err := s.Store.PutNextVersion(r.Context(), "plan", p.PlanID, p.Version-1, data); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.plans[p.PlanID] = p
	s.mu.Unlock()
	return nil
}

type generatePlanRequest struct {
	Quote plan.Quote `json:"quote"`
	RunID string     `json:"soe_run_id"`
}

// handlePlanGenerate implements `POST /plans/generate`: creates a v1
// plan from a quote.
func (s *Server) handlePlanGenerate(w http.ResponseWriter, r *http.Request) {
	var req generatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	s.mu.Lock()
	run := s.runs[req.RunID]
	s.mu.Unlock()

	p, err := plan.GeneratePlan(req.Quote, run, newID())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.putPlan(r, p); err != nil {
		writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

type editPlanRequest struct {
	Edits     plan.EditSet    `json:"edits"`
	Reason    string          `json:"reason"`
	Overrides []plan.Override `json:"overrides"`
}

// handlePlanEdit implements `PATCH /plans/{id}`: opens a new version
// with edits, restricted to OPS/ADMIN.
func (s *Server) handlePlanEdit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	var req editPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	actorID, _ := actorFromContext(r)
	next, err := plan.Edit(p, req.Edits, req.Reason, req.Overrides, actorID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.auditDeny(r.Context(), id, actorID, "OPS", string(p.State), err.Error())
		writeErr(w, r, err)
		return
	}
	if err := s.putPlan(r, next); err != nil {
		writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(next)
}

func (s *Server) handlePlanSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	actorID, _ := actorFromContext(r)
	next, err := plan.Submit(p, "submitted for approval", actorID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.putPlan(r, next); err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(next)
}

func (s *Server) handlePlanApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	actorID, role := actorFromContext(r)
	next, err := plan.Approve(p, "approved", role, actorID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.auditDeny(r.Context(), id, actorID, string(role), string(p.State), err.Error())
		writeErr(w, r, err)
		return
	}
	if err := s.putPlan(r, next); err != nil {
		writeErr(w, r, err)
		return
	}
	if s.AuditLog != nil {
		_ = s.AuditLog.Append(r.Context(), "plan", id, actorID, string(role), string(p.State), string(next.State), "approved", "ok", time.Now())
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(next)
}

func (s *Server) handlePlanReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	actorID, _ := actorFromContext(r)
	next, err := plan.Reject(p, "rejected", actorID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.putPlan(r, next); err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(next)
}

type optimizePlanRequest struct {
	ObjectiveExpr string                `json:"objective_expr"`
	Constraints   []optimize.Constraint `json:"constraints"`
}

// handlePlanOptimize implements `POST /plans/{id}/optimize`: opens a
// new version reordering only its unlocked steps.
func (s *Server) handlePlanOptimize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.getPlan(id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	var req optimizePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}

	objective, err := optimize.NewObjective(req.ObjectiveExpr)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	actorID, _ := actorFromContext(r)
	next, err := optimize.Optimize(p, objective, req.Constraints, actorID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if err := s.putPlan(r, next); err != nil {
		writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(next)
}

// handlePlanVersions implements `GET /plans/{id}/versions`.
func (s *Server) handlePlanVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Store == nil {
		WriteInternal(w, apperr.Newf(apperr.CodeVersionConflict, "no store configured"))
		return
	}
	versions, err := s.Store.ListVersions(r.Context(), "plan", id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	sort.Ints(versions)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(versions)
}

// handlePlanDiff implements `GET /plans/{id}/diff?a=&b=`.
func (s *Server) handlePlanDiff(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.Store == nil {
		WriteInternal(w, apperr.Newf(apperr.CodeVersionConflict, "no store configured"))
		return
	}
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	v1, err := s.loadPlanVersion(r, id, a)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	v2, err := s.loadPlanVersion(r, id, b)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	diff := plan.Diff(v1, v2)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(diff)
}

func (s *Server) loadPlanVersion(r *http.Request, id, versionParam string) (*plan.DatumPlan, error) {
	var version int
	if _, err := json.Unmarshal([]byte(versionParam), &version); err != nil {
		return nil, apperr.Newf(apperr.CodePlanInvalidEdit, "invalid version %q", versionParam)
	}
	data, err := s.Store.Get(r.Context(), "plan", id, version)
	if err != nil {
		return nil, err
	}
	var p plan.DatumPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
