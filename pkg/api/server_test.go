package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SodiumBank/Datum/pkg/auth"
	"github.com/SodiumBank/Datum/pkg/plan"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/standards"
)

func newTestServer(t *testing.T) (*Server, *http.ServeMux) {
	t.Helper()
	packs, err := standards.NewMemoryRegistry()
	if err != nil {
		t.Fatalf("new standards registry: %v", err)
	}
	srv := NewServer(nil, profiles.NewMemoryRegistry(), packs, nil, nil)
	mux := http.NewServeMux()
	srv.Routes(mux)
	return srv, mux
}

func withAdmin(r *http.Request) *http.Request {
	p := &auth.BasePrincipal{ID: "tester", Roles: []auth.Role{auth.RoleAdmin}}
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

func TestHandleHealth(t *testing.T) {
	_, mux := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandlePlanGenerate_CreatesDraftPlan(t *testing.T) {
	_, mux := newTestServer(t)

	body, _ := json.Marshal(generatePlanRequest{
		Quote: plan.Quote{QuoteID: "q-1", Tier: 2, Processes: []string{"cnc_mill"}},
	})
	req := withAdmin(httptest.NewRequest(http.MethodPost, "/plans/generate", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var p plan.DatumPlan
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if p.State != plan.StateDraft {
		t.Fatalf("expected draft state, got %s", p.State)
	}
	if p.Version != 1 {
		t.Fatalf("expected version 1, got %d", p.Version)
	}
}

func generatedPlan(t *testing.T, srv *Server, mux *http.ServeMux) *plan.DatumPlan {
	t.Helper()
	body, _ := json.Marshal(generatePlanRequest{
		Quote: plan.Quote{QuoteID: "q-1", Tier: 3, Processes: []string{"cnc_mill"}},
	})
	req := withAdmin(httptest.NewRequest(http.MethodPost, "/plans/generate", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate failed: %d: %s", rec.Code, rec.Body.String())
	}
	var p plan.DatumPlan
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return &p
}

func TestHandlePlanSubmitApprove_HappyPath(t *testing.T) {
	srv, mux := newTestServer(t)
	p := generatedPlan(t, srv, mux)

	submitReq := withAdmin(httptest.NewRequest(http.MethodPost, "/plans/"+p.PlanID+"/submit", nil))
	submitRec := httptest.NewRecorder()
	mux.ServeHTTP(submitRec, submitReq)
	if submitRec.Code != http.StatusOK {
		t.Fatalf("submit failed: %d: %s", submitRec.Code, submitRec.Body.String())
	}

	approveReq := withAdmin(httptest.NewRequest(http.MethodPost, "/plans/"+p.PlanID+"/approve", nil))
	approveRec := httptest.NewRecorder()
	mux.ServeHTTP(approveRec, approveReq)
	if approveRec.Code != http.StatusOK {
		t.Fatalf("approve failed: %d: %s", approveRec.Code, approveRec.Body.String())
	}

	var approved plan.DatumPlan
	if err := json.Unmarshal(approveRec.Body.Bytes(), &approved); err != nil {
		t.Fatalf("decode approved plan: %v", err)
	}
	if approved.State != plan.StateApproved {
		t.Fatalf("expected approved state, got %s", approved.State)
	}
}

func TestHandlePlanApprove_RejectsDraftPlan(t *testing.T) {
	srv, mux := newTestServer(t)
	p := generatedPlan(t, srv, mux)

	approveReq := withAdmin(httptest.NewRequest(http.MethodPost, "/plans/"+p.PlanID+"/approve", nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, approveReq)

	if rec.Code != http.StatusConflict && rec.Code != http.StatusBadRequest && rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected an error status for approving a draft plan, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePlanExport_RejectsUnapprovedPlan(t *testing.T) {
	srv, mux := newTestServer(t)
	p := generatedPlan(t, srv, mux)

	req := withAdmin(httptest.NewRequest(http.MethodGet, "/plans/"+p.PlanID+"/export/json", nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected export of an unapproved plan to be rejected, got 200: %s", rec.Body.String())
	}
}

func TestHandleCreateBundle_RejectsUnknownProfile(t *testing.T) {
	_, mux := newTestServer(t)

	body, _ := json.Marshal(createBundleRequest{BundleID: "b-1", ProfileIDs: []string{"does-not-exist"}})
	req := withAdmin(httptest.NewRequest(http.MethodPost, "/profiles/bundles", bytes.NewReader(body)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusCreated {
		t.Fatalf("expected bundle creation to fail for an unknown profile, got 201")
	}
}

func TestHandleProfileTransition_SubmitThenApprove(t *testing.T) {
	srv, mux := newTestServer(t)
	mr := srv.Profiles.(*profiles.MemoryRegistry)
	mr.PutProfile(&profiles.StandardsProfile{
		ProfileID:    "p-1",
		ProfileType:  profiles.TypeBase,
		DefaultPacks: []string{"pack-a"},
		State:        profiles.StateDraft,
		Version:      "1.0.0",
	})

	submitReq := withAdmin(httptest.NewRequest(http.MethodPost, "/profiles/p-1/submit", nil))
	submitRec := httptest.NewRecorder()
	mux.ServeHTTP(submitRec, submitReq)
	if submitRec.Code != http.StatusOK {
		t.Fatalf("submit failed: %d: %s", submitRec.Code, submitRec.Body.String())
	}

	approveReq := withAdmin(httptest.NewRequest(http.MethodPost, "/profiles/p-1/approve", nil))
	approveRec := httptest.NewRecorder()
	mux.ServeHTTP(approveRec, approveReq)
	if approveRec.Code != http.StatusOK {
		t.Fatalf("approve failed: %d: %s", approveRec.Code, approveRec.Body.String())
	}

	var approved profiles.StandardsProfile
	if err := json.Unmarshal(approveRec.Body.Bytes(), &approved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if approved.State != profiles.StateApproved {
		t.Fatalf("expected approved state, got %s", approved.State)
	}
}
