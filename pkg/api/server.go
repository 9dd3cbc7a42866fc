package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SodiumBank/Datum/pkg/apperr"
	"github.com/SodiumBank/Datum/pkg/export"
	"github.com/SodiumBank/Datum/pkg/plan"
	"github.com/SodiumBank/Datum/pkg/profiles"
	"github.com/SodiumBank/Datum/pkg/soe"
	"github.com/SodiumBank/Datum/pkg/standards"
	"github.com/SodiumBank/Datum/pkg/store"
)

// ExportSink persists a hardened export alongside the response bytes
// returned to the caller — satisfied by *export.S3Sink in production,
// left nil (skipped) when no bucket is configured.
type ExportSink interface {
	Put(ctx context.Context, planID string, result *export.Result) (string, error)
}

// Server holds every dependency the HTTP surface needs, injected
// explicitly rather than reached for as package globals — the same
// no-hidden-globals discipline the core packages follow, carried
// through to the transport layer.
type Server struct {
	Logger     *slog.Logger
	Profiles   profiles.Registry
	Packs      standards.Registry
	Store      store.VersionedStore
	AuditLog   store.AuditLog
	ExportSink ExportSink

	mu    sync.Mutex
	plans map[string]*plan.DatumPlan
	runs  map[string]*soe.Run
}

func NewServer(logger *slog.Logger, profilesReg profiles.Registry, packsReg standards.Registry, st store.VersionedStore, auditLog store.AuditLog) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Logger:   logger,
		Profiles: profilesReg,
		Packs:    packsReg,
		Store:    st,
		AuditLog: auditLog,
		plans:    make(map[string]*plan.DatumPlan),
		runs:     make(map[string]*soe.Run),
	}
}

// WithExportSink attaches an export persistence sink, returning s for
// chaining in main's wiring.
func (s *Server) WithExportSink(sink ExportSink) *Server {
	s.ExportSink = sink
	return s
}

// Routes registers the full HTTP surface on mux using Go 1.22+
// pattern-based routing — no router framework.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /soe/evaluate", s.handleSOEEvaluate)

	mux.HandleFunc("POST /plans/generate", s.handlePlanGenerate)
	mux.HandleFunc("PATCH /plans/{id}", s.handlePlanEdit)
	mux.HandleFunc("POST /plans/{id}/submit", s.handlePlanSubmit)
	mux.HandleFunc("POST /plans/{id}/approve", s.handlePlanApprove)
	mux.HandleFunc("POST /plans/{id}/reject", s.handlePlanReject)
	mux.HandleFunc("POST /plans/{id}/optimize", s.handlePlanOptimize)
	mux.HandleFunc("GET /plans/{id}/versions", s.handlePlanVersions)
	mux.HandleFunc("GET /plans/{id}/diff", s.handlePlanDiff)
	mux.HandleFunc("GET /plans/{id}/export/{format}", s.handlePlanExport)

	mux.HandleFunc("POST /compliance/plans/{id}/reports/generate", s.handleComplianceReport)
	mux.HandleFunc("GET /compliance/plans/{id}/audit-integrity", s.handleAuditIntegrity)

	mux.HandleFunc("POST /profiles/{id}/submit", s.handleProfileTransition(profiles.Submit))
	mux.HandleFunc("POST /profiles/{id}/reject", s.handleProfileTransition(profiles.Reject))
	mux.HandleFunc("POST /profiles/{id}/deprecate", s.handleProfileTransition(profiles.Deprecate))
	mux.HandleFunc("POST /profiles/{id}/approve", s.handleProfileApprove)
	mux.HandleFunc("GET /profiles/{id}/versions", s.handleProfileVersions)
	mux.HandleFunc("POST /profiles/bundles", s.handleCreateBundle)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// writeErr translates any error into the uniform response shape;
// *apperr.Error gets its mapped status, anything else is a 500.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := err.(*apperr.Error); ok {
		WriteAppError(w, r, ae)
		return
	}
	WriteInternal(w, err)
}

func newID() string { return uuid.New().String() }

func (s *Server) auditDeny(ctx context.Context, entity, actor, role, fromState, reason string) {
	if s.AuditLog == nil {
		return
	}
	_ = s.AuditLog.Append(ctx, "plan", entity, actor, role, fromState, fromState, reason, "denied", time.Now())
}
