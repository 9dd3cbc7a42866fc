// Package api is the transport-only HTTP surface over the DatumPlan
// core. Core packages (pkg/soe, pkg/plan, pkg/profiles,
// pkg/export, pkg/compliance) never import this package or net/http;
// api translates their apperr.Error values into RFC 7807 responses.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SodiumBank/Datum/pkg/apperr"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// Every DatumPlan API error response uses this shape.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// ProblemDetailFromAppError converts a *apperr.Error into the uniform
// {code, message, detail?} error shape, wrapped in an RFC 7807
// envelope.
// It lives here rather than as a method on apperr.Error so pkg/apperr
// stays free of any transport import.
func ProblemDetailFromAppError(err *apperr.Error) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://datumplan.sodiumbank.io/errors/%s", err.Code),
		Title:  string(err.Code),
		Status: err.HTTPStatus(),
		Code:   string(err.Code),
		Detail: err.Message,
	}
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://datumplan.sodiumbank.io/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteAppError writes the uniform error shape for a *apperr.Error,
// mapping its closed code to the right HTTP status.
func WriteAppError(w http.ResponseWriter, r *http.Request, err *apperr.Error) {
	problem := ProblemDetailFromAppError(err)
	problem.Instance = r.URL.Path
	problem.TraceID = w.Header().Get("X-Request-ID")
	if err.Detail != nil {
		if b, marshalErr := json.Marshal(err.Detail); marshalErr == nil {
			problem.Detail = fmt.Sprintf("%s (detail: %s)", problem.Detail, string(b))
		}
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "The HTTP method is not supported for this endpoint")
}

func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 response. err is logged but never exposed
// to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
