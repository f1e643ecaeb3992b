package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pesio-ai/be-ojt-placements/internal/errors"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/service"
)

// Services groups the operations exposed over HTTP.
type Services struct {
	Companies    *service.CompanyService
	Applications *service.ApplicationService
	Workflow     *service.WorkflowCoordinator
	Requirements *service.RequirementTracker
	Queries      *service.QueryService
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	svc     Services
	health  HealthCheck
	service string
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler. health may be nil.
func NewHTTPHandler(svc Services, health HealthCheck, serviceName string, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, health: health, service: serviceName, log: log}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /api/v1/companies", h.ListCompanies)
	mux.HandleFunc("POST /api/v1/companies", h.CreateCompany)
	mux.HandleFunc("GET /api/v1/companies/{id}", h.GetCompany)
	mux.HandleFunc("PATCH /api/v1/companies/{id}", h.UpdateCompany)
	mux.HandleFunc("POST /api/v1/companies/{id}/archive", h.ArchiveCompany)
	mux.HandleFunc("POST /api/v1/companies/{id}/restore", h.RestoreCompany)

	mux.HandleFunc("GET /api/v1/applications", h.ListApplications)
	mux.HandleFunc("POST /api/v1/applications", h.CreateApplication)
	mux.HandleFunc("GET /api/v1/applications/{id}", h.GetApplication)
	mux.HandleFunc("PATCH /api/v1/applications/{id}", h.UpdateApplication)
	mux.HandleFunc("DELETE /api/v1/applications/{id}", h.DeleteApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/submit", h.SubmitApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/review", h.ReviewApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/approve", h.ApproveApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/reject", h.RejectApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/cancel", h.CancelApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/archive", h.ArchiveApplication)
	mux.HandleFunc("POST /api/v1/applications/{id}/retrieve", h.RetrieveApplication)
	mux.HandleFunc("GET /api/v1/applications/{id}/audit", h.ListAudit)

	mux.HandleFunc("GET /api/v1/applications/{id}/requirements", h.ListRequirements)
	mux.HandleFunc("POST /api/v1/applications/{id}/requirements", h.AttachRequirement)
	mux.HandleFunc("GET /api/v1/applications/{id}/requirements/completion", h.RequirementCompletion)
	mux.HandleFunc("DELETE /api/v1/requirements/{id}", h.DetachRequirement)
	mux.HandleFunc("POST /api/v1/requirements/{id}/verify", h.VerifyRequirement)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Health handles liveness and dependency checks.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "service": h.service}
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			body["status"] = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// Companies

func (h *HTTPHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := pageParams(q.Get("page"), q.Get("page_size"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := h.svc.Queries.ListCompanies(r.Context(), &service.CompanyQuery{
		Search:          q.Get("search"),
		Status:          q.Get("status"),
		IncludeArchived: boolParam(q.Get("include_archived")),
		ArchivedOnly:    boolParam(q.Get("archived_only")),
		Sort:            q.Get("sort"),
		Desc:            strings.EqualFold(q.Get("order"), "desc"),
		Page:            page,
		PageSize:        size,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var body companyBody
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := h.svc.Companies.Create(r.Context(), body.request())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *HTTPHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Companies.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	var body companyPatch
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := h.svc.Companies.Update(r.Context(), r.PathValue("id"), body.request())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ArchiveCompany(w http.ResponseWriter, r *http.Request) {
	h.companyAction(w, r, h.svc.Companies.Archive)
}

func (h *HTTPHandler) RestoreCompany(w http.ResponseWriter, r *http.Request) {
	h.companyAction(w, r, h.svc.Companies.Restore)
}

func (h *HTTPHandler) companyAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*service.CompanyView, error)) {
	out, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Applications

func (h *HTTPHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, size, err := pageParams(q.Get("page"), q.Get("page_size"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	var statuses []string
	for _, s := range q["status"] {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, part)
			}
		}
	}
	out, err := h.svc.Queries.ListApplications(r.Context(), &service.ApplicationQuery{
		Search:          q.Get("search"),
		Statuses:        statuses,
		CompanyID:       q.Get("company_id"),
		StudentID:       q.Get("student_id"),
		From:            q.Get("from"),
		To:              q.Get("to"),
		IncludeArchived: boolParam(q.Get("include_archived")),
		ArchivedOnly:    boolParam(q.Get("archived_only")),
		Sort:            q.Get("sort"),
		Desc:            strings.EqualFold(q.Get("order"), "desc"),
		Page:            page,
		PageSize:        size,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var body applicationBody
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := h.svc.Applications.Create(r.Context(), body.request())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *HTTPHandler) GetApplication(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Applications.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	var body applicationPatch
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := h.svc.Applications.UpdateDraft(r.Context(), r.PathValue("id"), body.request())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Applications.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.svc.Applications.Submit)
}

func (h *HTTPHandler) CancelApplication(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.svc.Workflow.Cancel)
}

func (h *HTTPHandler) ArchiveApplication(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.svc.Workflow.Archive)
}

func (h *HTTPHandler) RetrieveApplication(w http.ResponseWriter, r *http.Request) {
	h.outcome(w, r, h.svc.Workflow.Retrieve)
}

func (h *HTTPHandler) ReviewApplication(w http.ResponseWriter, r *http.Request) {
	h.withNotes(w, r, h.svc.Workflow.BeginReview)
}

func (h *HTTPHandler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	h.withNotes(w, r, h.svc.Workflow.Approve)
}

func (h *HTTPHandler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	var body rejectBody
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := h.svc.Workflow.Reject(r.Context(), r.PathValue("id"), body.Reason, body.Notes)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) withNotes(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, string) (*service.Outcome, error)) {
	var body notesBody
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := fn(r.Context(), r.PathValue("id"), body.Notes)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) outcome(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*service.Outcome, error)) {
	out, err := fn(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Applications.ListAudit(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// Requirements

func (h *HTTPHandler) ListRequirements(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.svc.Requirements.List(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": reqs})
}

// AttachRequirement takes a multipart form with a "type" field and a
// "file" part.
func (h *HTTPHandler) AttachRequirement(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		h.writeServiceError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid multipart form"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeServiceError(w, r, errors.InvalidInput("file", "file is required"))
		return
	}
	defer file.Close()
	if header.Size > service.MaxDocumentSize {
		h.writeServiceError(w, r, errors.InvalidInput("file", "file exceeds the size limit").
			WithDetail("max_bytes", service.MaxDocumentSize))
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, service.MaxDocumentSize+1))
	if err != nil {
		h.writeServiceError(w, r, errors.Wrap(err, errors.ErrCodeInvalidInput, "could not read file"))
		return
	}

	req, err := h.svc.Requirements.Attach(r.Context(), &service.AttachRequest{
		ApplicationID: r.PathValue("id"),
		Type:          r.FormValue("type"),
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Content:       content,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *HTTPHandler) RequirementCompletion(w http.ResponseWriter, r *http.Request) {
	submitted, total, err := h.svc.Requirements.CompletionRatio(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"submitted": submitted, "total": total})
}

func (h *HTTPHandler) DetachRequirement(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Requirements.Detach(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) VerifyRequirement(w http.ResponseWriter, r *http.Request) {
	var body notesBody
	if err := decode(w, r, &body); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	req, err := h.svc.Requirements.Verify(r.Context(), r.PathValue("id"), body.Notes)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func pageParams(page, size string) (int, int, error) {
	p, err := intParam("page", page)
	if err != nil {
		return 0, 0, err
	}
	s, err := intParam("page_size", size)
	if err != nil {
		return 0, 0, err
	}
	return p, s, nil
}

func intParam(name, v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.InvalidInput(name, name+" must be a non-negative integer")
	}
	return n, nil
}

func boolParam(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
