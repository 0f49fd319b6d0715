package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-legal-matters/internal/common/errors"
	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/common/middleware"
	"github.com/pesio-ai/be-legal-matters/internal/model"
	"github.com/pesio-ai/be-legal-matters/internal/service"
)

// UserIDHeader carries the acting user's id on write requests.
const UserIDHeader = "X-User-ID"

// MaxUpdateBodyBytes caps the size of a field update body.
const MaxUpdateBodyBytes = 64 << 10

// MatterService is the service surface both transports call.
type MatterService interface {
	List(ctx context.Context, req service.ListRequest) (*service.ListResponse, error)
	Get(ctx context.Context, id string) (*service.MatterDetail, error)
	UpdateField(ctx context.Context, matterID string, req service.UpdateFieldRequest, actor *int64) (*service.MatterDetail, error)
	ListTransitions(ctx context.Context, matterID string) ([]*model.Transition, error)
	ListFields(ctx context.Context) ([]*model.FieldDefinition, error)
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service MatterService
	log     *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service MatterService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		log:     log.Component("http"),
	}
}

// Register mounts the matter routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/matters", h.ListMatters)
	mux.HandleFunc("/api/v1/matters/get", h.GetMatter)
	mux.HandleFunc("/api/v1/matters/fields", h.UpdateMatterField)
	mux.HandleFunc("/api/v1/matters/history", h.ListTransitions)
	mux.HandleFunc("/api/v1/fields", h.ListFields)
}

// ListMatters handles list matters HTTP requests
func (h *HTTPHandler) ListMatters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page", service.DefaultPage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := intParam(q.Get("limit"), "limit", service.DefaultLimit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.List(r.Context(), service.ListRequest{
		Page:      page,
		Limit:     limit,
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Search:    q.Get("search"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetMatter handles get matter HTTP requests
func (h *HTTPHandler) GetMatter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	matter, err := h.service.Get(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, matter)
}

// UpdateMatterField handles field update HTTP requests
func (h *HTTPHandler) UpdateMatterField(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPatch {
		h.methodNotAllowed(w)
		return
	}

	actor, err := actorFromHeader(r.Header.Get(UserIDHeader))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req service.UpdateFieldRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxUpdateBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, errors.InvalidInput("body", "request body too large"))
			return
		}
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return
	}

	matter, err := h.service.UpdateField(r.Context(), r.URL.Query().Get("id"), req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, matter)
}

// ListTransitions handles status history HTTP requests
func (h *HTTPHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	transitions, err := h.service.ListTransitions(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"data": transitions})
}

// ListFields handles field catalog HTTP requests
func (h *HTTPHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	fields, err := h.service.ListFields(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"data": fields})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Field   string           `json:"field,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	detail := errorDetail{
		Code:    errors.CodeOf(err),
		Message: errors.PublicMessage(err),
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) && detail.Code != errors.ErrCodeInternal {
		detail.Field = appErr.Field
	}

	if status >= http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}

	h.writeJSON(w, status, errorBody{Error: detail})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
		Code:    errors.ErrCodeInvalidInput,
		Message: "method not allowed",
	}})
}

func intParam(raw, name string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.InvalidInput(name, "must be an integer")
	}
	return n, nil
}

func actorFromHeader(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.InvalidInput(UserIDHeader, "must be a positive integer")
	}
	return &id, nil
}
