package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boardtrack/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

// DepartmentHandler provides HTTP handlers for departments.
type DepartmentHandler struct {
	identity *services.IdentityService
}

// NewDepartmentHandler constructs a handler with the provided service.
func NewDepartmentHandler(identity *services.IdentityService) *DepartmentHandler {
	return &DepartmentHandler{identity: identity}
}

// DepartmentRouter registers department routes on the given router.
func DepartmentRouter(r chi.Router, identity *services.IdentityService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewDepartmentHandler(identity)

	r.Use(authMiddleware)
	r.Get("/", handler.ListDepartments)
	r.Post("/", handler.CreateDepartment)
	r.Delete("/{departmentID}", handler.DeleteDepartment)
}

func (h *DepartmentHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	departments, err := h.identity.ListDepartments(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err, "failed to list departments")
		return
	}

	writeJSON(w, http.StatusOK, departments)
}

func (h *DepartmentHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "department name is required")
		return
	}

	dept, err := h.identity.CreateDepartment(r.Context(), sess, req.Name)
	if err != nil {
		writeDomainError(w, err, "failed to create department")
		return
	}

	writeJSON(w, http.StatusCreated, dept)
}

func (h *DepartmentHandler) DeleteDepartment(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	departmentID, err := parseIDParam(r, "departmentID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.identity.DeleteDepartment(r.Context(), sess, departmentID); err != nil {
		writeDomainError(w, err, "failed to delete department")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type CreateDepartmentRequest struct {
	Name string `json:"name"`
}
