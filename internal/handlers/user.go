package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/boardtrack/apiserver/internal/services"
	"github.com/boardtrack/apiserver/internal/store"
	"github.com/boardtrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// UserHandler provides HTTP handlers for user administration.
type UserHandler struct {
	identity *services.IdentityService
}

// NewUserHandler constructs a handler with the provided service.
func NewUserHandler(identity *services.IdentityService) *UserHandler {
	return &UserHandler{identity: identity}
}

// UserRouter registers user routes on the given router. All routes
// require authentication; authorization lives in the service layer.
func UserRouter(r chi.Router, identity *services.IdentityService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(identity)

	r.Use(authMiddleware)
	r.Get("/", handler.ListUsers)
	r.Post("/", handler.CreateUser)
	r.Route("/{userID}", func(r chi.Router) {
		r.Patch("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	users, err := h.identity.ListUsers(r.Context(), sess)
	if err != nil {
		writeDomainError(w, err, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	role := types.Role(strings.TrimSpace(req.Role))
	if !role.Valid() {
		writeError(w, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := h.identity.CreateUser(r.Context(), sess, req.Username, req.Password, role, req.DepartmentID)
	if err != nil {
		writeDomainError(w, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	update := store.UserUpdate{}
	if req.Role != nil {
		role := types.Role(strings.TrimSpace(*req.Role))
		update.Role = &role
	}
	if req.Department != nil {
		update.SetDepartment = true
		update.DepartmentID = req.Department.ID
	}

	user, err := h.identity.UpdateUser(r.Context(), sess, userID, update)
	if err != nil {
		writeDomainError(w, err, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.identity.DeleteUser(r.Context(), sess, userID); err != nil {
		writeDomainError(w, err, "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type CreateUserRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	DepartmentID *int   `json:"department_id"`
}

// UpdateUserRequest is a partial update. The department wrapper
// distinguishes "leave unchanged" (absent) from "clear" (present with
// null id).
type UpdateUserRequest struct {
	Role       *string                  `json:"role"`
	Department *DepartmentAssignmentReq `json:"department"`
}

type DepartmentAssignmentReq struct {
	ID *int `json:"id"`
}
