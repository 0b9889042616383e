package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/boardtrack/apiserver/internal/services"
	"github.com/boardtrack/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// ScanHandler provides HTTP handlers for barcode scans.
type ScanHandler struct {
	scans *services.ScanService
}

// NewScanHandler constructs a handler with the provided service.
func NewScanHandler(scans *services.ScanService) *ScanHandler {
	return &ScanHandler{scans: scans}
}

// ScanRouter registers scan routes on the given router.
func ScanRouter(r chi.Router, scans *services.ScanService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewScanHandler(scans)

	r.Use(authMiddleware)
	r.Get("/", handler.ListScans)
	r.Post("/", handler.RecordScan)
	r.Route("/{scanID}", func(r chi.Router) {
		r.Patch("/", handler.UpdateScan)
		r.Delete("/", handler.DeleteScan)
	})
}

func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter, err := parseScanFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scans, err := h.scans.List(r.Context(), sess, filter)
	if err != nil {
		writeDomainError(w, err, "failed to list scans")
		return
	}

	writeJSON(w, http.StatusOK, scans)
}

func (h *ScanHandler) RecordScan(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RecordScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Barcode = strings.TrimSpace(req.Barcode)
	if req.Barcode == "" {
		writeError(w, http.StatusBadRequest, "barcode is required")
		return
	}
	if req.OrderID < 1 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	status := types.ScanStatus(strings.TrimSpace(req.Status))
	scan, err := h.scans.Record(r.Context(), sess, req.Barcode, status, req.OrderID, req.Notes)
	if err != nil {
		writeDomainError(w, err, "failed to record scan")
		return
	}

	writeJSON(w, http.StatusCreated, scan)
}

func (h *ScanHandler) UpdateScan(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	scanID, err := parseIDParam(r, "scanID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	var status *types.ScanStatus
	if req.Status != nil {
		s := types.ScanStatus(strings.TrimSpace(*req.Status))
		status = &s
	}

	scan, err := h.scans.Update(r.Context(), sess, scanID, status, req.Notes)
	if err != nil {
		writeDomainError(w, err, "failed to update scan")
		return
	}

	writeJSON(w, http.StatusOK, scan)
}

func (h *ScanHandler) DeleteScan(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	scanID, err := parseIDParam(r, "scanID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.scans.Delete(r.Context(), sess, scanID); err != nil {
		writeDomainError(w, err, "failed to delete scan")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type RecordScanRequest struct {
	Barcode string `json:"barcode"`
	Status  string `json:"status"`
	OrderID int    `json:"order_id"`
	Notes   string `json:"notes"`
}

type UpdateScanRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func parseScanFilter(r *http.Request) (types.ScanFilter, error) {
	var filter types.ScanFilter
	var err error

	if filter.OrderID, err = parseOptionalQueryInt(r, "order_id"); err != nil {
		return types.ScanFilter{}, err
	}
	if filter.UserID, err = parseOptionalQueryInt(r, "user_id"); err != nil {
		return types.ScanFilter{}, err
	}
	if filter.DepartmentID, err = parseOptionalQueryInt(r, "department_id"); err != nil {
		return types.ScanFilter{}, err
	}
	return filter, nil
}

func parseOptionalQueryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, errors.New("invalid " + name)
	}
	return value, nil
}
