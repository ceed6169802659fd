package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/scan"
	"github.com/erazemk/nomisma/internal/store"
)

// ScansHandler exposes the scan wizard to scripted clients.
type ScansHandler struct {
	DB    *sql.DB
	Scans *scan.Manager
}

type startScanRequest struct {
	CoinID string `json:"coin_id"`
	Side   string `json:"side"`
}

type cameraRequest struct {
	Camera *int `json:"camera"`
}

type analyzeRequest struct {
	// Action is "retry" or "skip".
	Action string `json:"action"`
}

// Start handles POST /api/scans.
func (h *ScansHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Side != "" {
		if _, ok := model.ParseSide(req.Side); !ok {
			jsonError(w, http.StatusBadRequest, "side must be obverse or reverse")
			return
		}
	}

	claims := GetClaims(r.Context())
	preferred, err := store.GetPreferredCamera(r.Context(), h.DB)
	if err != nil {
		slog.Warn("reading preferred camera failed", "error", err)
		preferred = -1
	}

	s, err := h.Scans.Start(r.Context(), scan.StartOptions{
		UserID:          claims.UserID,
		CoinID:          req.CoinID,
		Side:            req.Side,
		PreferredCamera: preferred,
	})
	if err != nil {
		scanResult(w, nil, err)
		return
	}
	jsonResponse(w, http.StatusCreated, s)
}

// List handles GET /api/scans.
func (h *ScansHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	states, err := h.Scans.List(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("failed to list scans", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if states == nil {
		states = []scan.State{}
	}
	jsonResponse(w, http.StatusOK, states)
}

// owned loads the session named in the path and checks that the caller may
// use it. Admins may use any session.
func (h *ScansHandler) owned(w http.ResponseWriter, r *http.Request) (*scan.State, bool) {
	s, err := h.Scans.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		scanResult(w, nil, err)
		return nil, false
	}
	claims := GetClaims(r.Context())
	if s.UserID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		jsonError(w, http.StatusNotFound, scan.ErrNotFound.Error())
		return nil, false
	}
	return s, true
}

// Get handles GET /api/scans/{id}.
func (h *ScansHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// Cancel handles DELETE /api/scans/{id}.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.Scans.Cancel(r.Context(), s.ID); err != nil {
		scanResult(w, nil, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "scan cancelled"})
}

// SetCamera handles PUT /api/scans/{id}/camera.
func (h *ScansHandler) SetCamera(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	var req cameraRequest
	if err := decodeJSON(r, &req); err != nil || req.Camera == nil {
		jsonError(w, http.StatusBadRequest, "camera index required")
		return
	}
	next, err := h.Scans.SetCamera(r.Context(), s.ID, *req.Camera)
	scanResult(w, next, err)
}

// RefreshCameras handles POST /api/scans/{id}/cameras.
func (h *ScansHandler) RefreshCameras(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	next, err := h.Scans.RefreshCameras(r.Context(), s.ID)
	scanResult(w, next, err)
}

// Capture handles POST /api/scans/{id}/capture.
func (h *ScansHandler) Capture(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	next, err := h.Scans.Capture(r.Context(), s.ID)
	scanResult(w, next, err)
}

// Analyze handles POST /api/scans/{id}/analyze: retry or skip a failed
// analysis.
func (h *ScansHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var next *scan.State
	var err error
	switch req.Action {
	case "retry":
		next, err = h.Scans.RetryAnalysis(r.Context(), s.ID)
	case "skip":
		next, err = h.Scans.SkipAnalysis(r.Context(), s.ID)
	default:
		jsonError(w, http.StatusBadRequest, `action must be "retry" or "skip"`)
		return
	}
	scanResult(w, next, err)
}

// EditDraft handles PUT /api/scans/{id}/draft.
func (h *ScansHandler) EditDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	var d model.CoinDraft
	if err := decodeJSON(r, &d); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	next, err := h.Scans.EditDraft(r.Context(), s.ID, d)
	scanResult(w, next, err)
}

// ScanOtherSide handles POST /api/scans/{id}/other-side.
func (h *ScansHandler) ScanOtherSide(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	next, err := h.Scans.ScanOtherSide(r.Context(), s.ID)
	scanResult(w, next, err)
}

// Save handles POST /api/scans/{id}/save.
func (h *ScansHandler) Save(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	next, err := h.Scans.Save(r.Context(), s.ID)
	if err == nil {
		claims := GetClaims(r.Context())
		slog.Info("scan saved", "user", claims.Username, "scan", s.ID, "coin", next.CoinID)
	}
	scanResult(w, next, err)
}

// Preview handles GET /api/scans/{id}/preview and returns the latest frame.
func (h *ScansHandler) Preview(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	frame, err := h.Scans.Preview(r.Context(), s.ID)
	if errors.Is(err, capture.ErrPreviewUnavailable) {
		jsonError(w, http.StatusServiceUnavailable, "preview unavailable")
		return
	}
	if err != nil {
		jsonError(w, http.StatusBadGateway, scan.Describe(err))
		return
	}
	contentType := frame.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(frame.Data)
}
