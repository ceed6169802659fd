package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/nomisma/internal/capture"
	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/scan"
	"github.com/erazemk/nomisma/internal/store"
)

// analyzeRefresh is how often, in seconds, the analyze step reloads while
// the analysis runs.
const analyzeRefresh = 2

// scanPage is the data of the scan wizard page.
type scanPage struct {
	PageData
	Scan            *scan.State
	Steps           []scan.Step
	MissingSide     model.Side
	SaveBlocked     string
	CanPersist      bool
	PreviewInterval int64
	AnalyzeRefresh  int
}

// ScanStart handles GET /scan. The coinId and side parameters select attach
// mode and the first side to scan.
func (s *Server) ScanStart(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	coinID := r.URL.Query().Get("coinId")
	side := r.URL.Query().Get("side")

	if coinID != "" && !model.RoleAtLeast(claims.Role, model.RoleManager) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	preferred, err := store.GetPreferredCamera(r.Context(), s.DB)
	if err != nil {
		slog.Warn("reading preferred camera failed", "error", err)
		preferred = -1
	}

	st, err := s.Scans.Start(r.Context(), scan.StartOptions{
		UserID:          claims.UserID,
		CoinID:          coinID,
		Side:            side,
		PreferredCamera: preferred,
	})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, scan.ErrNotFound) {
			status = http.StatusNotFound
		}
		slog.Warn("starting scan failed", "coin", coinID, "error", err)
		data := s.scanData(r, nil)
		data.Error = scan.Describe(err)
		s.Templates.RenderStatus(w, status, "scan.html", data)
		return
	}

	http.Redirect(w, r, "/scan/"+st.ID, http.StatusSeeOther)
}

// scanData builds the page data for st.
func (s *Server) scanData(r *http.Request, st *scan.State) *scanPage {
	claims := GetWebClaims(r.Context())
	data := &scanPage{
		PageData:        page(r, "Scan coin"),
		Scan:            st,
		Steps:           scan.Steps,
		CanPersist:      model.RoleAtLeast(claims.Role, model.RoleManager),
		PreviewInterval: s.PreviewInterval.Milliseconds(),
		AnalyzeRefresh:  analyzeRefresh,
	}
	if data.PreviewInterval <= 0 {
		data.PreviewInterval = capture.DefaultInterval.Milliseconds()
	}
	if st == nil {
		return data
	}
	if st.Attaching() {
		data.Title = "Scan coin: add images"
	}
	if side, missing := scan.MissingSide(*st); missing {
		data.MissingSide = side
	}
	if st.Step == scan.StepEdit {
		if err := scan.SaveCheck(*st); err != nil {
			data.SaveBlocked = scan.Describe(err)
		}
	}
	return data
}

// ownedScan loads the session named in the path. Sessions of other
// operators are only visible to admins.
func (s *Server) ownedScan(w http.ResponseWriter, r *http.Request) (*scan.State, bool) {
	st, err := s.Scans.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, scan.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load scan", "scan", r.PathValue("id"), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	claims := GetWebClaims(r.Context())
	if st.UserID != claims.UserID && !model.RoleAtLeast(claims.Role, model.RoleAdmin) {
		http.NotFound(w, r)
		return nil, false
	}
	return st, true
}

// ScanPage handles GET /scan/{id}.
func (s *Server) ScanPage(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	s.Templates.Render(w, "scan.html", s.scanData(r, st))
}

// ScanPreview handles GET /scan/{id}/preview with the latest polled frame.
func (s *Server) ScanPreview(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	frame, err := s.Scans.Preview(r.Context(), st.ID)
	if err != nil {
		if !errors.Is(err, capture.ErrPreviewUnavailable) {
			slog.Debug("preview frame unavailable", "scan", st.ID, "error", err)
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "preview unavailable", http.StatusServiceUnavailable)
		return
	}

	contentType := frame.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := w.Write(frame.Data); err != nil {
		slog.Debug("failed to write preview frame", "scan", st.ID, "error", err)
	}
}

// transition runs a wizard transition and redirects back to the wizard.
// Failures re-render the wizard with the message; responses that arrive for
// abandoned work are dropped silently.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, id string, next *scan.State, err error) {
	if err == nil || errors.Is(err, scan.ErrStale) {
		http.Redirect(w, r, "/scan/"+id, http.StatusSeeOther)
		return
	}
	if errors.Is(err, scan.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if next == nil {
		reloaded, gerr := s.Scans.Get(r.Context(), id)
		if gerr != nil {
			slog.Error("failed to reload scan", "scan", id, "error", gerr)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next = reloaded
	}

	data := s.scanData(r, next)
	msg := scan.Describe(err)
	var fe formError
	if errors.As(err, &fe) {
		msg = fe.Error()
	}
	if msg != next.Error && msg != next.QualityWarning {
		data.Error = msg
	}
	s.Templates.Render(w, "scan.html", data)
}

// ScanCameraSubmit handles POST /scan/{id}/camera. Without a camera field the
// device list is reloaded.
func (s *Server) ScanCameraSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	raw := r.FormValue("camera")
	if raw == "" {
		next, err := s.Scans.RefreshCameras(r.Context(), st.ID)
		s.transition(w, r, st.ID, next, err)
		return
	}
	camera, err := strconv.Atoi(raw)
	if err != nil {
		s.transition(w, r, st.ID, st, formError("Select a camera."))
		return
	}
	next, err := s.Scans.SetCamera(r.Context(), st.ID, camera)
	s.transition(w, r, st.ID, next, err)
}

// ScanCaptureSubmit handles POST /scan/{id}/capture.
func (s *Server) ScanCaptureSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	next, err := s.Scans.Capture(r.Context(), st.ID)
	s.transition(w, r, st.ID, next, err)
}

// ScanAnalyzeSubmit handles POST /scan/{id}/analyze: retry or skip a failed
// analysis.
func (s *Server) ScanAnalyzeSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	var next *scan.State
	var err error
	switch r.FormValue("action") {
	case "retry":
		next, err = s.Scans.RetryAnalysis(r.Context(), st.ID)
	case "skip":
		next, err = s.Scans.SkipAnalysis(r.Context(), st.ID)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	s.transition(w, r, st.ID, next, err)
}

// ScanDraftSubmit handles POST /scan/{id}/draft.
func (s *Server) ScanDraftSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	d, err := parseDraft(r)
	if err != nil {
		s.transition(w, r, st.ID, st, err)
		return
	}
	next, err := s.Scans.EditDraft(r.Context(), st.ID, d)
	s.transition(w, r, st.ID, next, err)
}

// ScanOtherSideSubmit handles POST /scan/{id}/other-side.
func (s *Server) ScanOtherSideSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	next, err := s.Scans.ScanOtherSide(r.Context(), st.ID)
	s.transition(w, r, st.ID, next, err)
}

// ScanSaveSubmit handles POST /scan/{id}/save. When the form carries the
// draft fields they are stored first.
func (s *Server) ScanSaveSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	if r.FormValue("draft") == "1" {
		d, err := parseDraft(r)
		if err != nil {
			s.transition(w, r, st.ID, st, err)
			return
		}
		if _, err := s.Scans.EditDraft(r.Context(), st.ID, d); err != nil {
			s.transition(w, r, st.ID, nil, err)
			return
		}
	}
	next, err := s.Scans.Save(r.Context(), st.ID)
	if err == nil {
		slog.Info("scan saved", "user", GetWebClaims(r.Context()).Username, "scan", st.ID, "coin", next.CoinID)
	}
	s.transition(w, r, st.ID, next, err)
}

// ScanCancelSubmit handles POST /scan/{id}/cancel.
func (s *Server) ScanCancelSubmit(w http.ResponseWriter, r *http.Request) {
	st, ok := s.ownedScan(w, r)
	if !ok {
		return
	}
	if err := s.Scans.Cancel(r.Context(), st.ID); err != nil && !errors.Is(err, scan.ErrNotFound) {
		slog.Error("failed to cancel scan", "scan", st.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	dest := "/"
	if st.Attaching() {
		dest = "/coins/" + st.ExistingCoinID
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}
