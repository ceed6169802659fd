package web

import (
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/store"
)

// settingsPage is the data of the settings page.
type settingsPage struct {
	PageData
	Cameras         []model.Camera
	PreferredCamera int
	CamerasError    string
}

// renderSettings renders the settings page with an optional message.
func (s *Server) renderSettings(w http.ResponseWriter, r *http.Request, status int, errMsg, okMsg string) {
	data := &settingsPage{PageData: page(r, "Settings"), PreferredCamera: -1}
	data.Error = errMsg
	data.Success = okMsg

	preferred, err := store.GetPreferredCamera(r.Context(), s.DB)
	if err != nil {
		slog.Error("failed to read preferred camera", "error", err)
	} else {
		data.PreferredCamera = preferred
	}

	devices, err := s.Backend.Devices(r.Context())
	if err != nil {
		slog.Warn("failed to list cameras", "error", err)
		data.CamerasError = "Could not load the camera list."
	} else {
		data.Cameras = devices.Cameras
	}

	s.Templates.RenderStatus(w, status, "settings.html", data)
}

// SettingsPage handles GET /settings.
func (s *Server) SettingsPage(w http.ResponseWriter, r *http.Request) {
	s.renderSettings(w, r, http.StatusOK, "", "")
}

// SettingsSubmit handles POST /settings: the own password, or the preferred
// camera when the form names one.
func (s *Server) SettingsSubmit(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("form") == "camera" {
		s.preferredCameraSubmit(w, r)
		return
	}

	claims := GetWebClaims(r.Context())
	currentPassword := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")

	if currentPassword == "" || newPassword == "" {
		s.renderSettings(w, r, http.StatusBadRequest, "Enter your current and new password.", "")
		return
	}
	if err := model.ValidatePassword(newPassword); err != nil {
		s.renderSettings(w, r, http.StatusBadRequest, "The new password must be at least 8 characters.", "")
		return
	}

	user, err := store.GetUser(r.Context(), s.DB, claims.UserID)
	if err != nil || user == nil {
		s.renderSettings(w, r, http.StatusInternalServerError, "Could not load your account.", "")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		s.renderSettings(w, r, http.StatusBadRequest, "The current password is wrong.", "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		s.renderSettings(w, r, http.StatusInternalServerError, "Saving the password failed.", "")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), s.DB, claims.UserID, string(hash)); err != nil {
		slog.Error("failed to update password", "error", err)
		s.renderSettings(w, r, http.StatusInternalServerError, "Saving the password failed.", "")
		return
	}

	slog.Info("password changed", "user", claims.Username)
	s.renderSettings(w, r, http.StatusOK, "", "Password changed.")
}

// preferredCameraSubmit stores the camera the wizard selects first. -1
// clears the preference.
func (s *Server) preferredCameraSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	if !model.RoleAtLeast(claims.Role, model.RoleManager) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	camera, err := strconv.Atoi(r.FormValue("camera"))
	if err != nil {
		s.renderSettings(w, r, http.StatusBadRequest, "Select a camera.", "")
		return
	}
	if err := store.SetPreferredCamera(r.Context(), s.DB, camera); err != nil {
		slog.Error("failed to store preferred camera", "error", err)
		s.renderSettings(w, r, http.StatusInternalServerError, "Saving the camera failed.", "")
		return
	}

	slog.Info("preferred camera set", "user", claims.Username, "camera", camera)
	s.renderSettings(w, r, http.StatusOK, "", "Preferred camera saved.")
}
