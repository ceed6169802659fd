package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/store"
)

// Roles lists the roles offered in the operator forms.
var Roles = []string{model.RoleUser, model.RoleManager, model.RoleAdmin}

// renderUsers renders the operator list with an optional message.
func (s *Server) renderUsers(w http.ResponseWriter, r *http.Request, status int, errMsg, okMsg string) {
	users, err := store.ListUsers(r.Context(), s.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		errMsg = "Could not load operators."
	}

	data := &struct {
		PageData
		Users []model.User
		Roles []string
	}{
		PageData: page(r, "Operators"),
		Users:    users,
		Roles:    Roles,
	}
	data.Error = errMsg
	data.Success = okMsg
	s.Templates.RenderStatus(w, status, "users.html", data)
}

// UsersPage handles GET /users (admin only).
func (s *Server) UsersPage(w http.ResponseWriter, r *http.Request) {
	s.renderUsers(w, r, http.StatusOK, "", "")
}

// UserCreateSubmit handles POST /users (admin only).
func (s *Server) UserCreateSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	role := r.FormValue("role")

	if username == "" || password == "" || !model.ValidRole(role) {
		s.renderUsers(w, r, http.StatusBadRequest, "Enter a username, a password and a role.", "")
		return
	}
	if err := model.ValidatePassword(password); err != nil {
		s.renderUsers(w, r, http.StatusBadRequest, "The password must be at least 8 characters.", "")
		return
	}

	existing, err := store.GetUserByUsername(r.Context(), s.DB, username)
	if err == nil && existing != nil {
		s.renderUsers(w, r, http.StatusConflict, "That username is taken.", "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	if _, err := store.CreateUser(r.Context(), s.DB, username, string(hash), role); err != nil {
		slog.Error("failed to create user", "error", err)
		s.renderUsers(w, r, http.StatusInternalServerError, "Creating the operator failed.", "")
		return
	}

	slog.Info("user created", "user", GetWebClaims(r.Context()).Username, "new_user", username, "role", role)
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

// UserResetPasswordSubmit handles POST /users/{id}/password (admin only).
func (s *Server) UserResetPasswordSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/users", http.StatusSeeOther)
		return
	}

	newPassword := r.FormValue("new_password")
	if err := model.ValidatePassword(newPassword); err != nil {
		s.renderUsers(w, r, http.StatusBadRequest, "The password must be at least 8 characters.", "")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), s.DB, id, string(hash)); err != nil {
		slog.Error("failed to reset password", "error", err)
		s.renderUsers(w, r, http.StatusNotFound, "Operator not found.", "")
		return
	}

	slog.Info("user password reset", "user", GetWebClaims(r.Context()).Username, "target_id", id)
	s.renderUsers(w, r, http.StatusOK, "", "Password reset.")
}

// UserUpdateRoleSubmit handles POST /users/{id}/role (admin only). The last
// administrator cannot be demoted.
func (s *Server) UserUpdateRoleSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/users", http.StatusSeeOther)
		return
	}

	role := r.FormValue("role")
	if !model.ValidRole(role) {
		s.renderUsers(w, r, http.StatusBadRequest, "Unknown role.", "")
		return
	}

	target, err := store.GetUser(r.Context(), s.DB, id)
	if err != nil || target == nil || target.DeletedAt != nil {
		s.renderUsers(w, r, http.StatusNotFound, "Operator not found.", "")
		return
	}

	if target.Role == model.RoleAdmin && role != model.RoleAdmin {
		admins, err := store.CountAdmins(r.Context(), s.DB)
		if err != nil {
			slog.Error("failed to count admins", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if admins <= 1 {
			s.renderUsers(w, r, http.StatusConflict, "The last administrator cannot be demoted.", "")
			return
		}
	}

	if err := store.UpdateUserRole(r.Context(), s.DB, id, role); err != nil {
		slog.Error("failed to update role", "error", err)
		s.renderUsers(w, r, http.StatusInternalServerError, "Updating the role failed.", "")
		return
	}

	slog.Info("user role updated", "user", GetWebClaims(r.Context()).Username, "target_user", target.Username, "new_role", role)
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}
