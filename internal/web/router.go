package web

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/scan"
	webembed "github.com/erazemk/nomisma/web"
)

// NewRouter creates the web page router with all page routes registered.
// previewInterval sets how often the scan page reloads the preview.
func NewRouter(db *sql.DB, jwtSecret string, b Backend, scans *scan.Manager, previewInterval time.Duration) (http.Handler, error) {
	templates, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		DB:              db,
		Templates:       templates,
		JWTSecret:       jwtSecret,
		Backend:         b,
		Scans:           scans,
		PreviewInterval: previewInterval,
	}

	mux := http.NewServeMux()
	cookieAuth := CookieAuthMiddleware(jwtSecret, db)
	authed := func(h http.HandlerFunc) http.Handler {
		return cookieAuth(h)
	}
	manager := func(h http.HandlerFunc) http.Handler {
		return cookieAuth(requireRole(model.RoleManager, h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return cookieAuth(requireRole(model.RoleAdmin, h))
	}

	// Static assets.
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	// Public routes.
	mux.HandleFunc("GET /login", s.LoginPage)
	mux.HandleFunc("POST /login", s.LoginSubmit)
	mux.HandleFunc("POST /logout", s.Logout)

	// Authenticated routes.
	mux.Handle("GET /{$}", authed(s.Dashboard))

	mux.Handle("GET /coins", authed(s.CoinsPage))
	mux.Handle("GET /coins/{id}", authed(s.CoinDetailPage))
	mux.Handle("POST /coins/{id}", manager(s.CoinUpdateSubmit))
	mux.Handle("POST /coins/{id}/delete", manager(s.CoinDeleteSubmit))
	mux.Handle("POST /coins/{id}/estimate", manager(s.CoinEstimateSubmit))
	mux.Handle("POST /coins/{id}/listings", manager(s.CoinListingSubmit))
	mux.Handle("GET /coins/{id}/listings/{itemID}", authed(s.ListingStatusPage))

	mux.Handle("GET /scan", authed(s.ScanStart))
	mux.Handle("GET /scan/{id}", authed(s.ScanPage))
	mux.Handle("GET /scan/{id}/preview", authed(s.ScanPreview))
	mux.Handle("POST /scan/{id}/camera", authed(s.ScanCameraSubmit))
	mux.Handle("POST /scan/{id}/capture", authed(s.ScanCaptureSubmit))
	mux.Handle("POST /scan/{id}/analyze", authed(s.ScanAnalyzeSubmit))
	mux.Handle("POST /scan/{id}/draft", authed(s.ScanDraftSubmit))
	mux.Handle("POST /scan/{id}/other-side", authed(s.ScanOtherSideSubmit))
	mux.Handle("POST /scan/{id}/save", manager(s.ScanSaveSubmit))
	mux.Handle("POST /scan/{id}/cancel", authed(s.ScanCancelSubmit))

	mux.Handle("GET /images/{path...}", authed(s.ImageGet))

	mux.Handle("GET /users", admin(s.UsersPage))
	mux.Handle("POST /users", admin(s.UserCreateSubmit))
	mux.Handle("POST /users/{id}/password", admin(s.UserResetPasswordSubmit))
	mux.Handle("POST /users/{id}/role", admin(s.UserUpdateRoleSubmit))

	mux.Handle("GET /settings", authed(s.SettingsPage))
	mux.Handle("POST /settings", authed(s.SettingsSubmit))

	return mux, nil
}
