package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/scan"
)

// Backend is the part of the backend client the API uses directly.
type Backend interface {
	ListingBackend
	HealthChecker
}

// NewRouter creates the API router with all endpoints registered. Health
// lives outside /api and is mounted by the caller.
func NewRouter(db *sql.DB, jwtSecret string, b Backend, scans *scan.Manager) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	scansHandler := &ScansHandler{DB: db, Scans: scans}
	listingsHandler := &ListingsHandler{Backend: b}
	healthHandler := &BackendHealthHandler{Backend: b}

	authMW := AuthMiddleware(jwtSecret, db)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/health/backend", authMW(http.HandlerFunc(healthHandler.Check)))

	// Scan wizard: all roles scan, manager+ saves.
	mux.Handle("POST /api/scans", authMW(http.HandlerFunc(scansHandler.Start)))
	mux.Handle("GET /api/scans", authMW(http.HandlerFunc(scansHandler.List)))
	mux.Handle("GET /api/scans/{id}", authMW(http.HandlerFunc(scansHandler.Get)))
	mux.Handle("DELETE /api/scans/{id}", authMW(http.HandlerFunc(scansHandler.Cancel)))
	mux.Handle("PUT /api/scans/{id}/camera", authMW(http.HandlerFunc(scansHandler.SetCamera)))
	mux.Handle("POST /api/scans/{id}/cameras", authMW(http.HandlerFunc(scansHandler.RefreshCameras)))
	mux.Handle("GET /api/scans/{id}/preview", authMW(http.HandlerFunc(scansHandler.Preview)))
	mux.Handle("POST /api/scans/{id}/capture", authMW(http.HandlerFunc(scansHandler.Capture)))
	mux.Handle("POST /api/scans/{id}/analyze", authMW(http.HandlerFunc(scansHandler.Analyze)))
	mux.Handle("PUT /api/scans/{id}/draft", authMW(http.HandlerFunc(scansHandler.EditDraft)))
	mux.Handle("POST /api/scans/{id}/other-side", authMW(http.HandlerFunc(scansHandler.ScanOtherSide)))
	mux.Handle("POST /api/scans/{id}/save", authMW(requireManager(http.HandlerFunc(scansHandler.Save))))

	// Listings: read (all roles), submit (manager+).
	mux.Handle("GET /api/coins/{id}/listing-draft", authMW(http.HandlerFunc(listingsHandler.Draft)))
	mux.Handle("POST /api/coins/{id}/listing", authMW(requireManager(http.HandlerFunc(listingsHandler.Create))))

	return mux
}
