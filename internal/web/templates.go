package web

import (
	"context"
	"database/sql"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/erazemk/nomisma/internal/auth"
	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/scan"
	webembed "github.com/erazemk/nomisma/web"
)

// Templates holds parsed HTML templates.
type Templates struct {
	templates map[string]*template.Template
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"roleAtLeast": model.RoleAtLeast,
		"roleName": func(role string) string {
			switch role {
			case model.RoleAdmin:
				return "Administrator"
			case model.RoleManager:
				return "Curator"
			case model.RoleUser:
				return "Operator"
			default:
				return role
			}
		},
		"money":    money,
		"imageURL": imageURL,
		"sideLabel": func(side model.Side) string {
			return side.Label()
		},
		"percent": func(v *float64) string {
			if v == nil {
				return "N/A"
			}
			p := *v
			if p <= 1 {
				p *= 100
			}
			return fmt.Sprintf("%.0f%%", p)
		},
		"date": func(ts model.Timestamp) string {
			if ts.IsZero() {
				return ""
			}
			return ts.Format("2006-01-02 15:04")
		},
		"millis": func(d time.Duration) int64 {
			return d.Milliseconds()
		},
		"seconds": func(d time.Duration) int64 {
			return int64((d + time.Second - 1) / time.Second)
		},
		"runes": utf8.RuneCountInString,
		"stepDone": func(current, step scan.Step) bool {
			return step.Index() < current.Index()
		},
	}
}

// money formats an optional amount in dollars.
func money(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", *v)
}

// imageURL maps a backend file path to the console's image proxy.
func imageURL(filePath string) string {
	if filePath == "" {
		return ""
	}
	parts := strings.Split(strings.TrimLeft(filePath, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return "/images/" + strings.Join(parts, "/")
}

// LoadTemplates parses all page templates with the layout.
func LoadTemplates() (*Templates, error) {
	tfs := webembed.TemplatesFS()

	layoutBytes, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}

	pages := []string{
		"login.html",
		"dashboard.html",
		"coins.html",
		"coin_detail.html",
		"listing_status.html",
		"scan.html",
		"users.html",
		"settings.html",
	}

	ts := &Templates{templates: make(map[string]*template.Template)}

	for _, page := range pages {
		pageBytes, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}

		tmpl := template.New(page).Funcs(FuncMap())
		tmpl, err = tmpl.Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", page, err)
		}
		tmpl, err = tmpl.Parse(string(pageBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}

		ts.templates[page] = tmpl
	}

	return ts, nil
}

// Render renders a template with the given data.
func (ts *Templates) Render(w http.ResponseWriter, name string, data any) {
	ts.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus renders a template with the given status code.
func (ts *Templates) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := ts.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		slog.Error("failed to render template", "template", name, "error", err)
	}
}

// PageData is the base data passed to all templates.
type PageData struct {
	Title   string
	User    *auth.Claims
	Error   string
	Success string
}

// Backend is the part of the backend client the pages use.
type Backend interface {
	ListCoins(ctx context.Context, q model.CoinQuery) ([]model.CoinSummary, error)
	GetCoin(ctx context.Context, id string) (*model.Coin, error)
	UpdateCoin(ctx context.Context, id string, in model.CoinInput) (*model.Coin, error)
	DeleteCoin(ctx context.Context, id string) error
	CoinStats(ctx context.Context, id string) (*model.CoinStats, error)
	EstimateValue(ctx context.Context, coinID string) (*model.EstimateResponse, error)
	Similar(ctx context.Context, coinID string, limit int) (*model.SimilarResponse, error)
	Listings(ctx context.Context, coinID string) (*model.ListingsResponse, error)
	ListingStatus(ctx context.Context, itemID string) (*model.ListingStatus, error)
	Categories(ctx context.Context) ([]model.Category, error)
	CreateListing(ctx context.Context, req model.ListingRequest) (*model.Listing, error)
	FetchImage(ctx context.Context, filePath string) (*model.Frame, error)
	Devices(ctx context.Context) (*model.DeviceList, error)
}

// Server holds all dependencies for page handlers.
type Server struct {
	DB        *sql.DB
	Templates *Templates
	JWTSecret string
	Backend   Backend
	Scans     *scan.Manager
	// PreviewInterval is how often the scan page reloads the preview frame.
	PreviewInterval time.Duration
}

// page builds the base page data for an authenticated request.
func page(r *http.Request, title string) PageData {
	return PageData{Title: title, User: GetWebClaims(r.Context())}
}
