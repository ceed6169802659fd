package web

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/nomisma/internal/model"
	"github.com/erazemk/nomisma/internal/scan"
)

// recentCoins is how many coins the dashboard shows.
const recentCoins = 6

// DashboardStats summarizes the recent coins.
type DashboardStats struct {
	TotalCoins int
	TotalValue float64
	ForSale    int
}

// SummarizeCoins computes the dashboard figures. Coins without an estimate
// count as zero value.
func SummarizeCoins(coins []model.CoinSummary) DashboardStats {
	st := DashboardStats{TotalCoins: len(coins)}
	for _, c := range coins {
		if c.EstimatedValue != nil {
			st.TotalValue += *c.EstimatedValue
		}
		if c.IsForSale {
			st.ForSale++
		}
	}
	return st
}

// Dashboard handles GET /.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	data := &struct {
		PageData
		Stats       DashboardStats
		RecentCoins []model.CoinSummary
		Scans       []scan.State
	}{PageData: page(r, "Dashboard")}

	coins, err := s.Backend.ListCoins(r.Context(), model.CoinQuery{
		Limit:     recentCoins,
		SortBy:    "created_at",
		SortOrder: "desc",
	})
	if err != nil {
		slog.Error("failed to list coins for dashboard", "error", err)
		data.Error = "Could not load the collection. Check the backend connection."
	}
	data.RecentCoins = coins
	data.Stats = SummarizeCoins(coins)

	scans, err := s.Scans.List(r.Context(), claims.UserID)
	if err != nil {
		slog.Error("failed to list scans for dashboard", "error", err)
	}
	data.Scans = scans

	s.Templates.Render(w, "dashboard.html", data)
}
