package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/listing"
	"github.com/erazemk/nomisma/internal/model"
)

const (
	// coinListLimit caps the collection list.
	coinListLimit = 100
	// similarLimit is how many similar coins the detail page shows.
	similarLimit = 5
)

// flashes are the success messages shown after a redirect.
var flashes = map[string]string{
	"updated":   "Coin updated.",
	"deleted":   "Coin deleted.",
	"estimated": "Valuation updated.",
	"listed":    "eBay listing created successfully!",
}

// CoinsPage handles GET /coins.
func (s *Server) CoinsPage(w http.ResponseWriter, r *http.Request) {
	q := model.CoinQuery{
		Search:         strings.TrimSpace(r.URL.Query().Get("search")),
		Country:        strings.TrimSpace(r.URL.Query().Get("country")),
		ConditionGrade: strings.TrimSpace(r.URL.Query().Get("condition_grade")),
		Limit:          coinListLimit,
	}

	data := &struct {
		PageData
		Query model.CoinQuery
		Coins []model.CoinSummary
	}{PageData: page(r, "Collection"), Query: q}
	data.Success = flashes[r.URL.Query().Get("ok")]

	coins, err := s.Backend.ListCoins(r.Context(), q)
	if err != nil {
		slog.Error("failed to list coins", "error", err)
		data.Error = "Could not load the collection. Check the backend connection."
	}
	data.Coins = coins

	s.Templates.Render(w, "coins.html", data)
}

// coinDetail is the data of the coin detail page.
type coinDetail struct {
	PageData
	Coin       *model.Coin
	Obverse    *model.CoinImage
	Reverse    *model.CoinImage
	Valuation  *model.Valuation
	Analysis   *model.Analysis
	Stats      *model.CoinStats
	Similar    []model.SimilarCoin
	Listings   []model.Listing
	Categories []model.Category
	Draft      model.ListingDraft
	TitleLimit int
}

// loadCoin fetches a coin and everything its detail page shows. Failures of
// the secondary lookups only leave their sections empty.
func (s *Server) loadCoin(ctx context.Context, r *http.Request, id string) (*coinDetail, error) {
	coin, err := s.Backend.GetCoin(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &coinDetail{
		PageData:   page(r, coin.Title()),
		Coin:       coin,
		Obverse:    coin.ImageOf(model.SideObverse),
		Reverse:    coin.ImageOf(model.SideReverse),
		Valuation:  coin.LatestValuation(),
		Analysis:   coin.LatestAnalysis(),
		Draft:      listing.NewDraft(coin),
		TitleLimit: listing.MaxTitleLength,
	}
	if d.Title == "" {
		d.Title = "Coin"
	}

	var g errgroup.Group
	g.Go(func() error {
		stats, err := s.Backend.CoinStats(ctx, id)
		if err != nil {
			slog.Warn("failed to load coin stats", "coin", id, "error", err)
			return nil
		}
		d.Stats = stats
		return nil
	})
	g.Go(func() error {
		similar, err := s.Backend.Similar(ctx, id, similarLimit)
		if err != nil {
			slog.Warn("failed to load similar coins", "coin", id, "error", err)
			return nil
		}
		d.Similar = similar.SimilarCoins
		return nil
	})
	g.Go(func() error {
		listings, err := s.Backend.Listings(ctx, id)
		if err != nil {
			slog.Warn("failed to load listings", "coin", id, "error", err)
			return nil
		}
		d.Listings = listings.Listings
		return nil
	})
	g.Go(func() error {
		categories, err := s.Backend.Categories(ctx)
		if err != nil {
			slog.Warn("failed to load categories", "error", err)
			return nil
		}
		d.Categories = categories
		return nil
	})
	_ = g.Wait()

	return d, nil
}

// renderCoin renders the detail page, or the not-found response when the
// coin does not exist. edit is called on the loaded data before rendering.
func (s *Server) renderCoin(w http.ResponseWriter, r *http.Request, status int, edit func(*coinDetail)) {
	id := r.PathValue("id")
	d, err := s.loadCoin(r.Context(), r, id)
	if backend.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to load coin", "coin", id, "error", err)
		http.Error(w, "failed to load coin", http.StatusBadGateway)
		return
	}
	if edit != nil {
		edit(d)
	}
	s.Templates.RenderStatus(w, status, "coin_detail.html", d)
}

// CoinDetailPage handles GET /coins/{id}.
func (s *Server) CoinDetailPage(w http.ResponseWriter, r *http.Request) {
	s.renderCoin(w, r, http.StatusOK, func(d *coinDetail) {
		d.Success = flashes[r.URL.Query().Get("ok")]
	})
}

// formError is a form validation message shown to the operator as is.
type formError string

func (e formError) Error() string { return string(e) }

// parseDraft reads the coin edit form.
func parseDraft(r *http.Request) (model.CoinDraft, error) {
	d := model.CoinDraft{
		Country:        strings.TrimSpace(r.FormValue("country")),
		Denomination:   strings.TrimSpace(r.FormValue("denomination")),
		MintMark:       strings.TrimSpace(r.FormValue("mint_mark")),
		Composition:    strings.TrimSpace(r.FormValue("composition")),
		ConditionGrade: strings.TrimSpace(r.FormValue("condition_grade")),
		Notes:          strings.TrimSpace(r.FormValue("notes")),
	}
	if y := strings.TrimSpace(r.FormValue("year")); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil || year < 0 {
			return d, formError("Year must be a whole number.")
		}
		d.Year = year
	}
	return d, nil
}

// CoinUpdateSubmit handles POST /coins/{id}.
func (s *Server) CoinUpdateSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := parseDraft(r)
	if err != nil {
		s.renderCoin(w, r, http.StatusBadRequest, func(cd *coinDetail) { cd.Error = err.Error() })
		return
	}

	if _, err := s.Backend.UpdateCoin(r.Context(), id, d.Input()); err != nil {
		if backend.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to update coin", "coin", id, "error", err)
		s.renderCoin(w, r, http.StatusBadGateway, func(cd *coinDetail) { cd.Error = "Saving the coin failed." })
		return
	}

	slog.Info("coin updated", "user", GetWebClaims(r.Context()).Username, "coin", id)
	http.Redirect(w, r, "/coins/"+id+"?ok=updated", http.StatusSeeOther)
}

// CoinDeleteSubmit handles POST /coins/{id}/delete.
func (s *Server) CoinDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Backend.DeleteCoin(r.Context(), id); err != nil {
		if backend.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		slog.Error("failed to delete coin", "coin", id, "error", err)
		s.renderCoin(w, r, http.StatusBadGateway, func(cd *coinDetail) { cd.Error = "Deleting the coin failed." })
		return
	}

	slog.Info("coin deleted", "user", GetWebClaims(r.Context()).Username, "coin", id)
	http.Redirect(w, r, "/coins?ok=deleted", http.StatusSeeOther)
}

// CoinEstimateSubmit handles POST /coins/{id}/estimate.
func (s *Server) CoinEstimateSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, err := s.Backend.EstimateValue(r.Context(), id)
	if err != nil {
		if backend.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		slog.Error("valuation failed", "coin", id, "error", err)
		s.renderCoin(w, r, http.StatusBadGateway, func(cd *coinDetail) { cd.Error = "Valuation failed." })
		return
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "Valuation failed."
		}
		s.renderCoin(w, r, http.StatusBadGateway, func(cd *coinDetail) { cd.Error = msg })
		return
	}

	http.Redirect(w, r, "/coins/"+id+"?ok=estimated", http.StatusSeeOther)
}

// parseListing reads the custom listing form over the derived draft.
func parseListing(r *http.Request, d model.ListingDraft) (model.ListingDraft, error) {
	d.Title = r.FormValue("listing_title")
	d.Description = r.FormValue("listing_description")

	start, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("starting_price")), 64)
	if err != nil {
		return d, formError("Starting price must be a number.")
	}
	d.StartingPrice = start

	d.BuyItNowPrice = 0
	if v := strings.TrimSpace(r.FormValue("buy_it_now_price")); v != "" {
		bin, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return d, formError("Buy it now price must be a number.")
		}
		d.BuyItNowPrice = bin
	}
	return d, nil
}

// CoinListingSubmit handles POST /coins/{id}/listings. Quick mode submits the
// derived draft; custom mode submits the form.
func (s *Server) CoinListingSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	coin, err := s.Backend.GetCoin(r.Context(), id)
	if backend.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("failed to load coin", "coin", id, "error", err)
		http.Error(w, "failed to load coin", http.StatusBadGateway)
		return
	}

	d := listing.NewDraft(coin)
	if r.FormValue("mode") == "custom" {
		custom, err := parseListing(r, d)
		if err != nil {
			s.renderCoin(w, r, http.StatusBadRequest, func(cd *coinDetail) {
				cd.Draft = custom
				cd.Error = err.Error()
			})
			return
		}
		d = custom
	}

	l, err := listing.Submit(r.Context(), s.Backend, coin.ID, d)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, listing.ErrInvalid) {
			status = http.StatusBadRequest
		}
		slog.Warn("listing failed", "coin", coin.ID, "error", err)
		s.renderCoin(w, r, status, func(cd *coinDetail) {
			cd.Draft = d
			cd.Error = listing.ErrorMessage(err)
		})
		return
	}

	slog.Info("coin listed", "user", GetWebClaims(r.Context()).Username, "coin", coin.ID, "item", l.EbayItemID)
	http.Redirect(w, r, "/coins/"+coin.ID+"?ok=listed", http.StatusSeeOther)
}

// statusField is one marketplace field of a listing status.
type statusField struct {
	Key   string
	Value any
}

// ListingStatusPage handles GET /coins/{id}/listings/{itemID}.
func (s *Server) ListingStatusPage(w http.ResponseWriter, r *http.Request) {
	coinID := r.PathValue("id")
	itemID := r.PathValue("itemID")

	data := &struct {
		PageData
		CoinID string
		ItemID string
		Status *model.ListingStatus
		Fields []statusField
	}{PageData: page(r, "Listing "+itemID), CoinID: coinID, ItemID: itemID}

	st, err := s.Backend.ListingStatus(r.Context(), itemID)
	if err != nil {
		slog.Warn("failed to get listing status", "item", itemID, "error", err)
		data.Error = listing.ErrorMessage(err)
		s.Templates.RenderStatus(w, http.StatusBadGateway, "listing_status.html", data)
		return
	}
	data.Status = st
	for k, v := range st.Raw {
		if k == "success" {
			continue
		}
		data.Fields = append(data.Fields, statusField{Key: k, Value: v})
	}
	sort.Slice(data.Fields, func(i, j int) bool { return data.Fields[i].Key < data.Fields[j].Key })

	s.Templates.Render(w, "listing_status.html", data)
}
