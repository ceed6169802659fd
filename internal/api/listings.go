package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/listing"
	"github.com/erazemk/nomisma/internal/model"
)

// ListingBackend is the part of the backend client the listing endpoints use.
type ListingBackend interface {
	GetCoin(ctx context.Context, id string) (*model.Coin, error)
	CreateListing(ctx context.Context, req model.ListingRequest) (*model.Listing, error)
}

// ListingsHandler derives and submits marketplace listings.
type ListingsHandler struct {
	Backend ListingBackend
}

// coin loads the coin named in the path, writing the error response itself.
func (h *ListingsHandler) coin(w http.ResponseWriter, r *http.Request) (*model.Coin, bool) {
	c, err := h.Backend.GetCoin(r.Context(), r.PathValue("id"))
	if backend.IsNotFound(err) {
		jsonError(w, http.StatusNotFound, "coin not found")
		return nil, false
	}
	if err != nil {
		slog.Error("failed to load coin", "coin", r.PathValue("id"), "error", err)
		jsonError(w, http.StatusBadGateway, "failed to load coin")
		return nil, false
	}
	return c, true
}

// Draft handles GET /api/coins/{id}/listing-draft.
func (h *ListingsHandler) Draft(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coin(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, listing.NewDraft(c))
}

// Create handles POST /api/coins/{id}/listing. Without a body the derived
// draft is submitted as is.
func (h *ListingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := h.coin(w, r)
	if !ok {
		return
	}

	d := listing.NewDraft(c)
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &d); err != nil {
			jsonError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	l, err := listing.Submit(r.Context(), h.Backend, c.ID, d)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, listing.ErrInvalid) {
			status = http.StatusBadRequest
		}
		slog.Warn("listing failed", "coin", c.ID, "error", err)
		jsonError(w, status, listing.ErrorMessage(err))
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("coin listed", "user", claims.Username, "coin", c.ID, "item", l.EbayItemID)
	jsonResponse(w, http.StatusCreated, l)
}
