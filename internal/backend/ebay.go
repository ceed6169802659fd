package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/erazemk/nomisma/internal/model"
)

// CreateListing calls POST /api/ebay/list and returns the stored listing.
func (c *Client) CreateListing(ctx context.Context, req model.ListingRequest) (*model.Listing, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/ebay/list")
	if err := check(resp, err, "creating listing"); err != nil {
		return nil, err
	}

	out := &model.Listing{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding listing response: %w", err)
	}
	return out, nil
}

// Listings calls GET /api/ebay/listings/{coinId}.
func (c *Client) Listings(ctx context.Context, coinID string) (*model.ListingsResponse, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/api/ebay/listings/" + url.PathEscape(coinID))
	if err := check(resp, err, "getting listings"); err != nil {
		return nil, err
	}

	out := &model.ListingsResponse{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding listings: %w", err)
	}
	return out, nil
}

// ListingStatus calls GET /api/ebay/status/{itemId}.
func (c *Client) ListingStatus(ctx context.Context, itemID string) (*model.ListingStatus, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/api/ebay/status/" + url.PathEscape(itemID))
	if err := check(resp, err, "getting listing status"); err != nil {
		return nil, err
	}

	out := &model.ListingStatus{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding listing status: %w", err)
	}
	raw := map[string]any{}
	if err := json.Unmarshal(resp.Body(), &raw); err == nil {
		out.Raw = raw
	}
	return out, nil
}

// Categories calls GET /api/ebay/categories.
func (c *Client) Categories(ctx context.Context) ([]model.Category, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/api/ebay/categories")
	if err := check(resp, err, "getting categories"); err != nil {
		return nil, err
	}

	out := &model.CategoriesResponse{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding categories: %w", err)
	}
	return out.Categories, nil
}
