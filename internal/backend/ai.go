package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/erazemk/nomisma/internal/model"
)

// Analyze calls POST /api/ai/analyze. It runs without a client-side timeout;
// only ctx bounds it. A Success=false response is returned as is.
func (c *Client) Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
	if req.ImagePath == "" {
		return nil, fmt.Errorf("analyzing image: image path is required")
	}
	resp, err := c.slow.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post("/api/ai/analyze")
	if err := check(resp, err, "analyzing image"); err != nil {
		return nil, err
	}

	out := &model.AnalyzeResponse{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding analysis: %w", err)
	}
	return out, nil
}

// EstimateValue calls POST /api/ai/estimate-value/{coinId}.
func (c *Client) EstimateValue(ctx context.Context, coinID string) (*model.EstimateResponse, error) {
	resp, err := c.slow.R().
		SetContext(ctx).
		Post("/api/ai/estimate-value/" + url.PathEscape(coinID))
	if err := check(resp, err, "estimating value"); err != nil {
		return nil, err
	}

	out := &model.EstimateResponse{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding estimate: %w", err)
	}
	return out, nil
}

// Similar calls GET /api/ai/similar/{coinId}. A non-positive limit leaves the
// backend default.
func (c *Client) Similar(ctx context.Context, coinID string, limit int) (*model.SimilarResponse, error) {
	r := c.rest.R().SetContext(ctx)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	resp, err := r.Get("/api/ai/similar/" + url.PathEscape(coinID))
	if err := check(resp, err, "finding similar coins"); err != nil {
		return nil, err
	}

	out := &model.SimilarResponse{}
	if err := decodeLenient(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("decoding similar coins: %w", err)
	}
	return out, nil
}
