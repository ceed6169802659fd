package backend

import (
	"context"
	"fmt"

	"github.com/erazemk/nomisma/internal/model"
)

// Health calls GET /health and fails unless the backend reports "healthy".
func (c *Client) Health(ctx context.Context) (*model.Health, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/health")
	if err := check(resp, err, "checking health"); err != nil {
		return nil, err
	}

	h := &model.Health{}
	if err := decodeLenient(resp.Body(), h); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	if h.Status != "healthy" {
		return h, fmt.Errorf("backend reports status %q", h.Status)
	}
	return h, nil
}
