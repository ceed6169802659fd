package backend

import (
	"context"
	"fmt"
	"net/url"

	"github.com/erazemk/nomisma/internal/model"
)

// ListCoins calls GET /api/coins/.
func (c *Client) ListCoins(ctx context.Context, q model.CoinQuery) ([]model.CoinSummary, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(q.Params()).
		Get("/api/coins/")
	if err := check(resp, err, "listing coins"); err != nil {
		return nil, err
	}

	var coins []model.CoinSummary
	if err := decodeLenient(resp.Body(), &coins); err != nil {
		return nil, fmt.Errorf("decoding coin list: %w", err)
	}
	return coins, nil
}

// GetCoin calls GET /api/coins/{id}.
func (c *Client) GetCoin(ctx context.Context, id string) (*model.Coin, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/api/coins/" + url.PathEscape(id))
	if err := check(resp, err, "getting coin"); err != nil {
		return nil, err
	}

	coin := &model.Coin{}
	if err := decodeLenient(resp.Body(), coin); err != nil {
		return nil, fmt.Errorf("decoding coin: %w", err)
	}
	return coin, nil
}

// CreateCoin calls POST /api/coins/.
func (c *Client) CreateCoin(ctx context.Context, in model.CoinInput) (*model.Coin, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(in).
		Post("/api/coins/")
	if err := check(resp, err, "creating coin"); err != nil {
		return nil, err
	}

	coin := &model.Coin{}
	if err := decodeLenient(resp.Body(), coin); err != nil {
		return nil, fmt.Errorf("decoding created coin: %w", err)
	}
	if coin.ID == "" {
		return nil, fmt.Errorf("creating coin: backend returned no id")
	}
	return coin, nil
}

// UpdateCoin calls PUT /api/coins/{id}.
func (c *Client) UpdateCoin(ctx context.Context, id string, in model.CoinInput) (*model.Coin, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(in).
		Put("/api/coins/" + url.PathEscape(id))
	if err := check(resp, err, "updating coin"); err != nil {
		return nil, err
	}

	coin := &model.Coin{}
	if err := decodeLenient(resp.Body(), coin); err != nil {
		return nil, fmt.Errorf("decoding updated coin: %w", err)
	}
	return coin, nil
}

// DeleteCoin calls DELETE /api/coins/{id}.
func (c *Client) DeleteCoin(ctx context.Context, id string) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Delete("/api/coins/" + url.PathEscape(id))
	return check(resp, err, "deleting coin")
}

// UploadImage calls POST /api/coins/{id}/images with a multipart body of
// file, image_type and is_primary.
func (c *Client) UploadImage(ctx context.Context, coinID string, up model.ImageUpload) (*model.UploadedImage, error) {
	if _, ok := model.ParseSide(string(up.Side)); !ok {
		return nil, fmt.Errorf("uploading image: invalid side %q", up.Side)
	}
	fileName := up.FileName
	if fileName == "" {
		fileName = "coin.jpg"
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	primary := "false"
	if up.Primary() {
		primary = "true"
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetMultipartField("file", fileName, contentType, bytesReader(up.Data)).
		SetMultipartFormData(map[string]string{
			"image_type": string(up.Side),
			"is_primary": primary,
		}).
		Post("/api/coins/" + url.PathEscape(coinID) + "/images")
	if err := check(resp, err, "uploading image"); err != nil {
		return nil, err
	}

	img := &model.UploadedImage{}
	if err := decodeLenient(resp.Body(), img); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return img, nil
}

// CoinStats calls GET /api/coins/{id}/stats.
func (c *Client) CoinStats(ctx context.Context, id string) (*model.CoinStats, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/api/coins/" + url.PathEscape(id) + "/stats")
	if err := check(resp, err, "getting coin stats"); err != nil {
		return nil, err
	}

	stats := &model.CoinStats{}
	if err := decodeLenient(resp.Body(), stats); err != nil {
		return nil, fmt.Errorf("decoding coin stats: %w", err)
	}
	return stats, nil
}

// FetchImage downloads a stored image from /images/{file_path}.
func (c *Client) FetchImage(ctx context.Context, filePath string) (*model.Frame, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*").
		Get("/images/" + escapeFilePath(filePath))
	if err := check(resp, err, "fetching image"); err != nil {
		return nil, err
	}
	return &model.Frame{Data: resp.Body(), ContentType: resp.Header().Get("Content-Type")}, nil
}
