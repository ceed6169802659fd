package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/erazemk/nomisma/internal/model"
)

// Devices calls GET /api/microscope/devices.
func (c *Client) Devices(ctx context.Context) (*model.DeviceList, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		Get("/api/microscope/devices")
	if err := check(resp, err, "listing devices"); err != nil {
		return nil, err
	}

	list := &model.DeviceList{}
	if err := decodeLenient(resp.Body(), list); err != nil {
		return nil, fmt.Errorf("decoding device list: %w", err)
	}
	if list.Count == 0 {
		list.Count = len(list.Cameras)
	}
	return list, nil
}

// Capture calls POST /api/microscope/capture for the given camera. The
// requested side is a hint; the backend may report the side it detected.
func (c *Client) Capture(ctx context.Context, camera int, side model.Side) (*model.CapturedImage, error) {
	params := map[string]string{"camera_index": strconv.Itoa(camera)}
	if side != "" {
		params["side"] = string(side)
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(params).
		Post("/api/microscope/capture")
	if err := check(resp, err, "capturing image"); err != nil {
		return nil, err
	}

	img := &model.CapturedImage{}
	if err := decodeLenient(resp.Body(), img); err != nil {
		return nil, fmt.Errorf("decoding capture response: %w", err)
	}
	if img.FilePath == "" {
		return nil, fmt.Errorf("capturing image: backend returned no file path")
	}
	return img, nil
}

// Preview fetches one preview frame. token is a cache-busting value that
// must differ between polls.
func (c *Client) Preview(ctx context.Context, camera int, token int64) (*model.Frame, error) {
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Accept", "image/*").
		SetQueryParams(map[string]string{
			"camera_index": strconv.Itoa(camera),
			"t":            strconv.FormatInt(token, 10),
		}).
		Get("/api/microscope/preview")
	if err := check(resp, err, "fetching preview"); err != nil {
		return nil, err
	}
	if len(resp.Body()) == 0 {
		return nil, fmt.Errorf("fetching preview: empty frame")
	}
	return &model.Frame{Data: resp.Body(), ContentType: resp.Header().Get("Content-Type")}, nil
}

// OpenCamera calls POST /api/microscope/camera/{index}/open.
func (c *Client) OpenCamera(ctx context.Context, camera int) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Post("/api/microscope/camera/" + strconv.Itoa(camera) + "/open")
	return check(resp, err, "opening camera")
}

// CloseCamera calls POST /api/microscope/camera/close.
func (c *Client) CloseCamera(ctx context.Context) error {
	resp, err := c.rest.R().
		SetContext(ctx).
		Post("/api/microscope/camera/close")
	return check(resp, err, "closing camera")
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// escapeFilePath escapes each segment of a stored image path, keeping the
// separators.
func escapeFilePath(p string) string {
	p = strings.TrimLeft(p, "/")
	p = strings.TrimPrefix(p, "images/")
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
