// Package imaging inspects and downscales coin images and preview frames.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/erazemk/nomisma/internal/model"
)

// JPEGQuality is the compression quality for re-encoded frames.
const JPEGQuality = 85

// AllowedMIME lists the accepted image MIME types.
var AllowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ErrUnsupported is returned for data that is not a JPEG or PNG image.
var ErrUnsupported = errors.New("unsupported image format")

// Sniff returns the MIME type of data, detected from its bytes.
func Sniff(data []byte) (string, error) {
	detected := http.DetectContentType(data)
	if !AllowedMIME[detected] {
		return "", fmt.Errorf("%w: %s (only JPEG and PNG accepted)", ErrUnsupported, detected)
	}
	return detected, nil
}

// Extension returns the file extension for an allowed MIME type.
func Extension(mime string) string {
	if mime == "image/png" {
		return ".png"
	}
	return ".jpg"
}

// Downscale decodes data and, when either dimension exceeds maxDim, returns it
// resized and re-encoded as JPEG. Images already within bounds are returned
// unchanged with resized=false.
func Downscale(data []byte, maxDim int) (out []byte, mime string, resized bool, err error) {
	mime, err = Sniff(data)
	if err != nil {
		return nil, "", false, err
	}
	if maxDim <= 0 {
		return data, mime, false, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", false, fmt.Errorf("decoding image header: %w", err)
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, mime, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false, fmt.Errorf("decoding image: %w", err)
	}
	img = downscale(img, maxDim)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, "", false, fmt.Errorf("encoding JPEG: %w", err)
	}
	return buf.Bytes(), "image/jpeg", true, nil
}

// PreviewTransform returns a frame transform that bounds preview frames to
// maxDim pixels. With maxDim <= 0 frames pass through untouched.
func PreviewTransform(maxDim int) func(*model.Frame) (*model.Frame, error) {
	return func(f *model.Frame) (*model.Frame, error) {
		if f == nil || maxDim <= 0 {
			return f, nil
		}
		data, mime, resized, err := Downscale(f.Data, maxDim)
		if err != nil {
			return nil, fmt.Errorf("preview frame: %w", err)
		}
		if !resized {
			return f, nil
		}
		return &model.Frame{Data: data, ContentType: mime}, nil
	}
}

// downscale resizes the image so neither dimension exceeds maxDim, keeping
// the aspect ratio.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
