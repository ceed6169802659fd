package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/erazemk/nomisma/internal/model"
)

func createTestJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{184, 115, 51, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func createTestPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{192, 192, 192, 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestSniff(t *testing.T) {
	if mime, err := Sniff(createTestJPEG(10, 10)); err != nil || mime != "image/jpeg" {
		t.Errorf("jpeg: got %q, %v", mime, err)
	}
	if mime, err := Sniff(createTestPNG(10, 10)); err != nil || mime != "image/png" {
		t.Errorf("png: got %q, %v", mime, err)
	}
	_, err := Sniff([]byte("GIF89a..."))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for GIF, got %v", err)
	}
	_, err = Sniff([]byte("not an image"))
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported for text, got %v", err)
	}
}

func TestExtension(t *testing.T) {
	if got := Extension("image/png"); got != ".png" {
		t.Errorf("png extension: got %s", got)
	}
	if got := Extension("image/jpeg"); got != ".jpg" {
		t.Errorf("jpeg extension: got %s", got)
	}
}

func TestDownscaleLarge(t *testing.T) {
	data := createTestPNG(1600, 800)
	out, mime, resized, err := Downscale(data, 400)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	if !resized || mime != "image/jpeg" {
		t.Fatalf("expected resized JPEG, got resized=%v mime=%s", resized, mime)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 400 || b.Dy() != 200 {
		t.Errorf("expected 400x200, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestDownscaleSmallUntouched(t *testing.T) {
	data := createTestPNG(50, 50)
	out, mime, resized, err := Downscale(data, 400)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	if resized {
		t.Error("small image should not be resized")
	}
	if mime != "image/png" || !bytes.Equal(out, data) {
		t.Error("small image should be returned byte for byte")
	}
}

func TestDownscaleDisabled(t *testing.T) {
	data := createTestJPEG(800, 800)
	out, _, resized, err := Downscale(data, 0)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	if resized || !bytes.Equal(out, data) {
		t.Error("maxDim 0 must pass data through")
	}
}

func TestDownscaleInvalid(t *testing.T) {
	if _, _, _, err := Downscale([]byte("not an image"), 100); err == nil {
		t.Error("expected error for invalid data")
	}
	// JPEG magic followed by garbage sniffs fine but fails to decode.
	if _, _, _, err := Downscale([]byte("\xff\xd8\xff\xe0garbage"), 100); err == nil {
		t.Error("expected decode error for truncated JPEG")
	}
}

func TestPreviewTransform(t *testing.T) {
	tr := PreviewTransform(100)

	big := &model.Frame{Data: createTestJPEG(300, 150), ContentType: "image/jpeg"}
	got, err := tr(big)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(got.Data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("expected 100x50, got %dx%d", cfg.Width, cfg.Height)
	}

	small := &model.Frame{Data: createTestJPEG(40, 40), ContentType: "image/jpeg"}
	got, err = tr(small)
	if err != nil {
		t.Fatalf("transform small: %v", err)
	}
	if got != small {
		t.Error("small frame should be returned as is")
	}

	if _, err := tr(&model.Frame{Data: []byte("oops")}); err == nil {
		t.Error("expected error for non-image frame")
	}
}

func TestPreviewTransformDisabled(t *testing.T) {
	f := &model.Frame{Data: []byte("anything")}
	got, err := PreviewTransform(0)(f)
	if err != nil || got != f {
		t.Errorf("disabled transform should pass through, got %v, %v", got, err)
	}
}
