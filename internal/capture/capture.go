// Package capture implements the capture session of the scan wizard: camera
// selection, the capture quality gate, side resolution and preview polling.
package capture

import (
	"fmt"
	"strings"

	"github.com/erazemk/nomisma/internal/model"
)

// GenericQualityReason is shown when a capture is rejected without a reason.
const GenericQualityReason = "Image quality looks poor. Please rescan."

// SelectCamera returns the camera index to use. The current selection is kept
// when it is listed and available; otherwise the first available camera is
// chosen, or the first device when none is available. A negative selected
// means nothing is selected. ok is false only when cameras is empty.
func SelectCamera(cameras []model.Camera, selected int) (index int, ok bool) {
	if len(cameras) == 0 {
		return selected, false
	}
	if selected >= 0 {
		for _, c := range cameras {
			if c.Index == selected && c.IsAvailable() {
				return selected, true
			}
		}
	}
	for _, c := range cameras {
		if c.IsAvailable() {
			return c.Index, true
		}
	}
	return cameras[0].Index, true
}

// QualityReason builds the human-readable reason for a rejected capture.
func QualityReason(q model.Quality) string {
	var reasons []string
	if q.IsBlurry {
		reasons = append(reasons, "Image looks blurry")
	}
	if q.IsDark {
		reasons = append(reasons, "Image is too dark")
	}
	if q.IsBright {
		reasons = append(reasons, "Image is too bright")
	}
	if len(reasons) == 0 {
		return GenericQualityReason
	}
	return strings.Join(reasons, ". ")
}

// ResolveSide decides which slot a capture is stored under. A recognized
// server label wins; anything else falls back to the requested side.
func ResolveSide(label string, requested model.Side) model.Side {
	if side, ok := model.ParseSide(label); ok {
		return side
	}
	return requested
}

// QualityError reports a capture rejected by the quality gate. The image must
// be discarded and the same side captured again.
type QualityError struct {
	Side    model.Side
	Quality model.Quality
}

func (e *QualityError) Error() string {
	return QualityReason(e.Quality)
}

// Warning is the message shown next to the capture controls.
func (e *QualityError) Warning() string {
	return fmt.Sprintf("%s Please rescan the %s side.", terminate(e.Error()), e.Side.Label())
}

// Accept runs the quality gate and side resolution on a capture response.
// It returns the side the image belongs to, or a *QualityError.
func Accept(img *model.CapturedImage, requested model.Side) (model.Side, error) {
	if img == nil {
		return "", fmt.Errorf("capture returned no image")
	}
	if img.Quality.Rejected() {
		return "", &QualityError{Side: requested, Quality: img.Quality}
	}
	return ResolveSide(img.SideLabel(), requested), nil
}

// Prompt is the instruction shown while scanning side.
func Prompt(side model.Side) string {
	return fmt.Sprintf("Please scan the %s side of the coin.", side)
}

func terminate(s string) string {
	if strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}
