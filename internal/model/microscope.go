package model

// Side is a face of a coin.
type Side string

// Coin sides.
const (
	SideObverse Side = "obverse"
	SideReverse Side = "reverse"
)

// ParseSide returns the side named by s and whether it is a recognized side.
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideObverse, SideReverse:
		return Side(s), true
	}
	return "", false
}

// Opposite returns the other face.
func (s Side) Opposite() Side {
	if s == SideObverse {
		return SideReverse
	}
	return SideObverse
}

// Label is the human-readable name of the side.
func (s Side) Label() string {
	if s == SideObverse {
		return "front (obverse)"
	}
	return "back (reverse)"
}

// Camera describes a capture device exposed by the backend. Available is a
// pointer because older backends omit it; a missing value means available.
type Camera struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps,omitempty"`
	Device     string `json:"device,omitempty"`
	Available  *bool  `json:"available,omitempty"`
}

// IsAvailable reports whether the camera may be selected.
func (c Camera) IsAvailable() bool {
	return c.Available == nil || *c.Available
}

// DeviceList is the response of the device listing endpoint.
type DeviceList struct {
	Success bool     `json:"success"`
	Cameras []Camera `json:"cameras"`
	Count   int      `json:"count"`
}

// Quality is the backend's verdict on a captured frame.
type Quality struct {
	OK       *bool `json:"ok,omitempty"`
	IsBlurry bool  `json:"is_blurry"`
	IsDark   bool  `json:"is_dark"`
	IsBright bool  `json:"is_bright"`
}

// Rejected reports whether the image must be discarded. Only an explicit
// ok=false rejects; a missing verdict accepts.
func (q Quality) Rejected() bool {
	return q.OK != nil && !*q.OK
}

// SideDetection is the backend's guess of which face was captured.
type SideDetection struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// CapturedImage is the response of a capture request.
type CapturedImage struct {
	Success   bool           `json:"success"`
	FilePath  string         `json:"file_path"`
	URL       string         `json:"url,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Side      *SideDetection `json:"side,omitempty"`
	Quality   Quality        `json:"quality"`
}

// SideLabel returns the detected side label, or "" when absent.
func (c *CapturedImage) SideLabel() string {
	if c == nil || c.Side == nil {
		return ""
	}
	return c.Side.Label
}

// Frame is a single preview image.
type Frame struct {
	Data        []byte
	ContentType string
}
