package scan

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/nomisma/internal/imaging"
	"github.com/erazemk/nomisma/internal/model"
)

// Backend is the part of the backend client the wizard uses.
type Backend interface {
	Devices(ctx context.Context) (*model.DeviceList, error)
	OpenCamera(ctx context.Context, camera int) error
	CloseCamera(ctx context.Context) error
	Capture(ctx context.Context, camera int, side model.Side) (*model.CapturedImage, error)
	Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, error)
	GetCoin(ctx context.Context, id string) (*model.Coin, error)
	CreateCoin(ctx context.Context, in model.CoinInput) (*model.Coin, error)
	UpdateCoin(ctx context.Context, id string, in model.CoinInput) (*model.Coin, error)
	FetchImage(ctx context.Context, filePath string) (*model.Frame, error)
	UploadImage(ctx context.Context, coinID string, up model.ImageUpload) (*model.UploadedImage, error)
}

// Delays before navigating away from the complete step.
const (
	DefaultRedirectNew    = 2000 * time.Millisecond
	DefaultRedirectAttach = 1500 * time.Millisecond
)

// Wizard runs the save step against the backend.
type Wizard struct {
	backend        Backend
	redirectNew    time.Duration
	redirectAttach time.Duration
}

// NewWizard creates a wizard. Non-positive delays use the defaults.
func NewWizard(b Backend, redirectNew, redirectAttach time.Duration) *Wizard {
	if redirectNew <= 0 {
		redirectNew = DefaultRedirectNew
	}
	if redirectAttach <= 0 {
		redirectAttach = DefaultRedirectAttach
	}
	return &Wizard{backend: b, redirectNew: redirectNew, redirectAttach: redirectAttach}
}

// Save persists the scan: a new coin is created with both sides and analyzed,
// an attach stores the edited details on the existing coin and uploads the
// captured sides to it. Nothing is sent
// when SaveCheck fails. On error the returned state keeps the edit step with
// the error recorded, along with any progress made, so a retry resumes.
func (w *Wizard) Save(ctx context.Context, s State) (State, error) {
	if err := SaveCheck(s); err != nil {
		return s, err
	}
	s.Error = ""
	if s.Attaching() {
		return w.attach(ctx, s)
	}
	return w.create(ctx, s)
}

func (w *Wizard) create(ctx context.Context, s State) (State, error) {
	if s.CoinID == "" {
		coin, err := w.backend.CreateCoin(ctx, s.Draft.Input())
		if err != nil {
			return Fail(s, err), fmt.Errorf("creating coin: %w", err)
		}
		s.CoinID = coin.ID
		slog.Info("coin created", "scan", s.ID, "coin", coin.ID)
	}

	s, err := w.uploadAll(ctx, s, s.CoinID)
	if err != nil {
		return Fail(s, err), err
	}

	img := s.Captures.Obverse
	if img == nil {
		img = s.Captures.Reverse
	}
	if err := w.analyzeCoin(ctx, img.FilePath, s.CoinID); err != nil {
		return Fail(s, err), err
	}

	return Complete(s, s.CoinID, w.redirectNew), nil
}

func (w *Wizard) attach(ctx context.Context, s State) (State, error) {
	// The update is idempotent, so a resumed save repeats it.
	if _, err := w.backend.UpdateCoin(ctx, s.ExistingCoinID, s.Draft.Input()); err != nil {
		return Fail(s, err), fmt.Errorf("updating coin: %w", err)
	}
	slog.Info("coin updated", "scan", s.ID, "coin", s.ExistingCoinID)

	s, err := w.uploadAll(ctx, s, s.ExistingCoinID)
	if err != nil {
		return Fail(s, err), err
	}

	if s.Captures.Obverse != nil {
		if err := w.analyzeCoin(ctx, s.Captures.Obverse.FilePath, s.ExistingCoinID); err != nil {
			return Fail(s, err), err
		}
	}

	return Complete(s, s.ExistingCoinID, w.redirectAttach), nil
}

// uploadAll uploads every captured side not yet uploaded, concurrently. Sides
// that succeed are recorded even when another fails.
func (w *Wizard) uploadAll(ctx context.Context, s State, coinID string) (State, error) {
	var (
		mu   sync.Mutex
		done []model.Side
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, side := range []model.Side{model.SideObverse, model.SideReverse} {
		img := s.Captures.Get(side)
		if img == nil || s.IsUploaded(side) {
			continue
		}
		g.Go(func() error {
			if err := w.upload(gctx, coinID, side, img); err != nil {
				return err
			}
			mu.Lock()
			done = append(done, side)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	for _, side := range []model.Side{model.SideObverse, model.SideReverse} {
		for _, d := range done {
			if d == side {
				s.Uploaded = append(s.Uploaded, side)
			}
		}
	}
	return s, err
}

func (w *Wizard) upload(ctx context.Context, coinID string, side model.Side, img *model.CapturedImage) error {
	frame, err := w.backend.FetchImage(ctx, img.FilePath)
	if err != nil {
		return fmt.Errorf("fetching %s image: %w", side, err)
	}
	name := path.Base(img.FilePath)
	if name == "." || name == "/" {
		name = "coin.jpg"
	}
	contentType := frame.ContentType
	if mime, err := imaging.Sniff(frame.Data); err == nil {
		contentType = mime
	}
	_, err = w.backend.UploadImage(ctx, coinID, model.ImageUpload{
		Data:        frame.Data,
		FileName:    name,
		ContentType: contentType,
		Side:        side,
	})
	if err != nil {
		return fmt.Errorf("uploading %s image: %w", side, err)
	}
	slog.Info("image uploaded", "coin", coinID, "side", side)
	return nil
}

func (w *Wizard) analyzeCoin(ctx context.Context, imagePath, coinID string) error {
	resp, err := w.backend.Analyze(ctx, model.AnalyzeRequest{ImagePath: imagePath, CoinID: coinID})
	if err != nil {
		return fmt.Errorf("analyzing coin: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("analyzing coin: %w", &AnalysisError{Message: resp.Error})
	}
	return nil
}
