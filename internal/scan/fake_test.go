package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/model"
)

// fakeBackend records calls and serves canned responses.
type fakeBackend struct {
	mu sync.Mutex

	devices    []model.Camera
	devicesErr error
	coins      map[string]*model.Coin
	captures   []*model.CapturedImage
	captureErr error
	// captureGate, when set, blocks Capture until it is closed.
	captureGate chan struct{}
	analyze     func(req model.AnalyzeRequest) (*model.AnalyzeResponse, error)
	analyzeGate chan struct{}
	createErr   error
	updateErr   error
	uploadErr   map[model.Side]error

	opened   []int
	closed   int
	created  []model.CoinInput
	updated  map[string][]model.CoinInput
	uploads  []upload
	analyzed []model.AnalyzeRequest
	captured []captureCall
	nextID   int
}

type upload struct {
	CoinID  string
	Side    model.Side
	Primary bool
	Data    string
}

type captureCall struct {
	Camera int
	Side   model.Side
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		devices: []model.Camera{{Index: 0, Name: "Microscope"}, {Index: 1, Name: "Webcam"}},
		coins:   map[string]*model.Coin{},
		analyze: func(req model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
			return &model.AnalyzeResponse{
				Success: true,
				Analysis: &model.AnalysisResult{
					Identification: model.Identification{Country: "USA", Denomination: "Quarter", Year: 1976},
					Condition:      model.Condition{Grade: "Fine"},
				},
			}, nil
		},
		uploadErr: map[model.Side]error{},
	}
}

func (f *fakeBackend) Devices(ctx context.Context) (*model.DeviceList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	return &model.DeviceList{Success: true, Cameras: f.devices, Count: len(f.devices)}, nil
}

func (f *fakeBackend) OpenCamera(ctx context.Context, camera int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, camera)
	return nil
}

func (f *fakeBackend) CloseCamera(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeBackend) Capture(ctx context.Context, camera int, side model.Side) (*model.CapturedImage, error) {
	f.mu.Lock()
	gate := f.captureGate
	f.captured = append(f.captured, captureCall{camera, side})
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	if len(f.captures) == 0 {
		return nil, errors.New("no capture queued")
	}
	img := f.captures[0]
	f.captures = f.captures[1:]
	return img, nil
}

func (f *fakeBackend) Analyze(ctx context.Context, req model.AnalyzeRequest) (*model.AnalyzeResponse, error) {
	f.mu.Lock()
	gate := f.analyzeGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed = append(f.analyzed, req)
	return f.analyze(req)
}

func (f *fakeBackend) GetCoin(ctx context.Context, id string) (*model.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.coins[id]
	if !ok {
		return nil, fmt.Errorf("getting coin: %w", &backend.HTTPError{StatusCode: http.StatusNotFound, Detail: "Coin not found"})
	}
	return c, nil
}

func (f *fakeBackend) CreateCoin(ctx context.Context, in model.CoinInput) (*model.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	f.created = append(f.created, in)
	c := &model.Coin{ID: fmt.Sprintf("coin-%d", f.nextID), Country: in.Country}
	f.coins[c.ID] = c
	return c, nil
}

func (f *fakeBackend) UpdateCoin(ctx context.Context, id string, in model.CoinInput) (*model.Coin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	c, ok := f.coins[id]
	if !ok {
		c = &model.Coin{ID: id}
		f.coins[id] = c
	}
	if f.updated == nil {
		f.updated = map[string][]model.CoinInput{}
	}
	f.updated[id] = append(f.updated[id], in)
	c.Country = in.Country
	c.Denomination = in.Denomination
	c.ConditionGrade = in.ConditionGrade
	c.Notes = in.Notes
	return c, nil
}

func (f *fakeBackend) FetchImage(ctx context.Context, filePath string) (*model.Frame, error) {
	return &model.Frame{Data: []byte("img:" + filePath), ContentType: "image/jpeg"}, nil
}

func (f *fakeBackend) UploadImage(ctx context.Context, coinID string, up model.ImageUpload) (*model.UploadedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.uploadErr[up.Side]; err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, upload{CoinID: coinID, Side: up.Side, Primary: up.Primary(), Data: string(up.Data)})
	return &model.UploadedImage{ID: "img", FilePath: "coins/" + string(up.Side) + ".jpg"}, nil
}

func (f *fakeBackend) sortedUploads() []upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]upload(nil), f.uploads...)
	sort.Slice(out, func(i, j int) bool { return out[i].Side < out[j].Side })
	return out
}

func (f *fakeBackend) analyzeCalls() []model.AnalyzeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AnalyzeRequest(nil), f.analyzed...)
}

func (f *fakeBackend) queue(imgs ...*model.CapturedImage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures = append(f.captures, imgs...)
}

// memStore is an in-memory Store.
type memStore struct {
	mu     sync.Mutex
	states map[string]State
}

func newMemStore() *memStore {
	return &memStore{states: map[string]State{}}
}

func (m *memStore) SaveScan(ctx context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.ID] = *s
	return nil
}

func (m *memStore) GetScan(ctx context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) ListScans(ctx context.Context, userID int64) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []State
	for _, s := range m.states {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) DeleteScan(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *memStore) DeleteScansBefore(ctx context.Context, cutoff time.Time) ([]State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []State
	for id, s := range m.states {
		if s.UpdatedAt.Before(cutoff) {
			expired = append(expired, s)
			delete(m.states, id)
		}
	}
	return expired, nil
}
