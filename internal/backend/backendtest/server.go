// Package backendtest provides an in-process collection backend for tests.
// It speaks the same routes and payloads as the real backend and records
// what the console sent.
package backendtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/model"
)

// Upload records one image upload.
type Upload struct {
	CoinID    string
	Side      string
	IsPrimary string
	FileName  string
	Size      int
}

// Server is a fake backend.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	coins     map[string]*model.Coin
	captures  []model.CapturedImage
	analysis  model.AnalyzeResponse
	listErr   *backend.HTTPError
	cameras   []model.Camera
	uploads   []Upload
	analyzed  []model.AnalyzeRequest
	listed    []model.ListingRequest
	opened    []int
	closed    int
	captureN  int
	listingID int
}

// JPEG is a small valid JPEG served for previews and stored images.
var JPEG = func() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{184, 115, 51, 255})
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}()

// DefaultAnalysis identifies every coin as an 1893 Austrian krone.
func DefaultAnalysis() model.AnalyzeResponse {
	return model.AnalyzeResponse{
		Success: true,
		Analysis: &model.AnalysisResult{
			Identification: model.Identification{Country: "Austria", Denomination: "1 Krone", Year: 1893, Composition: "Silver"},
			Condition:      model.Condition{Grade: "Very Fine", WearLevel: "light"},
		},
	}
}

// New starts a fake backend with one available camera and closes it when
// the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	avail := true
	s := &Server{
		coins:    make(map[string]*model.Coin),
		analysis: DefaultAnalysis(),
		cameras:  []model.Camera{{Index: 0, Name: "USB Microscope", Resolution: "1920x1080", Available: &avail}},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Client returns a backend client pointed at the server.
func (s *Server) Client() *backend.Client {
	return backend.New(backend.Config{BaseURL: s.URL, Timeout: 5 * time.Second})
}

// AddCoin stores a coin and returns its id. An empty id is generated.
func (s *Server) AddCoin(c model.Coin) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.coins[c.ID] = &c
	return c.ID
}

// Coin returns a copy of a stored coin.
func (s *Server) Coin(id string) (model.Coin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coins[id]
	if !ok {
		return model.Coin{}, false
	}
	return *c, true
}

// CoinCount returns the number of stored coins.
func (s *Server) CoinCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.coins)
}

// SetCameras replaces the device list.
func (s *Server) SetCameras(cameras []model.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras = cameras
}

// QueueCapture makes the next capture return img.
func (s *Server) QueueCapture(img model.CapturedImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, img)
}

// SetAnalysis replaces the analyze response.
func (s *Server) SetAnalysis(resp model.AnalyzeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = resp
}

// FailListings makes listing creation fail with the given status and detail.
func (s *Server) FailListings(status int, detail any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = &backend.HTTPError{StatusCode: status, Detail: detail}
}

// Uploads returns the recorded uploads.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Analyzed returns the recorded analyze requests.
func (s *Server) Analyzed() []model.AnalyzeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AnalyzeRequest(nil), s.analyzed...)
}

// Listed returns the recorded listing requests.
func (s *Server) Listed() []model.ListingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ListingRequest(nil), s.listed...)
}

// Opened returns the camera indexes opened so far, and how often the camera
// was closed.
func (s *Server) Opened() ([]int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.opened...), s.closed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"detail": what + " not found"})
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.Health{Status: "healthy"})
	})

	mux.HandleFunc("GET /api/coins/", s.listCoins)
	mux.HandleFunc("POST /api/coins/", s.createCoin)
	mux.HandleFunc("GET /api/coins/{id}", s.withCoin(func(w http.ResponseWriter, r *http.Request, c *model.Coin) {
		writeJSON(w, http.StatusOK, c)
	}))
	mux.HandleFunc("PUT /api/coins/{id}", s.withCoin(s.updateCoin))
	mux.HandleFunc("DELETE /api/coins/{id}", s.withCoin(func(w http.ResponseWriter, r *http.Request, c *model.Coin) {
		delete(s.coins, c.ID)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Coin deleted successfully"})
	}))
	mux.HandleFunc("POST /api/coins/{id}/images", s.withCoin(s.uploadImage))
	mux.HandleFunc("GET /api/coins/{id}/stats", s.withCoin(func(w http.ResponseWriter, r *http.Request, c *model.Coin) {
		writeJSON(w, http.StatusOK, model.CoinStats{
			TotalImages:     len(c.Images),
			TotalAnalyses:   len(c.Analyses),
			TotalValuations: len(c.Valuations),
		})
	}))

	mux.HandleFunc("GET /api/microscope/devices", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, model.DeviceList{Success: true, Cameras: s.cameras, Count: len(s.cameras)})
	})
	mux.HandleFunc("POST /api/microscope/capture", s.capture)
	mux.HandleFunc("GET /api/microscope/preview", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(JPEG)
	})
	mux.HandleFunc("POST /api/microscope/camera/{index}/open", func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "bad index"})
			return
		}
		s.mu.Lock()
		s.opened = append(s.opened, idx)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	mux.HandleFunc("POST /api/microscope/camera/close", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.closed++
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	mux.HandleFunc("POST /api/ai/analyze", s.analyze)
	mux.HandleFunc("POST /api/ai/estimate-value/{id}", s.withCoin(s.estimate))
	mux.HandleFunc("GET /api/ai/similar/{id}", s.withCoin(func(w http.ResponseWriter, r *http.Request, c *model.Coin) {
		var similar []model.SimilarCoin
		for _, o := range s.coins {
			if o.ID != c.ID && o.Country == c.Country {
				similar = append(similar, model.SimilarCoin{ID: o.ID, Country: o.Country, Denomination: o.Denomination, Year: o.Year})
			}
		}
		writeJSON(w, http.StatusOK, model.SimilarResponse{Success: true, SimilarCoins: similar, Count: len(similar)})
	}))

	mux.HandleFunc("POST /api/ebay/list", s.createListing)
	mux.HandleFunc("GET /api/ebay/listings/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []model.Listing
		for i, l := range s.listed {
			if l.CoinID == r.PathValue("id") {
				out = append(out, model.Listing{ID: strconv.Itoa(i + 1), CoinID: l.CoinID, EbayItemID: "EB-" + strconv.Itoa(i+1), Title: l.Title, Status: "active"})
			}
		}
		writeJSON(w, http.StatusOK, model.ListingsResponse{Success: true, Listings: out, Count: len(out)})
	})
	mux.HandleFunc("GET /api/ebay/status/{item}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "item_id": r.PathValue("item"), "status": "Active", "watch_count": 3})
	})
	mux.HandleFunc("GET /api/ebay/categories", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, model.CategoriesResponse{Categories: []model.Category{{ID: "11116", Name: "Coins & Paper Money"}}})
	})

	mux.HandleFunc("GET /images/{path...}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(JPEG)
	})
	return mux
}

func (s *Server) withCoin(fn func(http.ResponseWriter, *http.Request, *model.Coin)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		c, ok := s.coins[r.PathValue("id")]
		if !ok {
			notFound(w, "Coin")
			return
		}
		fn(w, r, c)
	}
}

func (s *Server) listCoins(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := r.URL.Query()
	out := []model.CoinSummary{}
	for _, c := range s.coins {
		if v := q.Get("country"); v != "" && c.Country != v {
			continue
		}
		if v := q.Get("condition_grade"); v != "" && c.ConditionGrade != v {
			continue
		}
		if v := q.Get("search"); v != "" && !bytes.Contains([]byte(c.Country+" "+c.Denomination+" "+c.Notes), []byte(v)) {
			continue
		}
		sum := model.CoinSummary{ID: c.ID, InventoryNumber: c.InventoryNumber, Country: c.Country, Denomination: c.Denomination, Year: c.Year, ConditionGrade: c.ConditionGrade, IsForSale: c.IsForSale}
		if img := c.ImageOf(model.SideObverse); img != nil {
			sum.PrimaryImage = img.FilePath
		}
		if v := c.LatestValuation(); v != nil {
			sum.EstimatedValue = v.EstimatedValueAvg
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InventoryNumber > out[j].InventoryNumber })
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n < len(out) {
		out = out[:n]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCoin(w http.ResponseWriter, r *http.Request) {
	var in model.CoinInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &model.Coin{ID: uuid.NewString(), InventoryNumber: fmt.Sprintf("NOM-%04d", len(s.coins)+1)}
	applyInput(c, in)
	s.coins[c.ID] = c
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCoin(w http.ResponseWriter, r *http.Request, c *model.Coin) {
	var in model.CoinInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	applyInput(c, in)
	writeJSON(w, http.StatusOK, c)
}

func applyInput(c *model.Coin, in model.CoinInput) {
	c.Country = in.Country
	c.Denomination = in.Denomination
	c.Year = 0
	if in.Year != nil {
		c.Year = model.FlexInt(*in.Year)
	}
	c.MintMark = in.MintMark
	c.Composition = in.Composition
	c.ConditionGrade = in.ConditionGrade
	c.Notes = in.Notes
}

func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request, c *model.Coin) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": err.Error()})
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "file required"})
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)

	up := Upload{CoinID: c.ID, Side: r.FormValue("image_type"), IsPrimary: r.FormValue("is_primary"), FileName: hdr.Filename, Size: len(data)}
	s.uploads = append(s.uploads, up)

	img := model.CoinImage{ID: uuid.NewString(), FilePath: "coins/" + c.ID + "/" + up.Side + ".jpg", ImageType: up.Side, IsPrimary: up.IsPrimary == "true"}
	c.Images = append(c.Images, img)
	writeJSON(w, http.StatusOK, model.UploadedImage{ID: img.ID, FilePath: img.FilePath, URL: "/images/" + img.FilePath})
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captureN++
	if len(s.captures) > 0 {
		img := s.captures[0]
		s.captures = s.captures[1:]
		writeJSON(w, http.StatusOK, img)
		return
	}
	side := r.URL.Query().Get("side")
	ok := true
	writeJSON(w, http.StatusOK, model.CapturedImage{
		Success:  true,
		FilePath: fmt.Sprintf("captures/%s-%d.jpg", side, s.captureN),
		Side:     &model.SideDetection{Label: side},
		Quality:  model.Quality{OK: &ok},
	})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req model.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzed = append(s.analyzed, req)
	writeJSON(w, http.StatusOK, s.analysis)
}

func (s *Server) estimate(w http.ResponseWriter, r *http.Request, c *model.Coin) {
	low, avg, high := 35.0, 48.0, 60.0
	v := model.Valuation{
		ID:                 uuid.NewString(),
		EstimatedValueLow:  &low,
		EstimatedValueAvg:  &avg,
		EstimatedValueHigh: &high,
		Currency:           "USD",
		MarketDemand:       "moderate",
		RecentSalesData:    map[string]any{"formatted_response": "Comparable sales average $48."},
	}
	c.Valuations = append(c.Valuations, v)
	writeJSON(w, http.StatusOK, model.EstimateResponse{Success: true, Valuation: &v, ValuationID: v.ID, FormattedResponse: "Comparable sales average $48."})
}

func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	var req model.ListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		writeJSON(w, s.listErr.StatusCode, map[string]any{"detail": s.listErr.Detail})
		return
	}
	c, ok := s.coins[req.CoinID]
	if !ok {
		notFound(w, "Coin")
		return
	}
	s.listed = append(s.listed, req)
	s.listingID++
	c.IsForSale = true
	start, bin := req.StartingPrice, req.BuyItNowPrice
	writeJSON(w, http.StatusOK, model.Listing{
		ID:            strconv.Itoa(s.listingID),
		CoinID:        req.CoinID,
		EbayItemID:    "EB-" + strconv.Itoa(s.listingID),
		Title:         req.Title,
		Description:   req.Description,
		StartingPrice: &start,
		BuyItNowPrice: &bin,
		Status:        "active",
	})
}
