package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Coin is a coin record as owned by the backend.
type Coin struct {
	ID              string      `json:"id"`
	InventoryNumber string      `json:"inventory_number,omitempty"`
	Country         string      `json:"country,omitempty"`
	Denomination    string      `json:"denomination,omitempty"`
	Year            FlexInt     `json:"year,omitempty"`
	MintMark        string      `json:"mint_mark,omitempty"`
	Composition     string      `json:"composition,omitempty"`
	WeightGrams     *float64    `json:"weight_grams,omitempty"`
	DiameterMM      *float64    `json:"diameter_mm,omitempty"`
	ConditionGrade  string      `json:"condition_grade,omitempty"`
	CatalogNumber   string      `json:"catalog_number,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	IsForSale       bool        `json:"is_for_sale"`
	CreatedAt       Timestamp   `json:"created_at"`
	UpdatedAt       Timestamp   `json:"updated_at"`
	Images          []CoinImage `json:"images"`
	Analyses        []Analysis  `json:"analyses"`
	Valuations      []Valuation `json:"valuations"`
}

// CoinImage is an image attached to a coin. FilePath is relative to the
// backend's /images/ root.
type CoinImage struct {
	ID        string `json:"id"`
	FilePath  string `json:"file_path"`
	ImageType string `json:"image_type,omitempty"`
	IsPrimary bool   `json:"is_primary"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Analysis is a stored AI analysis of a coin.
type Analysis struct {
	ID                     string    `json:"id"`
	CreatedAt              Timestamp `json:"created_at"`
	IdentifiedCountry      string    `json:"identified_country,omitempty"`
	IdentifiedDenomination string    `json:"identified_denomination,omitempty"`
	IdentifiedYear         FlexInt   `json:"identified_year,omitempty"`
	AIGrade                string    `json:"ai_grade,omitempty"`
	WearLevel              string    `json:"wear_level,omitempty"`
	DetectedDefects        string    `json:"detected_defects,omitempty"`
	AuthenticityAssessment string    `json:"authenticity_assessment,omitempty"`
	AuthenticityConfidence *float64  `json:"authenticity_confidence,omitempty"`
}

// Valuation is a value estimate. Any of the estimates may be absent.
type Valuation struct {
	ID                 string         `json:"id,omitempty"`
	CreatedAt          Timestamp      `json:"created_at"`
	EstimatedValueLow  *float64       `json:"estimated_value_low,omitempty"`
	EstimatedValueAvg  *float64       `json:"estimated_value_avg,omitempty"`
	EstimatedValueHigh *float64       `json:"estimated_value_high,omitempty"`
	Currency           string         `json:"currency,omitempty"`
	MarketDemand       string         `json:"market_demand,omitempty"`
	ConfidenceLevel    string         `json:"confidence_level,omitempty"`
	RecentSalesData    map[string]any `json:"recent_sales_data,omitempty"`
}

// PricingNotes returns the free-text pricing explanation stored with the
// valuation, if any.
func (v *Valuation) PricingNotes() string {
	if v == nil || v.RecentSalesData == nil {
		return ""
	}
	s, _ := v.RecentSalesData["formatted_response"].(string)
	return s
}

// LatestValuation returns the current valuation, which is the last entry in
// the valuation history, or nil.
func (c *Coin) LatestValuation() *Valuation {
	if c == nil || len(c.Valuations) == 0 {
		return nil
	}
	return &c.Valuations[len(c.Valuations)-1]
}

// LatestAnalysis returns the last stored analysis, or nil.
func (c *Coin) LatestAnalysis() *Analysis {
	if c == nil || len(c.Analyses) == 0 {
		return nil
	}
	return &c.Analyses[len(c.Analyses)-1]
}

// ImageOf returns the first image of the given side, or nil.
func (c *Coin) ImageOf(side Side) *CoinImage {
	if c == nil {
		return nil
	}
	for i := range c.Images {
		if c.Images[i].ImageType == string(side) {
			return &c.Images[i]
		}
	}
	return nil
}

// Title is the display name of a coin.
func (c *Coin) Title() string {
	return strings.TrimSpace(c.Country + " " + c.Denomination)
}

// CoinSummary is a row of the coin list endpoint.
type CoinSummary struct {
	ID              string   `json:"id"`
	InventoryNumber string   `json:"inventory_number"`
	Country         string   `json:"country,omitempty"`
	Denomination    string   `json:"denomination,omitempty"`
	Year            FlexInt  `json:"year,omitempty"`
	ConditionGrade  string   `json:"condition_grade,omitempty"`
	PrimaryImage    string   `json:"primary_image,omitempty"`
	EstimatedValue  *float64 `json:"estimated_value,omitempty"`
	IsForSale       bool     `json:"is_for_sale"`
}

// CoinQuery holds the list filters. Zero values are omitted from the request.
type CoinQuery struct {
	Search         string
	Country        string
	ConditionGrade string
	Limit          int
	SortBy         string
	SortOrder      string
}

// Params encodes the query as request parameters.
func (q CoinQuery) Params() map[string]string {
	p := map[string]string{}
	if q.Search != "" {
		p["search"] = q.Search
	}
	if q.Country != "" {
		p["country"] = q.Country
	}
	if q.ConditionGrade != "" {
		p["condition_grade"] = q.ConditionGrade
	}
	if q.Limit > 0 {
		p["limit"] = strconv.Itoa(q.Limit)
	}
	if q.SortBy != "" {
		p["sort_by"] = q.SortBy
	}
	if q.SortOrder != "" {
		p["sort_order"] = q.SortOrder
	}
	return p
}

// CoinDraft is the editable copy of a coin record held by the console until
// it is saved. A zero Year means unknown.
type CoinDraft struct {
	Country        string `json:"country"`
	Denomination   string `json:"denomination"`
	Year           int    `json:"year"`
	MintMark       string `json:"mint_mark"`
	Composition    string `json:"composition"`
	ConditionGrade string `json:"condition_grade"`
	Notes          string `json:"notes"`
}

// CoinInput is the create/update request body.
type CoinInput struct {
	Country        string `json:"country,omitempty"`
	Denomination   string `json:"denomination,omitempty"`
	Year           *int   `json:"year,omitempty"`
	MintMark       string `json:"mint_mark,omitempty"`
	Composition    string `json:"composition,omitempty"`
	ConditionGrade string `json:"condition_grade,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// Input converts the draft to a request body.
func (d CoinDraft) Input() CoinInput {
	in := CoinInput{
		Country:        d.Country,
		Denomination:   d.Denomination,
		MintMark:       d.MintMark,
		Composition:    d.Composition,
		ConditionGrade: d.ConditionGrade,
		Notes:          d.Notes,
	}
	if d.Year != 0 {
		year := d.Year
		in.Year = &year
	}
	return in
}

// DraftOf copies the editable fields of a coin.
func DraftOf(c *Coin) CoinDraft {
	if c == nil {
		return CoinDraft{}
	}
	return CoinDraft{
		Country:        c.Country,
		Denomination:   c.Denomination,
		Year:           int(c.Year),
		MintMark:       c.MintMark,
		Composition:    c.Composition,
		ConditionGrade: c.ConditionGrade,
		Notes:          c.Notes,
	}
}

// CoinStats is the response of the coin statistics endpoint.
type CoinStats struct {
	TotalImages        int        `json:"total_images"`
	TotalAnalyses      int        `json:"total_analyses"`
	TotalValuations    int        `json:"total_valuations"`
	EbayListings       int        `json:"ebay_listings"`
	LatestValuation    *float64   `json:"latest_valuation,omitempty"`
	LatestAnalysisDate *Timestamp `json:"latest_analysis_date,omitempty"`
}

// SimilarCoin is one entry of the similar-coins response.
type SimilarCoin struct {
	ID             string   `json:"id"`
	Country        string   `json:"country,omitempty"`
	Denomination   string   `json:"denomination,omitempty"`
	Year           FlexInt  `json:"year,omitempty"`
	ConditionGrade string   `json:"condition_grade,omitempty"`
	PrimaryImage   string   `json:"primary_image,omitempty"`
	EstimatedValue *float64 `json:"estimated_value,omitempty"`
}

// UploadedImage is the response of an image upload.
type UploadedImage struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
	URL      string `json:"url"`
}

// ImageUpload describes one multipart image upload.
type ImageUpload struct {
	Data        []byte
	FileName    string
	ContentType string
	Side        Side
}

// Primary reports whether the image is the coin's primary image.
// Only the obverse is primary.
func (u ImageUpload) Primary() bool {
	return u.Side == SideObverse
}

// FlexInt decodes a JSON number, a numeric string, or null. Anything that is
// not a whole number decodes to zero. Model output is not reliably typed.
type FlexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		fl, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil || fl != float64(int(fl)) {
			*f = 0
			return nil
		}
		n = int(fl)
	}
	*f = FlexInt(n)
	return nil
}

// String renders zero as the empty string.
func (f FlexInt) String() string {
	if f == 0 {
		return ""
	}
	return strconv.Itoa(int(f))
}
