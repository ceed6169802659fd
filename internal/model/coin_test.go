package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFlexIntUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want FlexInt
	}{
		{`1921`, 1921},
		{`"1921"`, 1921},
		{`" 1964 "`, 1964},
		{`1921.0`, 1921},
		{`1921.5`, 0},
		{`null`, 0},
		{`"unknown"`, 0},
		{`""`, 0},
	}

	for _, tt := range tests {
		var got FlexInt
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFlexIntString(t *testing.T) {
	if s := FlexInt(0).String(); s != "" {
		t.Errorf("FlexInt(0).String() = %q, want empty", s)
	}
	if s := FlexInt(1879).String(); s != "1879" {
		t.Errorf("FlexInt(1879).String() = %q", s)
	}
}

func TestTimestampUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{`"2024-03-01T10:20:30Z"`, time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{`"2024-03-01T10:20:30.5"`, time.Date(2024, 3, 1, 10, 20, 30, 500000000, time.UTC)},
		{`"2024-03-01 10:20:30"`, time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{`"2024-03-01"`, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{`null`, time.Time{}},
		{`"garbage"`, time.Time{}},
	}

	for _, tt := range tests {
		var got Timestamp
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, got.Time, tt.want)
		}
	}
}

func TestCoinDecodesBackendRecord(t *testing.T) {
	body := `{
		"id": "c-1",
		"country": "Austria",
		"denomination": "1 Krone",
		"year": "1893",
		"created_at": "2024-01-02T03:04:05.123456",
		"images": [
			{"id": "i-1", "file_path": "coins/a.jpg", "image_type": "obverse", "is_primary": true},
			{"id": "i-2", "file_path": "coins/b.jpg", "image_type": "reverse"}
		],
		"valuations": [
			{"estimated_value_low": 5, "estimated_value_avg": 8},
			{"estimated_value_low": 12, "estimated_value_avg": 18, "recent_sales_data": {"formatted_response": "steady demand"}}
		]
	}`

	var c Coin
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if c.Year != 1893 {
		t.Errorf("Year = %d, want 1893", c.Year)
	}
	if c.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
	if img := c.ImageOf(SideReverse); img == nil || img.FilePath != "coins/b.jpg" {
		t.Errorf("ImageOf(reverse) = %+v", img)
	}

	v := c.LatestValuation()
	if v == nil || v.EstimatedValueLow == nil || *v.EstimatedValueLow != 12 {
		t.Fatalf("LatestValuation() = %+v, want last entry", v)
	}
	if v.PricingNotes() != "steady demand" {
		t.Errorf("PricingNotes() = %q", v.PricingNotes())
	}
	if c.LatestAnalysis() != nil {
		t.Error("LatestAnalysis() should be nil without analyses")
	}
}

func TestCoinDraftInput(t *testing.T) {
	in := CoinDraft{Country: "France", Denomination: "10 Francs"}.Input()
	if in.Year != nil {
		t.Errorf("Year = %v, want omitted for unknown", *in.Year)
	}

	in = CoinDraft{Year: 1965}.Input()
	if in.Year == nil || *in.Year != 1965 {
		t.Errorf("Year = %v, want 1965", in.Year)
	}

	data, err := json.Marshal(CoinDraft{Country: "Spain"}.Input())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"country":"Spain"}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestCoinQueryParams(t *testing.T) {
	p := CoinQuery{Search: "krone", Limit: 25}.Params()
	if len(p) != 2 || p["search"] != "krone" || p["limit"] != "25" {
		t.Errorf("Params() = %v", p)
	}
	if p := (CoinQuery{}).Params(); len(p) != 0 {
		t.Errorf("empty query Params() = %v", p)
	}
}

func TestImageUploadPrimary(t *testing.T) {
	if !(ImageUpload{Side: SideObverse}).Primary() {
		t.Error("obverse should be primary")
	}
	if (ImageUpload{Side: SideReverse}).Primary() {
		t.Error("reverse should not be primary")
	}
}
