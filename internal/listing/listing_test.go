package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/model"
)

func f(v float64) *float64 { return &v }

func sampleCoin() *model.Coin {
	return &model.Coin{
		ID:             "c-1",
		Country:        "Austria",
		Denomination:   "1 Krone",
		Year:           1893,
		ConditionGrade: "Very Fine",
		Notes:          "Light toning.",
	}
}

func TestNewDraftDefaults(t *testing.T) {
	d := NewDraft(sampleCoin())
	assert.Equal(t, "1893 Austria 1 Krone - Very Fine", d.Title)
	assert.Equal(t, "Austria 1 Krone from 1893. Condition: Very Fine. Light toning.", d.Description)
	assert.Equal(t, 10.0, d.StartingPrice)
	assert.Equal(t, 20.0, d.BuyItNowPrice)
}

func TestNewDraftUsesLatestValuation(t *testing.T) {
	c := sampleCoin()
	c.Valuations = []model.Valuation{
		{EstimatedValueLow: f(1), EstimatedValueAvg: f(2)},
		{EstimatedValueLow: f(35.5), EstimatedValueAvg: f(48)},
	}
	d := NewDraft(c)
	assert.Equal(t, 35.5, d.StartingPrice)
	assert.Equal(t, 48.0, d.BuyItNowPrice)
}

func TestNewDraftPartialValuation(t *testing.T) {
	c := sampleCoin()
	c.Valuations = []model.Valuation{{EstimatedValueAvg: f(30)}}
	d := NewDraft(c)
	assert.Equal(t, 10.0, d.StartingPrice)
	assert.Equal(t, 30.0, d.BuyItNowPrice)

	c.Valuations = []model.Valuation{{EstimatedValueLow: f(0), EstimatedValueAvg: f(0)}}
	d = NewDraft(c)
	assert.Equal(t, 10.0, d.StartingPrice)
	assert.Equal(t, 20.0, d.BuyItNowPrice)
}

func TestTitleMissingParts(t *testing.T) {
	tests := []struct {
		coin model.Coin
		want string
	}{
		{model.Coin{Country: "Peru", Denomination: "1 Sol", ConditionGrade: "Fine"}, "Peru 1 Sol - Fine"},
		{model.Coin{Year: 1900, Country: "Peru"}, "1900 Peru"},
		{model.Coin{ConditionGrade: "Good"}, "Good"},
		{model.Coin{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Title(&tt.coin))
	}
}

func TestTitleTruncated(t *testing.T) {
	c := sampleCoin()
	c.Denomination = strings.Repeat("Ducat ", 20)
	title := Title(c)
	assert.LessOrEqual(t, len([]rune(title)), MaxTitleLength)
	assert.True(t, strings.HasPrefix(title, "1893 Austria Ducat"))

	assert.Equal(t, "ÄÖÜ", Truncate("ÄÖÜßß", 3))
	assert.Equal(t, "short", Truncate("short", 80))
}

func TestDescriptionMissingParts(t *testing.T) {
	assert.Equal(t, "Peru 1 Sol.", Description(&model.Coin{Country: "Peru", Denomination: "1 Sol"}))
	assert.Equal(t, "Peru from 1900. Condition: Fine.", Description(&model.Coin{Country: "Peru", Year: 1900, ConditionGrade: "Fine"}))
	assert.Equal(t, "", Description(&model.Coin{}))
}

func TestValidate(t *testing.T) {
	ok := model.ListingDraft{Title: "1893 Austria 1 Krone", StartingPrice: 10, BuyItNowPrice: 20}
	assert.NoError(t, Validate(ok))

	noBIN := ok
	noBIN.BuyItNowPrice = 0
	assert.NoError(t, Validate(noBIN))

	for name, d := range map[string]model.ListingDraft{
		"empty title":     {Title: "  ", StartingPrice: 10},
		"long title":      {Title: strings.Repeat("x", 81), StartingPrice: 10},
		"zero start":      {Title: "t", StartingPrice: 0},
		"negative bin":    {Title: "t", StartingPrice: 5, BuyItNowPrice: -1},
		"bin below start": {Title: "t", StartingPrice: 50, BuyItNowPrice: 20},
	} {
		err := Validate(d)
		assert.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestErrorMessage(t *testing.T) {
	detailErr := &backend.HTTPError{StatusCode: http.StatusBadRequest, Detail: map[string]any{"error": "Category required"}}
	assert.Equal(t, "Category required", ErrorMessage(fmt.Errorf("listing coin: %w", detailErr)))

	detailMsg := &backend.HTTPError{StatusCode: http.StatusBadRequest, Detail: map[string]any{"message": "Token expired"}}
	assert.Equal(t, "Token expired", ErrorMessage(detailMsg))

	both := &backend.HTTPError{StatusCode: http.StatusBadRequest, Detail: map[string]any{"error": "first", "message": "second"}}
	assert.Equal(t, "first", ErrorMessage(both))

	stringDetail := &backend.HTTPError{StatusCode: http.StatusInternalServerError, Detail: "Failed to create eBay listing: boom"}
	assert.Equal(t, GenericFailure, ErrorMessage(stringDetail))

	assert.Equal(t, GenericFailure, ErrorMessage(errors.New("connection refused")))
	assert.Equal(t, "", ErrorMessage(nil))

	invalid := Validate(model.ListingDraft{})
	assert.Contains(t, ErrorMessage(invalid), "title is required")
}

type fakeLister struct {
	got model.ListingRequest
	err error
}

func (f *fakeLister) CreateListing(ctx context.Context, req model.ListingRequest) (*model.Listing, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &model.Listing{ID: "l-1", CoinID: req.CoinID, EbayItemID: "EB-9", Status: "active"}, nil
}

func TestSubmit(t *testing.T) {
	l := &fakeLister{}
	d := NewDraft(sampleCoin())
	d.Title = "  " + d.Title + "  "

	listing, err := Submit(context.Background(), l, "c-1", d)
	require.NoError(t, err)
	assert.Equal(t, "EB-9", listing.EbayItemID)
	assert.Equal(t, "c-1", l.got.CoinID)
	assert.Equal(t, "1893 Austria 1 Krone - Very Fine", l.got.Title)
}

func TestSubmitInvalidSendsNothing(t *testing.T) {
	l := &fakeLister{}
	_, err := Submit(context.Background(), l, "c-1", model.ListingDraft{})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, l.got.CoinID)
}

func TestSubmitBackendError(t *testing.T) {
	l := &fakeLister{err: &backend.HTTPError{StatusCode: http.StatusBadGateway, Detail: map[string]any{"error": "Category required"}}}
	_, err := Submit(context.Background(), l, "c-1", NewDraft(sampleCoin()))
	require.Error(t, err)
	assert.Equal(t, "Category required", ErrorMessage(err))
}
