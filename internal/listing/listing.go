// Package listing derives marketplace listing drafts from coin records and
// submits them.
package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/erazemk/nomisma/internal/backend"
	"github.com/erazemk/nomisma/internal/model"
)

// Listing limits and defaults.
const (
	MaxTitleLength       = 80
	DefaultStartingPrice = 10.0
	DefaultBuyItNowPrice = 20.0
)

// GenericFailure is shown when a failed submission carries no message.
const GenericFailure = "eBay listing failed."

// ErrInvalid wraps draft validation failures.
var ErrInvalid = errors.New("invalid listing")

// NewDraft derives a listing draft from a coin and its latest valuation.
func NewDraft(c *model.Coin) model.ListingDraft {
	d := model.ListingDraft{
		Title:         Title(c),
		Description:   Description(c),
		StartingPrice: DefaultStartingPrice,
		BuyItNowPrice: DefaultBuyItNowPrice,
	}
	if v := c.LatestValuation(); v != nil {
		if v.EstimatedValueLow != nil && *v.EstimatedValueLow > 0 {
			d.StartingPrice = *v.EstimatedValueLow
		}
		if v.EstimatedValueAvg != nil && *v.EstimatedValueAvg > 0 {
			d.BuyItNowPrice = *v.EstimatedValueAvg
		}
	}
	return d
}

// Title formats "{year} {country} {denomination} - {condition_grade}",
// skipping missing parts and cut to MaxTitleLength characters.
func Title(c *model.Coin) string {
	if c == nil {
		return ""
	}
	title := collapse(fmt.Sprintf("%s %s %s", c.Year, c.Country, c.Denomination))
	if grade := strings.TrimSpace(c.ConditionGrade); grade != "" {
		if title == "" {
			title = grade
		} else {
			title += " - " + grade
		}
	}
	return Truncate(title, MaxTitleLength)
}

// Description formats "{country} {denomination} from {year}. Condition:
// {grade}. {notes}", skipping missing parts.
func Description(c *model.Coin) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(collapse(c.Country + " " + c.Denomination))
	if c.Year != 0 {
		b.WriteString(" from " + c.Year.String())
	}
	b.WriteString(".")
	if grade := strings.TrimSpace(c.ConditionGrade); grade != "" {
		b.WriteString(" Condition: " + grade + ".")
	}
	if notes := strings.TrimSpace(c.Notes); notes != "" {
		b.WriteString(" " + notes)
	}
	return strings.TrimSpace(strings.TrimPrefix(b.String(), "."))
}

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

// Validate checks a draft before submission.
func Validate(d model.ListingDraft) error {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if n := utf8.RuneCountInString(title); n > MaxTitleLength {
		return fmt.Errorf("%w: title is %d characters, the limit is %d", ErrInvalid, n, MaxTitleLength)
	}
	if d.StartingPrice <= 0 {
		return fmt.Errorf("%w: starting price must be positive", ErrInvalid)
	}
	if d.BuyItNowPrice < 0 {
		return fmt.Errorf("%w: buy it now price must not be negative", ErrInvalid)
	}
	if d.BuyItNowPrice > 0 && d.BuyItNowPrice < d.StartingPrice {
		return fmt.Errorf("%w: buy it now price is below the starting price", ErrInvalid)
	}
	return nil
}

// ErrorMessage extracts the message to show for a failed submission:
// detail.error, then detail.message, then GenericFailure.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrInvalid) {
		return err.Error()
	}
	if he, ok := backend.AsHTTPError(err); ok {
		if msg := he.DetailString("error"); msg != "" {
			return msg
		}
		if msg := he.DetailString("message"); msg != "" {
			return msg
		}
	}
	return GenericFailure
}

// Lister creates marketplace listings.
type Lister interface {
	CreateListing(ctx context.Context, req model.ListingRequest) (*model.Listing, error)
}

// Submit validates d and lists coinID with it.
func Submit(ctx context.Context, l Lister, coinID string, d model.ListingDraft) (*model.Listing, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	if err := Validate(d); err != nil {
		return nil, err
	}
	listing, err := l.CreateListing(ctx, model.ListingRequest{CoinID: coinID, ListingDraft: d})
	if err != nil {
		return nil, fmt.Errorf("listing coin %s: %w", coinID, err)
	}
	return listing, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
