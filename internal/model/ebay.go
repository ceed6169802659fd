package model

// ListingDraft holds the fields of a marketplace listing before submission.
type ListingDraft struct {
	Title         string  `json:"listing_title"`
	Description   string  `json:"listing_description"`
	StartingPrice float64 `json:"starting_price"`
	BuyItNowPrice float64 `json:"buy_it_now_price"`
}

// ListingRequest is the body of the create-listing call.
type ListingRequest struct {
	CoinID string `json:"coin_id"`
	ListingDraft
}

// Listing is a marketplace listing stored by the backend.
type Listing struct {
	ID            string     `json:"id"`
	CoinID        string     `json:"coin_id"`
	EbayItemID    string     `json:"ebay_item_id,omitempty"`
	Title         string     `json:"listing_title"`
	Description   string     `json:"listing_description,omitempty"`
	StartingPrice *float64   `json:"starting_price,omitempty"`
	BuyItNowPrice *float64   `json:"buy_it_now_price,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     Timestamp  `json:"created_at"`
	ListedAt      *Timestamp `json:"listed_at,omitempty"`
}

// ListingsResponse is the response of the per-coin listings endpoint.
type ListingsResponse struct {
	Success  bool      `json:"success"`
	Listings []Listing `json:"listings"`
	Count    int       `json:"count"`
}

// ListingStatus is the marketplace status of a listed item. The backend
// passes through marketplace fields, so unknown keys are kept in Raw.
type ListingStatus struct {
	Success bool           `json:"success"`
	ItemID  string         `json:"item_id,omitempty"`
	Status  string         `json:"status,omitempty"`
	Raw     map[string]any `json:"-"`
}

// Category is a marketplace category.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CategoriesResponse is the response of the categories endpoint.
type CategoriesResponse struct {
	Categories []Category `json:"categories"`
}

// Health is the backend liveness response.
type Health struct {
	Status string `json:"status"`
}
