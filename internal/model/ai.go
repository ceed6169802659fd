package model

// AnalyzeRequest asks the backend to analyze an image. CoinID tags the
// analysis to a stored coin.
type AnalyzeRequest struct {
	ImagePath string `json:"image_path"`
	CoinID    string `json:"coin_id,omitempty"`
}

// Identification is the identity part of an analysis.
type Identification struct {
	Country      string  `json:"country,omitempty"`
	Denomination string  `json:"denomination,omitempty"`
	Year         FlexInt `json:"year,omitempty"`
	MintMark     string  `json:"mint_mark,omitempty"`
	Composition  string  `json:"composition,omitempty"`
}

// Condition is the grading part of an analysis.
type Condition struct {
	Grade          string `json:"grade,omitempty"`
	WearLevel      string `json:"wear_level,omitempty"`
	SurfaceQuality string `json:"surface_quality,omitempty"`
}

// Authenticity is the authenticity verdict of an analysis.
type Authenticity struct {
	Assessment string   `json:"assessment,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AnalysisResult is the model output for a single image.
type AnalysisResult struct {
	Identification         Identification `json:"identification"`
	Condition              Condition      `json:"condition"`
	Authenticity           *Authenticity  `json:"authenticity,omitempty"`
	AuthenticityAssessment string         `json:"authenticity_assessment,omitempty"`
	AuthenticityConfidence *float64       `json:"authenticity_confidence,omitempty"`
}

// Assessment returns the authenticity verdict from whichever field carries it.
func (a *AnalysisResult) Assessment() (string, *float64) {
	if a == nil {
		return "", nil
	}
	if a.AuthenticityAssessment != "" {
		return a.AuthenticityAssessment, a.AuthenticityConfidence
	}
	if a.Authenticity != nil {
		return a.Authenticity.Assessment, a.Authenticity.Confidence
	}
	return "", nil
}

// AnalyzeResponse is the response of the analyze endpoint. Success=false is a
// business failure reported with HTTP 200.
type AnalyzeResponse struct {
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	Analysis      *AnalysisResult `json:"analysis,omitempty"`
	AnalysisID    string          `json:"analysis_id,omitempty"`
	CoinUpdated   bool            `json:"coin_updated,omitempty"`
	Valuation     *Valuation      `json:"valuation,omitempty"`
	ValuationText string          `json:"valuation_text,omitempty"`
}

// EstimateResponse is the response of the value estimation endpoint.
type EstimateResponse struct {
	Success           bool       `json:"success"`
	Error             string     `json:"error,omitempty"`
	Valuation         *Valuation `json:"valuation,omitempty"`
	ValuationID       string     `json:"valuation_id,omitempty"`
	FormattedResponse string     `json:"formatted_response,omitempty"`
	ModelVersion      string     `json:"model_version,omitempty"`
}

// SimilarResponse is the response of the similar-coins endpoint.
type SimilarResponse struct {
	Success      bool          `json:"success"`
	SimilarCoins []SimilarCoin `json:"similar_coins"`
	Count        int           `json:"count"`
}
