package models

// CarbonIntensity is the body returned by the carbon-intensity/latest endpoint.
// CarbonIntensity is a pointer so a body without the field can be told apart from a zero reading.
type CarbonIntensity struct {
	Zone               string   `json:"zone"`
	CarbonIntensity    *float64 `json:"carbonIntensity"`
	Datetime           string   `json:"datetime"`
	UpdatedAt          string   `json:"updatedAt"`
	EmissionFactorType string   `json:"emissionFactorType,omitempty"`
	IsEstimated        bool     `json:"isEstimated"`
}

// Reading is the normalised result of one upstream call. Value is 0 whenever StatusCode is not 200.
type Reading struct {
	Value      float64
	StatusCode int
}
