package models

// ExtractedVehicle is one candidate row produced by the external PDF
// extraction pipeline. Candidates carry no identity; they live only for
// the duration of one comparison pass.
type ExtractedVehicle struct {
	Make         string   `json:"make" validate:"required"`
	Model        string   `json:"model" validate:"required"`
	Variant      string   `json:"variant"`
	Horsepower   *int     `json:"horsepower,omitempty"`
	FuelType     string   `json:"fuel_type,omitempty"`
	Transmission string   `json:"transmission,omitempty"`
	BodyType     string   `json:"body_type,omitempty"`
	Seats        *int     `json:"seats,omitempty"`
	Doors        *int     `json:"doors,omitempty"`
	Year         *int     `json:"year,omitempty"`
	Mileage      *int     `json:"mileage,omitempty"`
	WltpKmPerUnit *float64 `json:"wltp_km_per_unit,omitempty"`
	CO2Emission  *int     `json:"co2_emission,omitempty"`

	Offers []ExtractedOffer `json:"offers,omitempty"`
}

// ExtractedOffer is one extracted pricing option
type ExtractedOffer struct {
	MonthlyPrice   int  `json:"monthly_price" validate:"required"`
	FirstPayment   *int `json:"first_payment,omitempty"`
	PeriodMonths   *int `json:"period_months,omitempty"`
	MileagePerYear *int `json:"mileage_per_year,omitempty"`
	TotalPrice     *int `json:"total_price,omitempty"`
}

// ExtractionMetadata is pass-through accounting from the extraction
// pipeline, persisted on the session row for cost reporting.
type ExtractionMetadata struct {
	CostCents    *int   `json:"cost_cents,omitempty"`
	TokensUsed   *int   `json:"tokens_used,omitempty"`
	ProcessingMS *int64 `json:"processing_ms,omitempty"`
}
