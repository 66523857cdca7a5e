package models

import (
	"time"

	"github.com/lib/pq"
)

// Listing is a persisted lease listing belonging to one seller.
// Make/model/variant are the identity attributes the matcher keys on.
type Listing struct {
	ID             string  `json:"id" db:"id"`
	TenantID       string  `json:"tenant_id" db:"tenant_id"`
	SellerID       string  `json:"seller_id" db:"seller_id"`
	MakeID         string  `json:"make_id" db:"make_id"`
	ModelID        string  `json:"model_id" db:"model_id"`
	MakeName       string  `json:"make_name" db:"make_name"`
	ModelName      string  `json:"model_name" db:"model_name"`
	Variant        string  `json:"variant" db:"variant"`
	Horsepower     *int    `json:"horsepower,omitempty" db:"horsepower"`
	FuelTypeID     *string `json:"fuel_type_id,omitempty" db:"fuel_type_id"`
	TransmissionID *string `json:"transmission_id,omitempty" db:"transmission_id"`
	BodyTypeID     *string `json:"body_type_id,omitempty" db:"body_type_id"`
	Seats          *int    `json:"seats,omitempty" db:"seats"`
	Doors          *int    `json:"doors,omitempty" db:"doors"`
	Year           *int    `json:"year,omitempty" db:"year"`
	Mileage        *int    `json:"mileage,omitempty" db:"mileage"`
	WltpKmPerUnit  *float64 `json:"wltp_km_per_unit,omitempty" db:"wltp_km_per_unit"`
	CO2Emission    *int    `json:"co2_emission,omitempty" db:"co2_emission"`

	IsDraft       bool           `json:"is_draft" db:"is_draft"`
	MissingFields pq.StringArray `json:"missing_fields,omitempty" db:"missing_fields"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`

	// Offers are loaded separately; they are replaced wholesale, never patched
	Offers []LeaseOffer `json:"offers,omitempty" db:"-"`
}

// LeaseOffer is one pricing option on a listing
type LeaseOffer struct {
	ID             string    `json:"id" db:"id"`
	ListingID      string    `json:"listing_id" db:"listing_id"`
	MonthlyPrice   int       `json:"monthly_price" db:"monthly_price"`
	FirstPayment   *int      `json:"first_payment,omitempty" db:"first_payment"`
	PeriodMonths   *int      `json:"period_months,omitempty" db:"period_months"`
	MileagePerYear *int      `json:"mileage_per_year,omitempty" db:"mileage_per_year"`
	TotalPrice     *int      `json:"total_price,omitempty" db:"total_price"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// ListingListResponse is the response for listing queries
type ListingListResponse struct {
	Items      []Listing `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
