package model

import "time"

// ObservedLot is a normalized auction listing produced by the scraper
// subsystem (or any other untrusted collaborator). The audit engine consumes
// it opaquely: nothing in here is trusted until it survives the
// discrepancy/trust pipeline.
type ObservedLot struct {
	Source        string    `json:"source"` // e.g. "cng", "heritage", "llm"
	LotID         string    `json:"lot_id"`
	URL           string    `json:"url,omitempty"`
	SaleDate      time.Time `json:"sale_date,omitempty"`
	PriceRealized float64   `json:"price_realized,omitempty"`
	Currency      string    `json:"currency,omitempty"`

	// Attribution as claimed by the listing.
	Issuer       string `json:"issuer,omitempty"`
	Mint         string `json:"mint,omitempty"`
	Denomination string `json:"denomination,omitempty"`
	MintYear     int    `json:"mint_year,omitempty"` // negative = BC, 0 = unstated

	// Physical claims.
	WeightG    float64 `json:"weight_g,omitempty"`
	DiameterMM float64 `json:"diameter_mm,omitempty"`
	AxisH      int     `json:"axis_h,omitempty"`

	Grade     string   `json:"grade,omitempty"`
	Citations []string `json:"citations,omitempty"` // raw reference strings from the lot description
	Images    []string `json:"images,omitempty"`
}
