package model

import "time"

// Specimen is the authoritative record for one coin in the collection.
// Its sub-structures are value types: corrections derive a new copy via the
// WithX methods rather than mutating in place, so a half-applied update is
// never observable.
type Specimen struct {
	ID          int64       `json:"id"`
	Attribution Attribution `json:"attribution"`
	Grading     Grading     `json:"grading"`
	Physical    Physical    `json:"physical"`
	Design      Design      `json:"design"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Attribution identifies who struck the coin, where, and when.
type Attribution struct {
	Issuer       string `json:"issuer"`
	Mint         string `json:"mint,omitempty"`
	Denomination string `json:"denomination,omitempty"`
	Material     string `json:"material,omitempty"`
	YearFrom     int    `json:"year_from,omitempty"` // negative = BC
	YearTo       int    `json:"year_to,omitempty"`
}

// WithIssuer returns a copy with the issuer replaced.
func (a Attribution) WithIssuer(v string) Attribution {
	a.Issuer = v
	return a
}

// WithMint returns a copy with the mint replaced.
func (a Attribution) WithMint(v string) Attribution {
	a.Mint = v
	return a
}

// WithDenomination returns a copy with the denomination replaced.
func (a Attribution) WithDenomination(v string) Attribution {
	a.Denomination = v
	return a
}

// WithMaterial returns a copy with the material replaced.
func (a Attribution) WithMaterial(v string) Attribution {
	a.Material = v
	return a
}

// WithYears returns a copy with the issue year range replaced. A zero yearTo
// is normalized to yearFrom so the range invariant (from <= to) holds.
func (a Attribution) WithYears(from, to int) Attribution {
	if to == 0 {
		to = from
	}
	a.YearFrom = from
	a.YearTo = to
	return a
}

// Grading holds the condition assessment.
type Grading struct {
	Grade   string `json:"grade,omitempty"`
	Service string `json:"service,omitempty"` // grading service, empty for raw coins
	Notes   string `json:"notes,omitempty"`
}

// WithGrade returns a copy with the grade replaced.
func (g Grading) WithGrade(v string) Grading {
	g.Grade = v
	return g
}

// WithService returns a copy with the grading service replaced.
func (g Grading) WithService(v string) Grading {
	g.Service = v
	return g
}

// Physical holds measured facts about the flan.
type Physical struct {
	WeightG    float64 `json:"weight_g,omitempty"`
	DiameterMM float64 `json:"diameter_mm,omitempty"`
	AxisH      int     `json:"axis_h,omitempty"` // die axis in clock hours, 0 = unrecorded
}

// WithWeight returns a copy with the weight replaced.
func (p Physical) WithWeight(v float64) Physical {
	p.WeightG = v
	return p
}

// WithDiameter returns a copy with the diameter replaced.
func (p Physical) WithDiameter(v float64) Physical {
	p.DiameterMM = v
	return p
}

// WithAxis returns a copy with the die axis replaced.
func (p Physical) WithAxis(v int) Physical {
	p.AxisH = v
	return p
}

// Design describes the two faces.
type Design struct {
	ObverseLegend      string `json:"obverse_legend,omitempty"`
	ObverseDescription string `json:"obverse_description,omitempty"`
	ReverseLegend      string `json:"reverse_legend,omitempty"`
	ReverseDescription string `json:"reverse_description,omitempty"`
}

// WithObverse returns a copy with the obverse legend and description replaced.
func (d Design) WithObverse(legend, description string) Design {
	d.ObverseLegend = legend
	d.ObverseDescription = description
	return d
}

// WithReverse returns a copy with the reverse legend and description replaced.
func (d Design) WithReverse(legend, description string) Design {
	d.ReverseLegend = legend
	d.ReverseDescription = description
	return d
}
