package audit

import (
	"strings"

	"github.com/mintmark-dev/mintmark/internal/model"
)

// attributionStrategy compares who and where. Attribution is historical
// judgment rather than measurement, so mismatches are flagged at moderate
// confidence.
type attributionStrategy struct{}

func (s *attributionStrategy) Name() string { return "attribution" }

const attributionConfidence = 0.7

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (s *attributionStrategy) Audit(sp *model.Specimen, lot model.ObservedLot) ([]Discrepancy, error) {
	var out []Discrepancy

	if sp.Attribution.Issuer != "" && lot.Issuer != "" && !sameName(sp.Attribution.Issuer, lot.Issuer) {
		out = append(out, Discrepancy{
			Field:      "issuer",
			Current:    sp.Attribution.Issuer,
			Observed:   lot.Issuer,
			Confidence: attributionConfidence,
		})
	}

	if sp.Attribution.Mint != "" && lot.Mint != "" && !sameName(sp.Attribution.Mint, lot.Mint) {
		out = append(out, Discrepancy{
			Field:      "mint",
			Current:    sp.Attribution.Mint,
			Observed:   lot.Mint,
			Confidence: attributionConfidence,
		})
	}

	if sp.Attribution.Denomination != "" && lot.Denomination != "" &&
		!sameName(sp.Attribution.Denomination, lot.Denomination) {
		out = append(out, Discrepancy{
			Field:      "denomination",
			Current:    sp.Attribution.Denomination,
			Observed:   lot.Denomination,
			Confidence: attributionConfidence,
		})
	}

	return out, nil
}
