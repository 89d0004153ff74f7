package audit

import (
	"math"

	"github.com/mintmark-dev/mintmark/internal/model"
)

const (
	defaultWeightTolG    = 0.05
	defaultDiameterTolMM = 0.5
)

// physicsStrategy compares measured facts. Measurements are objective, so a
// difference beyond tolerance is flagged at full confidence. A difference
// exactly at the tolerance is measurement noise, not a discrepancy.
type physicsStrategy struct {
	weightTolG    float64
	diameterTolMM float64
}

func (s *physicsStrategy) Name() string { return "physics" }

func (s *physicsStrategy) Audit(sp *model.Specimen, lot model.ObservedLot) ([]Discrepancy, error) {
	var out []Discrepancy

	if sp.Physical.WeightG != 0 && lot.WeightG != 0 {
		if math.Abs(sp.Physical.WeightG-lot.WeightG) > s.weightTolG {
			out = append(out, Discrepancy{
				Field:      "weight_g",
				Current:    sp.Physical.WeightG,
				Observed:   lot.WeightG,
				Confidence: 1.0,
			})
		}
	}

	if sp.Physical.DiameterMM != 0 && lot.DiameterMM != 0 {
		if math.Abs(sp.Physical.DiameterMM-lot.DiameterMM) > s.diameterTolMM {
			out = append(out, Discrepancy{
				Field:      "diameter_mm",
				Current:    sp.Physical.DiameterMM,
				Observed:   lot.DiameterMM,
				Confidence: 1.0,
			})
		}
	}

	// Die axis is read off the coin in clock hours; any difference is a
	// disagreement, not noise.
	if sp.Physical.AxisH != 0 && lot.AxisH != 0 && sp.Physical.AxisH != lot.AxisH {
		out = append(out, Discrepancy{
			Field:      "axis_h",
			Current:    sp.Physical.AxisH,
			Observed:   lot.AxisH,
			Confidence: 1.0,
		})
	}

	return out, nil
}
