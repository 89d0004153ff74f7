package audit

import (
	"strings"

	"github.com/mintmark-dev/mintmark/internal/model"
)

// gradeStrategy compares condition assessments after normalizing the usual
// notation noise ("Good VF" vs "gVF"). Grading is a judgment call between
// observers, so mismatches carry modest confidence.
type gradeStrategy struct{}

func (s *gradeStrategy) Name() string { return "grade" }

var gradeAliases = map[string]string{
	"poor": "p", "fair": "fr", "good": "g", "very good": "vg",
	"fine": "f", "very fine": "vf", "extremely fine": "ef", "xf": "ef",
	"about uncirculated": "au", "uncirculated": "unc", "mint state": "ms",
	"good vf": "gvf", "good fine": "gf", "near vf": "nvf", "near ef": "nef",
	"choice vf": "cvf", "choice ef": "cef",
}

func normalizeGrade(g string) string {
	g = strings.ToLower(strings.TrimSpace(g))
	g = strings.Trim(g, ".")
	g = strings.Join(strings.Fields(g), " ")
	if alias, ok := gradeAliases[g]; ok {
		return alias
	}
	return strings.ReplaceAll(g, " ", "")
}

func (s *gradeStrategy) Audit(sp *model.Specimen, lot model.ObservedLot) ([]Discrepancy, error) {
	if sp.Grading.Grade == "" || lot.Grade == "" {
		return nil, nil
	}
	if normalizeGrade(sp.Grading.Grade) == normalizeGrade(lot.Grade) {
		return nil, nil
	}
	return []Discrepancy{{
		Field:      "grade",
		Current:    sp.Grading.Grade,
		Observed:   lot.Grade,
		Confidence: 0.5,
	}}, nil
}
