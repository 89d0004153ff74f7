package audit

import (
	_ "embed"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mintmark-dev/mintmark/internal/model"
)

//go:embed reigns.yaml
var reignsYAML []byte

type reign struct {
	Name  string `yaml:"name"`
	Start int    `yaml:"start"` // negative = BCE, inclusive
	End   int    `yaml:"end"`
}

type reignTable struct {
	Rulers []reign `yaml:"rulers"`
}

// reignStrategy checks a claimed mint year against the issuer's reign. A
// coin struck before its issuer came to power is a definite error; one
// struck after is only suspicious, since posthumous issues are legitimate.
type reignStrategy struct {
	once   sync.Once
	rulers []reign
	err    error
}

func newReignStrategy() *reignStrategy { return &reignStrategy{} }

func (s *reignStrategy) Name() string { return "reign" }

func (s *reignStrategy) load() {
	var table reignTable
	if err := yaml.Unmarshal(reignsYAML, &table); err != nil {
		s.err = eris.Wrap(err, "audit: parse reign table")
		return
	}
	s.rulers = table.Rulers
}

// findReign resolves an issuer name with decreasing strictness: exact, then
// case-insensitive, then substring in either direction.
func (s *reignStrategy) findReign(issuer string) (reign, bool) {
	for _, r := range s.rulers {
		if r.Name == issuer {
			return r, true
		}
	}
	for _, r := range s.rulers {
		if strings.EqualFold(r.Name, issuer) {
			return r, true
		}
	}
	lower := strings.ToLower(issuer)
	for _, r := range s.rulers {
		name := strings.ToLower(r.Name)
		if strings.Contains(lower, name) || strings.Contains(name, lower) {
			return r, true
		}
	}
	return reign{}, false
}

func (s *reignStrategy) Audit(sp *model.Specimen, lot model.ObservedLot) ([]Discrepancy, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}

	issuer := lot.Issuer
	if issuer == "" {
		issuer = sp.Attribution.Issuer
	}
	year := lot.MintYear
	if year == 0 {
		year = sp.Attribution.YearFrom
	}
	if issuer == "" || year == 0 {
		return nil, nil
	}

	r, ok := s.findReign(issuer)
	if !ok {
		// Absence of data is not an error.
		return nil, nil
	}

	switch {
	case year < r.Start:
		return []Discrepancy{{
			Field:      "mint_year",
			Current:    sp.Attribution.YearFrom,
			Observed:   year,
			Confidence: 0.95,
			Detail:     "mint year precedes the start of " + r.Name + "'s reign",
		}}, nil
	case year > r.End:
		return []Discrepancy{{
			Field:      "mint_year",
			Current:    sp.Attribution.YearFrom,
			Observed:   year,
			Confidence: 0.6,
			Detail:     "mint year follows the end of " + r.Name + "'s reign",
		}}, nil
	}
	return nil, nil
}
