package vocab

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
)

// Match is one candidate resolution of a queried term.
type Match struct {
	Term       string  `json:"term"`   // canonical vocabulary entry
	Score      float64 `json:"score"`  // [0,1]
	Source     string  `json:"source"` // "fuzzy" or "llm"
	Category   string  `json:"category"`
	Normalized string  `json:"normalized,omitempty"` // normalized form of the query
}

// Lookup resolves a term within a vocabulary category. Both the fuzzy and
// the LLM provider implement it; callers never care which one answered.
type Lookup interface {
	Lookup(ctx context.Context, term, category string) ([]Match, error)
}

// Built-in categories.
const (
	CategoryDeity        = "deity"
	CategoryDenomination = "denomination"
	CategoryMint         = "mint"
)

// defaultTerms is the built-in controlled vocabulary. Deliberately small:
// the fuzzy matcher is a fallback, not a gazetteer.
var defaultTerms = map[string][]string{
	CategoryDeity: {
		"Jupiter", "Juno", "Minerva", "Mars", "Venus", "Apollo", "Diana",
		"Mercury", "Neptune", "Vulcan", "Vesta", "Ceres", "Sol", "Luna",
		"Roma", "Victoria", "Pax", "Fortuna", "Spes", "Salus", "Libertas",
		"Concordia", "Pietas", "Providentia", "Aequitas", "Annona", "Felicitas",
		"Securitas", "Virtus", "Genius", "Hercules", "Isis", "Serapis",
	},
	CategoryDenomination: {
		"aureus", "denarius", "quinarius", "sestertius", "dupondius", "as",
		"semis", "quadrans", "antoninianus", "follis", "solidus", "siliqua",
		"tremissis", "drachm", "tetradrachm", "didrachm", "obol", "stater",
	},
	CategoryMint: {
		"Rome", "Lugdunum", "Antioch", "Alexandria", "Londinium", "Trier",
		"Siscia", "Ephesus", "Pergamum", "Nicomedia", "Constantinople",
		"Ticinum", "Aquileia", "Cyzicus", "Thessalonica", "Sirmium",
		"Arelate", "Ostia", "Carthage", "Emerita",
	},
}

// FuzzyProvider matches terms against controlled lists by normalized trigram
// similarity.
type FuzzyProvider struct {
	terms     map[string][]string
	threshold float64
	maxHits   int
}

// NewFuzzyProvider builds a provider over the built-in vocabulary. Matches
// below threshold are discarded.
func NewFuzzyProvider(threshold float64) *FuzzyProvider {
	if threshold <= 0 {
		threshold = 0.45
	}
	return &FuzzyProvider{terms: defaultTerms, threshold: threshold, maxHits: 5}
}

// WithTerms replaces the term list for one category, mainly for callers with
// their own vocabularies.
func (p *FuzzyProvider) WithTerms(category string, terms []string) *FuzzyProvider {
	next := make(map[string][]string, len(p.terms)+1)
	for k, v := range p.terms {
		next[k] = v
	}
	next[category] = terms
	return &FuzzyProvider{terms: next, threshold: p.threshold, maxHits: p.maxHits}
}

func (p *FuzzyProvider) Lookup(_ context.Context, term, category string) ([]Match, error) {
	list, ok := p.terms[category]
	if !ok {
		return nil, eris.Errorf("vocab: unknown category %q", category)
	}
	// Legend folding on both sides: queries often come straight off a coin.
	q := NormalizeLegend(term)
	if q == "" {
		return nil, nil
	}

	var out []Match
	for _, candidate := range list {
		score := Similarity(q, NormalizeLegend(candidate))
		if score < p.threshold {
			continue
		}
		out = append(out, Match{
			Term:       candidate,
			Score:      score,
			Source:     "fuzzy",
			Category:   category,
			Normalized: q,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > p.maxHits {
		out = out[:p.maxHits]
	}
	return out, nil
}
