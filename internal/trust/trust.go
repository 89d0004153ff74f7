// Package trust grades external data sources. A discrepancy only becomes a
// suggestion when its source's tier allows suggesting, and only
// authoritative, above-threshold suggestions skip human review.
package trust

// Level is a source trust tier. Higher tiers carry higher confidence
// thresholds: the more we trust a source, the more certain its claims are
// taken to be.
type Level int

const (
	Untrusted Level = iota
	Low
	Medium
	High
	Authoritative
)

var levelNames = map[Level]string{
	Untrusted:     "UNTRUSTED",
	Low:           "LOW",
	Medium:        "MEDIUM",
	High:          "HIGH",
	Authoritative: "AUTHORITATIVE",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNTRUSTED"
}

// Confidence returns the tier's confidence threshold. Strictly increasing
// with the tier.
func (l Level) Confidence() float64 {
	switch l {
	case Authoritative:
		return 0.95
	case High:
		return 0.80
	case Medium:
		return 0.60
	case Low:
		return 0.40
	default:
		return 0.0
	}
}

// CanSuggest reports whether discrepancies from this tier may become
// candidate suggestions at all.
func (l Level) CanSuggest() bool {
	return l > Untrusted
}

// RequiresReview reports whether suggestions from this tier need a human
// before being applied. Only AUTHORITATIVE sources skip review.
func (l Level) RequiresReview() bool {
	return l != Authoritative
}

// FieldTrust is the per-source, per-field gate configuration.
type FieldTrust struct {
	Level      Level
	AutoAccept bool    // tier allows it AND the operator opted in
	Tolerance  float64 // numeric slack before a difference counts, 0 = exact
	Notes      string
}

// AutoAppliable reports whether a suggestion with the given confidence may
// be applied without review.
func (ft FieldTrust) AutoAppliable(confidence float64) bool {
	return ft.AutoAccept && !ft.Level.RequiresReview() && confidence >= ft.Level.Confidence()
}

// Policy maps (source, field) to a FieldTrust. Missing entries fall back to
// the source's default, then to UNTRUSTED.
type Policy struct {
	sources map[string]sourcePolicy
}

type sourcePolicy struct {
	base   FieldTrust
	fields map[string]FieldTrust
}

// DefaultPolicy reflects how much each built-in source is believed:
// reference catalogs are authoritative for type data, auction houses are
// decent observers of physical facts, and LLM output is a hint at best.
func DefaultPolicy() *Policy {
	p := NewPolicy()
	p.SetSource("catalog_lookup", FieldTrust{Level: Authoritative, AutoAccept: true})
	p.SetSource("user", FieldTrust{Level: Authoritative})
	p.SetSource("import", FieldTrust{Level: High})
	p.SetSource("scraper", FieldTrust{Level: Medium})
	p.SetField("scraper", "weight_g", FieldTrust{Level: High, Tolerance: 0.05})
	p.SetField("scraper", "diameter_mm", FieldTrust{Level: High, Tolerance: 0.5})
	p.SetSource("llm_approved", FieldTrust{Level: Low})
	return p
}

func NewPolicy() *Policy {
	return &Policy{sources: map[string]sourcePolicy{}}
}

// SetSource sets the fallback trust for every field of a source.
func (p *Policy) SetSource(source string, ft FieldTrust) {
	sp := p.sources[source]
	sp.base = ft
	if sp.fields == nil {
		sp.fields = map[string]FieldTrust{}
	}
	p.sources[source] = sp
}

// SetField overrides trust for one field of a source.
func (p *Policy) SetField(source, field string, ft FieldTrust) {
	sp, ok := p.sources[source]
	if !ok {
		sp = sourcePolicy{fields: map[string]FieldTrust{}}
	}
	sp.fields[field] = ft
	p.sources[source] = sp
}

// Lookup resolves the trust gate for a (source, field) pair. Unknown sources
// are UNTRUSTED.
func (p *Policy) Lookup(source, field string) FieldTrust {
	sp, ok := p.sources[source]
	if !ok {
		return FieldTrust{Level: Untrusted}
	}
	if ft, ok := sp.fields[field]; ok {
		return ft
	}
	return sp.base
}
