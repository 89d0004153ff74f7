package refparse

import "strings"

// Canonical serializes a parsed citation into the stable, lowercased string
// used as the dedup key within one catalog system. The output is itself a
// parseable citation, so Canonical(Parse(Canonical(Parse(raw)))) is a fixed
// point: syntactic variants of one logical citation share one canonical form.
//
// The mint is deliberately excluded: it is an attribute of the entry, not
// part of citation identity.
func Canonical(p Parsed) string {
	if p.System == SystemUnknown || p.System == "" {
		return strings.ToLower(multiSpace.ReplaceAllString(strings.TrimSpace(p.Number), " "))
	}

	parts := []string{p.System}
	if p.Collection != "" {
		parts = append(parts, strings.ToLower(p.Collection))
	}
	if p.Supplement != "" {
		parts = append(parts, "suppl")
	}
	if p.Volume != "" {
		parts = append(parts, strings.ToLower(p.Volume))
	}
	if num := strings.ToLower(p.Number) + strings.ToLower(p.Subtype); num != "" {
		parts = append(parts, num)
	}
	return strings.Join(parts, " ")
}

// StructuredRef is the structured citation shape accepted at the sync and
// parse boundaries as an alternative to a raw string.
type StructuredRef struct {
	Catalog    string `json:"catalog"`
	Volume     string `json:"volume,omitempty"`
	Number     string `json:"number"`
	Variant    string `json:"variant,omitempty"`
	Mint       string `json:"mint,omitempty"`
	Supplement string `json:"supplement,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// FromStructured normalizes a structured citation through the same rules as
// string parsing, so "RIC IV.1 351b" and {Catalog: "RIC", Volume: "IV.1",
// Number: "351b"} canonicalize identically.
func FromStructured(in StructuredRef) Parsed {
	var p Parsed
	p.System = ResolveSystem(in.Catalog)
	if p.System == SystemUnknown {
		raw := strings.TrimSpace(strings.Join(strings.Fields(in.Catalog+" "+in.Number), " "))
		p.Number = raw
		p.Warnings = append(p.Warnings, "unrecognized catalog system")
		return p
	}
	def, _ := defFor(p.System)

	if in.Volume != "" {
		if vol, ok := normalizeVolume(strings.TrimSpace(in.Volume), true); ok {
			p.Volume = vol
		} else {
			p.Warnings = append(p.Warnings, "unparseable volume: "+in.Volume)
		}
	}
	p.Collection = strings.ToLower(strings.TrimSpace(in.Collection))
	if in.Supplement != "" {
		p.Supplement = "suppl"
	}
	p.Mint = strings.TrimSpace(in.Mint)
	p.Subtype = strings.ToLower(strings.TrimSpace(in.Variant))

	num := strings.TrimSpace(in.Number)
	if def.slashed {
		p.Number = strings.ToLower(num)
	} else if m := numberRe.FindStringSubmatch(num); m != nil {
		p.Number = m[1]
		if p.Subtype == "" {
			p.Subtype = strings.ToLower(m[2])
		}
	} else {
		p.Number = strings.ToLower(num)
		if num != "" {
			p.Warnings = append(p.Warnings, "unusual catalog number form")
		}
	}

	p.Confidence = scoreConfidence(def, p)
	return p
}
