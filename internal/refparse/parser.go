// Package refparse turns free-form scholarly catalog citations into
// structured, canonicalized references. Parsing never fails: input that
// matches no known citation grammar degrades to a zero-confidence guess with
// system "unknown".
package refparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the structured form of one citation.
type Parsed struct {
	System     string   `json:"catalog"`
	Volume     string   `json:"volume,omitempty"`
	Number     string   `json:"number"`
	Subtype    string   `json:"variant,omitempty"`
	Mint       string   `json:"mint,omitempty"`
	Supplement string   `json:"supplement,omitempty"`
	Collection string   `json:"collection,omitempty"`
	Confidence float64  `json:"confidence"`
	Warnings   []string `json:"warnings,omitempty"`
}

var (
	multiSpace = regexp.MustCompile(`\s{2,}`)
	editionRe  = regexp.MustCompile(`(?i)\(\s*(\d+)\s*(?:st|nd|rd|th)?\s*ed(?:ition|\.)?\s*\)`)
	trailParen = regexp.MustCompile(`\(([^)]*)\)\s*$`)
	trailDash  = regexp.MustCompile(`\s+[-–—]\s+.*$`)
	numberRe   = regexp.MustCompile(`^(\d+(?:/\d+)*)([A-Za-z]{1,2})?$`)
	suppRe     = regexp.MustCompile(`(?i)^supp(?:l|lement)?\.?$`)
	partRe     = regexp.MustCompile(`(?i)\s+pt\.?\s+`)
	letterRe   = regexp.MustCompile(`^[A-Za-z]$`)
)

// mints recognized inside trailing parentheticals. Anything else in a
// parenthetical is treated as commentary and dropped.
var mints = map[string]string{
	"rome": "Rome", "roma": "Rome", "lugdunum": "Lugdunum", "lyon": "Lugdunum",
	"antioch": "Antioch", "alexandria": "Alexandria", "londinium": "Londinium",
	"trier": "Trier", "treveri": "Trier", "siscia": "Siscia",
	"ephesus": "Ephesus", "pergamum": "Pergamum", "nicomedia": "Nicomedia",
	"constantinople": "Constantinople", "ticinum": "Ticinum", "aquileia": "Aquileia",
}

// Parse converts a raw citation string into its structured form. It is
// case-insensitive and tolerant: unrecognized syntax yields
// {System: "unknown", Number: raw, Confidence: 0} rather than an error.
func Parse(raw string) Parsed {
	text := multiSpace.ReplaceAllString(strings.TrimSpace(raw), " ")
	if text == "" {
		return Parsed{System: SystemUnknown, Warnings: []string{"empty citation"}}
	}

	var p Parsed

	// Edition markers become a dotted volume suffix ("RIC I (2nd ed)" ->
	// volume "I.2"), so pull them out before stripping commentary.
	edition := 0
	if m := editionRe.FindStringSubmatch(text); m != nil {
		edition, _ = strconv.Atoi(m[1])
		text = strings.TrimSpace(multiSpace.ReplaceAllString(editionRe.ReplaceAllString(text, " "), " "))
	}

	// Trailing parenthetical: a known mint name is kept, anything else is
	// emperor/commentary free text.
	if m := trailParen.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if mint, ok := mints[strings.ToLower(inner)]; ok {
			p.Mint = mint
		} else if inner != "" {
			p.Warnings = append(p.Warnings, "dropped trailing text: "+inner)
		}
		text = strings.TrimSpace(trailParen.ReplaceAllString(text, ""))
	}

	// Dash-separated trailer ("RIC I 207a - Augustus denarius").
	if loc := trailDash.FindStringIndex(text); loc != nil {
		p.Warnings = append(p.Warnings, "dropped trailing text: "+strings.TrimSpace(strings.TrimLeft(text[loc[0]:], " -–—")))
		text = strings.TrimSpace(text[:loc[0]])
	}

	def, rest, ok := detectPrefix(text)
	if !ok {
		p.System = SystemUnknown
		p.Number = text
		p.Confidence = 0
		p.Warnings = append(p.Warnings, "unrecognized catalog system")
		return p
	}
	p.System = def.key

	// Commas between citation parts are punctuation, not structure:
	// "RIC I, 207" reads the same as "RIC I 207".
	rest = strings.ReplaceAll(rest, ",", " ")
	// Normalize "IV pt 1" to "IV.1" before tokenizing.
	rest = partRe.ReplaceAllString(rest, ".")
	rest = strings.TrimLeft(rest, ". ")
	tokens := strings.Fields(rest)

	if def.collection && len(tokens) > 0 && isAlpha(tokens[0]) && !suppRe.MatchString(tokens[0]) {
		p.Collection = strings.ToLower(tokens[0])
		tokens = tokens[1:]
	}

	if len(tokens) > 0 && suppRe.MatchString(tokens[0]) {
		p.Supplement = "suppl"
		tokens = tokens[1:]
	}

	if def.hasVolume && len(tokens) > 0 {
		if vol, ok := normalizeVolume(tokens[0], len(tokens) > 1); ok {
			p.Volume = vol
			tokens = tokens[1:]
		}
	}
	if edition > 0 {
		if p.Volume == "" {
			p.Warnings = append(p.Warnings, "edition marker without volume")
		} else {
			p.Volume += "." + strconv.Itoa(edition)
		}
	}

	if len(tokens) == 0 {
		p.Confidence = 0
		p.Warnings = append(p.Warnings, "missing catalog number")
		return p
	}

	numTok := tokens[0]
	tokens = tokens[1:]
	if def.slashed {
		p.Number = strings.ToLower(numTok)
	} else if m := numberRe.FindStringSubmatch(numTok); m != nil {
		p.Number = m[1]
		p.Subtype = strings.ToLower(m[2])
		// Space-separated subtype letter: "RIC I 207 a".
		if p.Subtype == "" && len(tokens) > 0 && letterRe.MatchString(tokens[0]) {
			p.Subtype = strings.ToLower(tokens[0])
			tokens = tokens[1:]
		}
	} else {
		p.Number = strings.ToLower(numTok)
		p.Warnings = append(p.Warnings, "unusual catalog number form")
	}

	if len(tokens) > 0 {
		p.Warnings = append(p.Warnings, "dropped trailing text: "+strings.Join(tokens, " "))
	}

	p.Confidence = scoreConfidence(def, p)
	return p
}

// normalizeVolume parses a volume token such as "IV", "iv.1", "4-1" or "4.1"
// into canonical "ROMAN[.part...]" form. An all-Arabic bare number is only a
// volume when more tokens follow, otherwise it is the catalog number.
func normalizeVolume(tok string, more bool) (string, bool) {
	segs := strings.FieldsFunc(tok, func(r rune) bool { return r == '.' || r == '-' })
	if len(segs) == 0 {
		return "", false
	}
	ord := volumeOrdinal(segs[0])
	if ord == 0 {
		return "", false
	}
	if _, err := strconv.Atoi(segs[0]); err == nil && len(segs) == 1 && !more {
		return "", false
	}
	out := []string{toRoman(ord)}
	for _, s := range segs[1:] {
		if _, err := strconv.Atoi(s); err != nil {
			return "", false
		}
		out = append(out, s)
	}
	return strings.Join(out, "."), true
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return s != ""
}

func scoreConfidence(def systemDef, p Parsed) float64 {
	switch {
	case p.Number == "":
		return 0
	case def.hasVolume && p.Volume == "":
		return 0.6
	case def.hasVolume:
		return 0.95
	default:
		return 0.9
	}
}

// Alternatives proposes plausible secondary readings of a parsed citation,
// for callers that surface choices to a user. Currently the only alternative
// offered is keeping an attached subtype letter as part of the number.
func Alternatives(p Parsed) []Parsed {
	if p.Subtype == "" || p.System == SystemUnknown {
		return nil
	}
	alt := p
	alt.Number = p.Number + p.Subtype
	alt.Subtype = ""
	alt.Confidence = p.Confidence * 0.5
	return []Parsed{alt}
}
