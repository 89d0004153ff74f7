package refparse

import "strings"

// System keys. These are the catalog families the parser recognizes; the
// registry routes lookups by the same keys.
const (
	SystemRIC      = "ric"      // Roman Imperial Coinage
	SystemCrawford = "crawford" // Crawford, Roman Republican Coinage
	SystemRPC      = "rpc"      // Roman Provincial Coinage
	SystemSear     = "sear"     // Sear, Roman Coins and Their Values
	SystemBMCRE    = "bmcre"    // British Museum Catalogue
	SystemSNG      = "sng"      // Sylloge Nummorum Graecorum
	SystemRSC      = "rsc"      // Roman Silver Coinage (Cohen)
	SystemUnknown  = "unknown"
)

// systemDef describes one citation grammar.
type systemDef struct {
	key        string
	aliases    []string
	hasVolume  bool // volumed catalogs expect a volume token before the number
	slashed    bool // Crawford-style compound numbers ("335/1c") stay intact
	collection bool // SNG-style: a collection token follows the prefix
}

// systemDefs is the fixed detection priority order. Longer, more specific
// prefixes come first so "RPC" never shadows "RIC" and "BMCRE" wins over
// "BMC".
var systemDefs = []systemDef{
	{key: SystemCrawford, aliases: []string{"crawford", "rrc", "cr."}, slashed: true},
	{key: SystemBMCRE, aliases: []string{"bmcre", "bmc rr", "bmc"}, hasVolume: true},
	{key: SystemRIC, aliases: []string{"ric"}, hasVolume: true},
	{key: SystemRPC, aliases: []string{"rpc"}, hasVolume: true},
	{key: SystemSNG, aliases: []string{"sng"}, collection: true},
	{key: SystemRSC, aliases: []string{"rsc", "cohen"}, hasVolume: true},
	{key: SystemSear, aliases: []string{"sear", "srcv"}},
}

// defFor returns the grammar definition for a system key.
func defFor(key string) (systemDef, bool) {
	for _, d := range systemDefs {
		if d.key == key {
			return d, true
		}
	}
	return systemDef{}, false
}

// ResolveSystem maps a raw catalog name or alias to its system key, or
// SystemUnknown if nothing matches.
func ResolveSystem(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimSuffix(n, ".")
	for _, d := range systemDefs {
		if d.key == n {
			return d.key
		}
		for _, a := range d.aliases {
			if strings.TrimSuffix(a, ".") == n {
				return d.key
			}
		}
	}
	return SystemUnknown
}

// detectPrefix matches a known system alias at the start of the citation and
// returns the definition plus the remainder after the alias.
func detectPrefix(raw string) (systemDef, string, bool) {
	lower := strings.ToLower(raw)
	for _, d := range systemDefs {
		for _, alias := range append([]string{d.key}, d.aliases...) {
			if !strings.HasPrefix(lower, alias) {
				continue
			}
			rest := raw[len(alias):]
			// The alias must end at a word boundary: "ric" must not match
			// "rich collection".
			if rest != "" && !isBoundary(rune(rest[0])) {
				continue
			}
			return d, strings.TrimSpace(rest), true
		}
	}
	return systemDef{}, "", false
}

func isBoundary(r rune) bool {
	return r == ' ' || r == '.' || r == '-' || r == '\t'
}
