package refparse

import (
	"strconv"
	"strings"
)

var romanValues = []struct {
	n int
	s string
}{
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// toRoman renders n as an uppercase Roman numeral. Catalog volumes stay well
// under 100.
func toRoman(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for _, rv := range romanValues {
		for n >= rv.n {
			b.WriteString(rv.s)
			n -= rv.n
		}
	}
	return b.String()
}

// fromRoman parses a Roman numeral, case-insensitively. Returns 0 if the
// string is not a valid numeral.
func fromRoman(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	single := map[byte]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100}
	total := 0
	for i := 0; i < len(s); i++ {
		v, ok := single[s[i]]
		if !ok {
			return 0
		}
		if i+1 < len(s) {
			if next, ok := single[s[i+1]]; ok && next > v {
				total -= v
				continue
			}
		}
		total += v
	}
	// Round-trip check rejects malformed numerals like "IIX".
	if toRoman(total) != s {
		return 0
	}
	return total
}

// volumeOrdinal interprets a volume segment as either a Roman or an Arabic
// numeral. Returns 0 when the segment is neither.
func volumeOrdinal(seg string) int {
	if n := fromRoman(seg); n > 0 {
		return n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(seg)); err == nil && n > 0 {
		return n
	}
	return 0
}
