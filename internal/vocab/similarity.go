package vocab

// Similarity scores two already-normalized terms in [0,1] using the Dice
// coefficient over character trigrams, with boundary padding so short terms
// still produce a usable signal. Identical strings score 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	ta := trigrams(a)
	tb := trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for g, n := range ta {
		if m, ok := tb[g]; ok {
			if m < n {
				n = m
			}
			shared += n
		}
	}
	total := 0
	for _, n := range ta {
		total += n
	}
	for _, n := range tb {
		total += n
	}
	return 2 * float64(shared) / float64(total)
}

func trigrams(s string) map[string]int {
	padded := "  " + s + " "
	runes := []rune(padded)
	out := make(map[string]int, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])]++
	}
	return out
}
