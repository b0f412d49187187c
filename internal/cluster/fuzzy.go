package cluster

import (
	"sort"
	"strings"
)

// Fuzzy string scores in [0, 100], defined over runes. ratio is the classic
// similarity from longest common subsequence; partialRatio slides the
// shorter string across the longer; tokenSetRatio compares sorted token
// intersections and differences so word order and repetition don't matter.

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func ratioRunes(a, b []rune) float64 {
	la, lb := len(a), len(b)
	if la+lb == 0 {
		return 100
	}
	if la == 0 || lb == 0 {
		return 0
	}
	return 100 * 2 * float64(lcsLength(a, b)) / float64(la+lb)
}

func ratio(a, b string) float64 {
	return ratioRunes([]rune(a), []rune(b))
}

func partialRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	m, n := len(ra), len(rb)
	if m == 0 {
		if n == 0 {
			return 100
		}
		return 0
	}

	var best float64
	for i := 0; i+m <= n; i++ {
		if s := ratioRunes(ra, rb[i:i+m]); s > best {
			best = s
			if best >= 100 {
				break
			}
		}
	}
	return best
}

func tokenSetRatio(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var sect, diffA, diffB []string
	for t := range ta {
		if tb[t] {
			sect = append(sect, t)
		} else {
			diffA = append(diffA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			diffB = append(diffB, t)
		}
	}

	// One side a subset of the other with anything shared: perfect score.
	if len(sect) > 0 && (len(diffA) == 0 || len(diffB) == 0) {
		return 100
	}

	sort.Strings(sect)
	sort.Strings(diffA)
	sort.Strings(diffB)

	sectStr := strings.Join(sect, " ")
	sab := strings.TrimSpace(sectStr + " " + strings.Join(diffA, " "))
	sba := strings.TrimSpace(sectStr + " " + strings.Join(diffB, " "))

	best := ratio(sab, sba)
	if sectStr != "" {
		if s := ratio(sectStr, sab); s > best {
			best = s
		}
		if s := ratio(sectStr, sba); s > best {
			best = s
		}
	}
	return best
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		out[t] = true
	}
	return out
}
