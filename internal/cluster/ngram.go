package cluster

import (
	"hash/fnv"
	"math"
	"strings"
)

// N-gram settings. 3..5-rune grams hashed into 65536 buckets cover enough
// surface for cross-lingual cosine without blowing up memory per entry.
const (
	ngramMin = 3
	ngramMax = 5
	ngramDim = 1 << 16
)

// cleanForNgrams case-folds and strips markup the same way canonicalize
// does, but keeps word order.
func cleanForNgrams(text string) string {
	t := caseFolder.String(text)
	t = reURL.ReplaceAllString(t, " ")
	t = reMention.ReplaceAllString(t, " ")
	t = reHashtag.ReplaceAllString(t, " ")
	t = reEmoji.ReplaceAllString(t, " ")
	t = rePunct.ReplaceAllString(t, " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(t, " "))
}

func ngramBucket(ng string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(ng))
	return h.Sum32() % ngramDim
}

// ngramVector builds a sparse hashed character n-gram vector with log-scaled
// counts. Grams run over runes with a single space padded on each side so
// short strings still produce boundary grams.
func ngramVector(text string) map[uint32]float64 {
	t := cleanForNgrams(text)
	if t == "" {
		return nil
	}

	runes := []rune(" " + t + " ")
	counts := make(map[uint32]int)
	for n := ngramMin; n <= ngramMax; n++ {
		if len(runes) < n {
			continue
		}
		for i := 0; i+n <= len(runes); i++ {
			counts[ngramBucket(string(runes[i:i+n]))]++
		}
	}

	vec := make(map[uint32]float64, len(counts))
	for k, c := range counts {
		vec[k] = 1.0 + math.Log(1.0+float64(c))
	}
	return vec
}

// cosineSparse returns the cosine similarity of two sparse vectors.
func cosineSparse(a, b map[uint32]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	var dot float64
	for k, va := range a {
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	na := math.Sqrt(sumSquares(a))
	nb := math.Sqrt(sumSquares(b))
	if na <= 1e-12 || nb <= 1e-12 {
		return 0
	}
	return dot / (na * nb)
}

func sumSquares(v map[uint32]float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}
