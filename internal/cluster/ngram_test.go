package cluster

import (
	"reflect"
	"testing"
)

func TestCleanForNgrams(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Fire https://x.com/a Straße NOW!", "fire strasse now"},
		{"  #quake @user 東京  ", "東京"},
		{"", ""},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := cleanForNgrams(tt.in); got != tt.want {
			t.Errorf("cleanForNgrams(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNgramBucket(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{" a ", 52462},
		{"abc", 59659},
		{"東京で", 13576},
	}
	for _, tt := range tests {
		if got := ngramBucket(tt.in); got != tt.want {
			t.Errorf("ngramBucket(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNgramVector(t *testing.T) {
	if v := ngramVector(""); v != nil {
		t.Errorf("vector of empty text = %v, want nil", v)
	}
	if v := ngramVector("!!!"); v != nil {
		t.Errorf("vector of punctuation = %v, want nil", v)
	}

	// " a " yields exactly one padded trigram.
	v := ngramVector("a")
	if len(v) != 1 {
		t.Fatalf("len = %d, want 1", len(v))
	}
	near(t, v[52462], 1.6931471805599454, "single gram weight")

	// " ab " yields two trigrams and one 4-gram, all distinct buckets.
	if v := ngramVector("ab"); len(v) != 3 {
		t.Errorf("len = %d, want 3", len(v))
	}
}

func TestNgramVectorDeterministic(t *testing.T) {
	a := ngramVector("Aurora borealis visible across northern skies tonight")
	b := ngramVector("Aurora borealis visible across northern skies tonight")
	if !reflect.DeepEqual(a, b) {
		t.Error("same text produced different vectors")
	}
}

func TestCosineSparse(t *testing.T) {
	a := ngramVector("Aurora borealis visible across northern skies tonight")
	b := ngramVector("Aurora borealis visible across northern skies this evening")

	near(t, cosineSparse(a, a), 1.0, "self similarity")
	near(t, cosineSparse(a, b), 0.8291493431935392, "aurora pair")
	near(t, cosineSparse(b, a), cosineSparse(a, b), "symmetry")

	x := ngramVector("alpha beta gamma")
	y := ngramVector("zzzz qqqq wwww")
	if got := cosineSparse(x, y); got != 0 {
		t.Errorf("disjoint cosine = %v, want 0", got)
	}
	if got := cosineSparse(nil, a); got != 0 {
		t.Errorf("nil vector cosine = %v, want 0", got)
	}
}
