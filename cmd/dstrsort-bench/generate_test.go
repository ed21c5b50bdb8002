package main

import (
	"math/rand"
	"testing"
)

func TestGenerateDistributions(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, dist := range []string{"random", "dn-ratio", "skewed", "shared-prefix"} {
		strs, err := generate(dist, rnd, 500, 12, 0, 0.2)
		if err != nil {
			t.Fatalf("dist %s: %v", dist, err)
		}
		if len(strs) != 500 {
			t.Fatalf("dist %s: got %d strings, want 500", dist, len(strs))
		}
		for _, s := range strs {
			if len(s) == 0 {
				t.Fatalf("dist %s: produced an empty string", dist)
			}
		}
	}
}

func TestGenerateRejectsUnknownDistribution(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	if _, err := generate("no-such-dist", rnd, 10, 8, 0, 0.1); err == nil {
		t.Fatal("expected an error for an unknown distribution")
	}
}

func TestDnRatioStringsDuplicates(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	strs := dnRatioStrings(rnd, 1000, 10, 0.05)
	seen := make(map[string]bool)
	for _, s := range strs {
		seen[s] = true
	}
	if len(seen) > 100 {
		t.Fatalf("expected heavy duplication at ratio 0.05, got %d distinct of 1000", len(seen))
	}
}

func TestSharedPrefixStringsShareAPrefix(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	strs := sharedPrefixStrings(rnd, 50, 20, 2)
	prefix := strs[0][:16]
	for _, s := range strs {
		if s[:16] != prefix {
			t.Fatalf("string %q does not share prefix %q", s, prefix)
		}
	}
}
