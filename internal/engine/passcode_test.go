package engine

import (
	"strings"
	"testing"
)

func TestPassCodeAlphabetAvoidsAmbiguousCharacters(t *testing.T) {
	if strings.ContainsAny(PassCodeAlphabet, "0O1IL") {
		t.Fatalf("alphabet contains an ambiguous character: %s", PassCodeAlphabet)
	}
}

func TestGeneratePassCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GeneratePassCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != PassCodeLength {
			t.Fatalf("expected %d characters, got %q", PassCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(PassCodeAlphabet, r) {
				t.Fatalf("code %q has character %q outside the alphabet", code, r)
			}
		}
		seen[code] = true
	}
	if len(seen) < 190 {
		t.Fatalf("codes repeat too often: %d distinct of 200", len(seen))
	}
}

func TestNormalizePassCode(t *testing.T) {
	if got := NormalizePassCode("  ab3xk9 "); got != "AB3XK9" {
		t.Fatalf("unexpected normalized code %q", got)
	}
}
