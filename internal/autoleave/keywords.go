// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package autoleave

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var wordSeparators = regexp.MustCompile(`[\s\-_]+`)

// SplitWords lower-cases s and splits it on whitespace, hyphens and
// underscores. Names are NFC-normalized so composed and decomposed accents
// compare equal.
func SplitWords(s string) []string {
	parts := wordSeparators.Split(norm.NFC.String(s), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// ContainsKeyword reports whether name contains any keyword as a contiguous,
// order-preserving run of words. "Bob Johnson senior" contains "bob johnson";
// "Bob senior Johnson" does not.
func ContainsKeyword(name string, keywords []string) bool {
	words := SplitWords(name)
	if len(words) == 0 {
		return false
	}
	for _, kw := range keywords {
		kwWords := SplitWords(kw)
		k := len(kwWords)
		if k == 0 || k > len(words) {
			continue
		}
		for i := 0; i+k <= len(words); i++ {
			if equalWords(words[i:i+k], kwWords) {
				return true
			}
		}
	}
	return false
}

func equalWords(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IsAnotherBot reports whether a participant looks like some other bot. Our
// own bot never counts.
func IsAnotherBot(fullName string, isTheBot bool, keywords []string) bool {
	if isTheBot || len(keywords) == 0 {
		return false
	}
	return ContainsKeyword(fullName, keywords)
}
