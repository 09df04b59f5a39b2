// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package autoleave

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"notetaker", "bot", "x"}, SplitWords("  Notetaker-Bot__x "))
	assert.Empty(t, SplitWords(" -_ "))
}

func TestContainsKeyword(t *testing.T) {
	cases := []struct {
		name     string
		keywords []string
		want     bool
	}{
		{"Bob Johnson senior", []string{"Bob Johnson"}, true},
		{"Bob senior Johnson", []string{"Bob Johnson"}, false},
		{"bob_johnson", []string{"Bob-Johnson"}, true},
		{"Fireflies.ai Notetaker", []string{"notetaker"}, true},
		{"Notetakers", []string{"notetaker"}, false},
		{"Alice", []string{"alice bob"}, false},
		{"Alice", []string{""}, false},
		{"", []string{"bot"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ContainsKeyword(tc.name, tc.keywords))
		})
	}
}

func TestIsAnotherBot(t *testing.T) {
	kw := []string{"recorder"}
	assert.True(t, IsAnotherBot("Team Recorder", false, kw))
	assert.False(t, IsAnotherBot("Team Recorder", true, kw), "our bot never counts")
	assert.False(t, IsAnotherBot("Team Recorder", false, nil))
}

func TestContainsKeywordNormalizesAccents(t *testing.T) {
	assert.True(t, ContainsKeyword("Jose\u0301 Notetaker", []string{"Jos\u00e9 notetaker"}))
}
