package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"simple", []string{"cat", "bird"}, []string{"cat", "bird"}},
		{"case folded", []string{"Cat", "BIRD"}, []string{"cat", "bird"}},
		{"deduplicated in order", []string{"dog", "cat", "DOG"}, []string{"dog", "cat"}},
		{"split on separators", []string{"dog-bird", "x2y"}, []string{"dog", "bird", "x", "y"}},
		{"digits only ignored", []string{"123", "cat"}, []string{"cat"}},
		{"accents kept", []string{"Ação"}, []string{"ação"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Parse(tt.args...)
			assert.Equal(t, tt.want, plan.Terms)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	plan := Parse("42", "--")
	assert.True(t, plan.Empty())
	assert.Equal(t, "42 --", plan.RawQuery)
}

func BenchmarkParse(b *testing.B) {
	args := []string{"Distributed", "search", "analytics", "platform", "indexing", "query", "SEARCH", "ranking"}
	b.ReportAllocs()
	for b.Loop() {
		_ = Parse(args...)
	}
}
