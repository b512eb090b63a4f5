// Package tokenizer provides text tokenisation for the indexer. Terms are
// maximal runs of Unicode letters, lower-cased; everything else (digits,
// underscores, punctuation, whitespace) separates terms. No stemming and no
// stop-word removal is applied.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a single normalised term and its ordinal position among all terms
// of the text.
type Token struct {
	Term     string
	Position int
}

// Terms lazily yields (term, position) pairs. Position is a dense 0-based
// counter over yielded terms, not a byte offset. The empty string is never
// yielded.
func Terms(text string) iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		pos := 0
		start := -1
		for i, r := range text {
			if unicode.IsLetter(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(strings.ToLower(text[start:i]), pos) {
					return
				}
				pos++
				start = -1
			}
		}
		if start >= 0 {
			yield(strings.ToLower(text[start:]), pos)
		}
	}
}

// Tokenize collects Terms into a slice.
func Tokenize(text string) []Token {
	tokens := make([]Token, 0, utf8.RuneCountInString(text)/6)
	for term, pos := range Terms(text) {
		tokens = append(tokens, Token{Term: term, Position: pos})
	}
	return tokens
}

// Normalize returns every term a query word yields, in order.
func Normalize(word string) []string {
	var terms []string
	for term := range Terms(word) {
		terms = append(terms, term)
	}
	return terms
}
