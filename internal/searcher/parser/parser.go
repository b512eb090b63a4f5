// Package parser turns command line query arguments into the normalized,
// conjunctive term list the executor evaluates.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/mir/internal/indexer/tokenizer"
)

type QueryPlan struct {
	// Terms are normalized, deduplicated, and kept in the order given.
	Terms    []string
	RawQuery string
}

// Parse normalizes each argument with the indexing tokenizer. An argument such
// as "dog-bird" contributes both terms; one that yields no term is ignored.
func Parse(args ...string) *QueryPlan {
	plan := &QueryPlan{
		Terms:    make([]string, 0, len(args)),
		RawQuery: strings.Join(args, " "),
	}
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		for _, term := range tokenizer.Normalize(arg) {
			if _, ok := seen[term]; ok {
				continue
			}
			seen[term] = struct{}{}
			plan.Terms = append(plan.Terms, term)
		}
	}
	return plan
}

func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}
