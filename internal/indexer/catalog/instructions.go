// Package catalog discovers the documents under an indexed root and applies
// the exclusion and encoding instructions that shape the catalog.
package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/mir/pkg/errors"
)

type Directive string

const (
	// Exclude removes an exact relative path, or every path containing the key.
	Exclude Directive = "@x"
	// ForceUTF8BOM skips detection and decodes as UTF-8 with BOM.
	ForceUTF8BOM Directive = "@u"
)

type Rule struct {
	Key       string
	Directive Directive
}

// Instructions holds rules in declaration order.
type Instructions struct {
	Rules []Rule
}

// ParseInstructions reads one rule per line. The field starting with '@' is
// the directive and the remainder of the line is the key, so both
// "@x dir/a.txt" and "dir/a.txt @x" are accepted. Blank lines and lines
// starting with '#' are skipped.
func ParseInstructions(r io.Reader) (*Instructions, error) {
	ins := &Instructions{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rule, err := parseRule(text)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidConfig, "", "instruction line %d: %v", line, err)
		}
		ins.Rules = append(ins.Rules, rule)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, "instructions", err)
	}
	return ins, nil
}

func parseRule(text string) (Rule, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return Rule{}, fmt.Errorf("expected a path and a directive, got %q", text)
	}
	var d string
	var key string
	switch {
	case strings.HasPrefix(fields[0], "@"):
		d = fields[0]
		key = strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	case strings.HasPrefix(fields[len(fields)-1], "@"):
		d = fields[len(fields)-1]
		key = strings.TrimSpace(strings.TrimSuffix(text, d))
	default:
		return Rule{}, fmt.Errorf("no directive in %q", text)
	}
	switch Directive(d) {
	case Exclude, ForceUTF8BOM:
	default:
		return Rule{}, fmt.Errorf("unknown directive %q", d)
	}
	return Rule{Key: key, Directive: Directive(d)}, nil
}

// LoadInstructions reads the instruction file at path. An empty path yields
// no rules.
func LoadInstructions(path string) (*Instructions, error) {
	if path == "" {
		return &Instructions{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrIO, path, err)
	}
	defer f.Close()
	return ParseInstructions(f)
}

// Excluded reports whether path is dropped, and by which rule. The first
// matching exclusion wins.
func (ins *Instructions) Excluded(path string) (Rule, bool) {
	if ins == nil {
		return Rule{}, false
	}
	for _, r := range ins.Rules {
		if r.Directive != Exclude {
			continue
		}
		if r.Key == path || strings.Contains(path, r.Key) {
			return r, true
		}
	}
	return Rule{}, false
}

// ForcedEncoding reports whether detection is bypassed for path.
func (ins *Instructions) ForcedEncoding(path string) bool {
	if ins == nil {
		return false
	}
	for _, r := range ins.Rules {
		if r.Directive == ForceUTF8BOM && r.Key == path {
			return true
		}
	}
	return false
}
