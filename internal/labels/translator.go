// Package labels maps GitLab labels onto GitHub labels.
package labels

import (
	"fmt"
	"regexp"
	"strings"
)

type pattern struct {
	source string
	target string
	re     *regexp.Regexp // nil for exact matches
}

// Translator renames labels with "source:target" patterns. A '*' in the source
// matches any run of characters, and the same text replaces '*' in the target.
// The first matching pattern wins.
type Translator struct {
	patterns []pattern
}

// NewTranslator parses patterns such as "p_*:priority: *" or "bug:type: bug".
func NewTranslator(patterns []string) (*Translator, error) {
	t := &Translator{}
	for _, raw := range patterns {
		src, tgt, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("invalid label pattern %q: expected source:target", raw)
		}
		p := pattern{source: src, target: tgt}
		if strings.Contains(src, "*") {
			parts := strings.Split(src, "*")
			for i := range parts {
				parts[i] = regexp.QuoteMeta(parts[i])
			}
			re, err := regexp.Compile("^" + strings.Join(parts, "(.*)") + "$")
			if err != nil {
				return nil, fmt.Errorf("invalid label pattern %q: %w", raw, err)
			}
			p.re = re
		}
		t.patterns = append(t.patterns, p)
	}
	return t, nil
}

// Translate returns the target name for a source label.
func (t *Translator) Translate(name string) string {
	if t == nil {
		return name
	}
	for _, p := range t.patterns {
		if p.re == nil {
			if p.source == name {
				return p.target
			}
			continue
		}
		if m := p.re.FindStringSubmatch(name); m != nil {
			return strings.Replace(p.target, "*", m[1], 1)
		}
	}
	return name
}
