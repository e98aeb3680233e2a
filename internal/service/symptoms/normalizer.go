// Package symptoms maps free-text symptom phrases in Indian languages,
// their transliterations and English onto canonical English labels.
package symptoms

import (
	"regexp"
	"strings"
)

// Entry maps any of its patterns to a canonical label.
type Entry struct {
	Label    string
	Patterns []*regexp.Regexp
}

// Table is an ordered list of entries. The first matching entry wins.
type Table []Entry

// Default is the built-in clinical symptom table.
var Default = compile(defaultRules)

// compile builds a Table from raw rules, making every pattern
// case-insensitive. It panics on an invalid pattern.
func compile(rules []rule) Table {
	t := make(Table, 0, len(rules))
	for _, r := range rules {
		e := Entry{Label: r.label, Patterns: make([]*regexp.Regexp, 0, len(r.patterns))}
		for _, p := range r.patterns {
			e.Patterns = append(e.Patterns, regexp.MustCompile("(?i)"+p))
		}
		t = append(t, e)
	}
	return t
}

// NormalizePhrase returns the label of the first entry with a pattern
// occurring anywhere in phrase.
func (t Table) NormalizePhrase(phrase string) (string, bool) {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return "", false
	}
	for _, e := range t {
		for _, re := range e.Patterns {
			if re.MatchString(phrase) {
				return e.Label, true
			}
		}
	}
	return "", false
}

// NormalizeSymptoms maps every regional and English phrase to its label,
// dropping case-insensitive duplicates while keeping first-seen order. English
// phrases that match nothing are appended verbatim afterwards.
func (t Table) NormalizeSymptoms(regional, english []string) []string {
	out := make([]string, 0, len(regional)+len(english))
	seen := make(map[string]struct{})
	add := func(s string) {
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}

	for _, group := range [][]string{regional, english} {
		for _, p := range group {
			if label, ok := t.NormalizePhrase(p); ok {
				add(label)
			}
		}
	}
	for _, p := range english {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := t.NormalizePhrase(p); !ok {
			add(p)
		}
	}
	return out
}

// Labels returns the canonical labels in table order.
func (t Table) Labels() []string {
	labels := make([]string, len(t))
	for i, e := range t {
		labels[i] = e.Label
	}
	return labels
}

// NormalizePhrase looks phrase up in the Default table.
func NormalizePhrase(phrase string) (string, bool) {
	return Default.NormalizePhrase(phrase)
}

// NormalizeSymptoms normalizes against the Default table.
func NormalizeSymptoms(regional, english []string) []string {
	return Default.NormalizeSymptoms(regional, english)
}
