// Package dictionary implements guild-scoped text substitution: ordered
// replacement rules applied to message text before synthesis.
package dictionary

import (
	"github.com/google/uuid"
)

// Rule is a single substitution. Regex rules replace all non-overlapping
// matches; literal rules replace all occurrences.
type Rule struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsRegex bool   `json:"is_regex"`
	Rule    string `json:"rule"`
	To      string `json:"to"`
}

// Dictionary is an ordered rule list. Later rules see the output of
// earlier rules.
type Dictionary struct {
	Rules []Rule `json:"rules"`
}

// NewDictionary returns the default dictionary every guild starts with:
// URLs and fenced code blocks are collapsed to a single word.
func NewDictionary() Dictionary {
	return Dictionary{
		Rules: []Rule{
			{
				ID:      uuid.NewString(),
				Name:    "url",
				IsRegex: true,
				Rule:    `(http://|https://){1}[\w\.\-/:\#\?=\&;%\~\+]+`,
				To:      "URL",
			},
			{
				ID:      uuid.NewString(),
				Name:    "code",
				IsRegex: true,
				Rule:    "```(.|\n)*```",
				To:      "code",
			},
		},
	}
}

// Add appends a rule, assigning it a fresh ID, and returns that ID.
func (d *Dictionary) Add(name string, isRegex bool, pattern, to string) string {
	id := uuid.NewString()
	d.Rules = append(d.Rules, Rule{
		ID:      id,
		Name:    name,
		IsRegex: isRegex,
		Rule:    pattern,
		To:      to,
	})
	return id
}

// Remove deletes the rule with the given ID. Removal is by stable ID, not
// positional index, so a stale rule listing can never delete the wrong
// rule. Returns false if no rule carries the ID.
func (d *Dictionary) Remove(id string) bool {
	for i, r := range d.Rules {
		if r.ID == id {
			d.Rules = append(d.Rules[:i], d.Rules[i+1:]...)
			return true
		}
	}
	return false
}
