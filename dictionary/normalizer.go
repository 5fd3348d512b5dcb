package dictionary

import (
	"strings"

	"github.com/mii443/ncb-tts-r2/log"
)

// Normalizer applies a guild's dictionary to raw message text.
type Normalizer struct {
	regexes *RegexCache
	logger  *log.Logger
}

// NewNormalizer creates a Normalizer backed by the given regex cache.
func NewNormalizer(regexes *RegexCache, logger *log.Logger) *Normalizer {
	return &Normalizer{regexes: regexes, logger: logger}
}

// Apply runs every rule in order over text. A rule whose pattern fails to
// compile is skipped with a warning; one malformed rule must never fail
// the whole pipeline.
func (n *Normalizer) Apply(dict Dictionary, text string) string {
	for _, rule := range dict.Rules {
		if rule.IsRegex {
			re, err := n.regexes.Compile(rule.Rule)
			if err != nil {
				n.logger.Error("skipping malformed dictionary rule "+rule.Name, err)
				continue
			}
			// Literal replacement: $ in the rule output is not a
			// backreference.
			text = re.ReplaceAllLiteralString(text, rule.To)
		} else {
			text = strings.ReplaceAll(text, rule.Rule, rule.To)
		}
	}
	return text
}
