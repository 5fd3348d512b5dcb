package ncberr

import (
	"regexp"
	"strings"
)

// Validation ceilings for user-supplied input.
const (
	MaxTTSTextLength      = 500
	MaxSSMLLength         = 1000
	MaxRegexPatternLength = 100
	MaxRuleNameLength     = 50
)

// Regex constructs known to invite catastrophic backtracking. Go's RE2
// engine is immune to most of these, but rejecting them keeps dictionary
// rules portable and the ceiling honest.
var dangerousConstructs = []string{
	`(?=`, `(?!`, `(?<=`, `(?<!`,
	`**`, `+*`, `*+`, `++`,
}

// ValidateRegexPattern checks a dictionary rule pattern before it is
// accepted: length ceiling, blocklisted constructs, and a trial compile.
func ValidateRegexPattern(pattern string) error {
	if len(pattern) > MaxRegexPatternLength {
		return &InvalidPatternError{Pattern: pattern, Reason: "pattern too long"}
	}
	for _, construct := range dangerousConstructs {
		if strings.Contains(pattern, construct) {
			return &InvalidPatternError{Pattern: pattern, Reason: "dangerous construct " + construct}
		}
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return &InvalidPatternError{Pattern: pattern, Reason: err.Error()}
	}
	return nil
}

// ValidateRuleName checks a dictionary rule display name.
func ValidateRuleName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return &InvalidPatternError{Pattern: name, Reason: "rule name cannot be empty"}
	}
	if len(name) > MaxRuleNameLength {
		return &InvalidPatternError{Pattern: name, Reason: "rule name too long"}
	}
	return nil
}

// Prohibited substrings in text destined for a TTS vendor.
var prohibitedPatterns = []string{
	"<script", "javascript:", "data:", "<?xml",
}

// ValidateTTSText bounds and screens message text before normalization.
func ValidateTTSText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrProhibitedContent
	}
	if len(text) > MaxTTSTextLength {
		return &TextTooLongError{Max: MaxTTSTextLength}
	}
	lower := strings.ToLower(text)
	for _, p := range prohibitedPatterns {
		if strings.Contains(lower, p) {
			return ErrProhibitedContent
		}
	}
	return nil
}

// EscapeSSML escapes user text for embedding in an SSML document.
func EscapeSSML(text string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	escaped := r.Replace(text)
	if len(escaped) > MaxSSMLLength {
		escaped = escaped[:MaxSSMLLength]
	}
	return escaped
}
