package dictionary

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mii443/ncb-tts-r2/ncberr"
)

// RegexCache caches compiled regexes keyed on the raw pattern string so
// dictionary rules are not recompiled on every message.
type RegexCache struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

// NewRegexCache creates a cache holding up to size compiled patterns.
func NewRegexCache(size int) (*RegexCache, error) {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return nil, err
	}
	return &RegexCache{cache: c}, nil
}

// Compile returns the compiled regex for pattern, validating and compiling
// on a miss. Failed compilations are never cached.
func (rc *RegexCache) Compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := rc.cache.Get(pattern); ok {
		return re, nil
	}

	if err := ncberr.ValidateRegexPattern(pattern); err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ncberr.InvalidPatternError{Pattern: pattern, Reason: err.Error()}
	}

	rc.cache.Add(pattern, re)
	return re, nil
}

// Len reports how many compiled patterns are cached.
func (rc *RegexCache) Len() int {
	return rc.cache.Len()
}
