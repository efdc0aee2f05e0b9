package routing

import (
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

const maxCachedPatterns = 1024

// patternCache compiles tenant-supplied patterns once and runs every match
// under regexp2's MatchTimeout, so a catastrophic pattern fails the rule
// instead of stalling the caller.
type patternCache struct {
	timeout time.Duration
	maxLen  int

	mu       sync.Mutex
	compiled map[string]compiledPattern
}

type compiledPattern struct {
	re  *regexp2.Regexp
	err error
}

func newPatternCache(timeout time.Duration, maxLen int) *patternCache {
	return &patternCache{
		timeout:  timeout,
		maxLen:   maxLen,
		compiled: make(map[string]compiledPattern),
	}
}

func (c *patternCache) compile(pattern string) (*regexp2.Regexp, error) {
	if len(pattern) > c.maxLen {
		return nil, ErrPatternTooLong
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.compiled[pattern]; ok {
		return entry.re, entry.err
	}
	if len(c.compiled) >= maxCachedPatterns {
		c.compiled = make(map[string]compiledPattern)
	}
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if re != nil {
		re.MatchTimeout = c.timeout
	}
	c.compiled[pattern] = compiledPattern{re: re, err: err}
	return re, err
}

func (c *patternCache) match(pattern, input string) (bool, error) {
	re, err := c.compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(input)
}
