package security

import (
	"regexp"
	"strings"
	"sync"
)

// Blocklist matches shell commands against a configured pattern list.
// Each pattern is tried as a case-insensitive regex; a pattern that does
// not compile degrades to case-insensitive substring containment so a
// malformed entry still blocks rather than silently vanishing.
type Blocklist struct {
	Patterns []string

	once     sync.Once
	compiled []*regexp.Regexp // nil entry = substring fallback
}

// NewBlocklist builds a blocklist from a pattern list.
func NewBlocklist(patterns []string) *Blocklist {
	return &Blocklist{Patterns: patterns}
}

// Match returns the first pattern that blocks the command, or "" when
// the command is clean.
func (b *Blocklist) Match(command string) string {
	if b == nil || len(b.Patterns) == 0 {
		return ""
	}
	b.once.Do(b.compile)

	lower := strings.ToLower(command)
	for i, pattern := range b.Patterns {
		if re := b.compiled[i]; re != nil {
			if re.MatchString(command) {
				return pattern
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(pattern)) {
			return pattern
		}
	}
	return ""
}

func (b *Blocklist) compile() {
	b.compiled = make([]*regexp.Regexp, len(b.Patterns))
	for i, pattern := range b.Patterns {
		// A literal space in a pattern matches any whitespace run, so
		// "rm -rf" also catches "rm  -rf".
		flexible := strings.ReplaceAll(pattern, " ", `\s+`)
		re, err := regexp.Compile("(?i)" + flexible)
		if err != nil {
			continue
		}
		b.compiled[i] = re
	}
}
