// Package moderation implements the chat content check used to escalate
// warnings into kicks for abusive connections.
package moderation

import "strings"

// KickThreshold is the number of flagged messages after which a connection
// is kicked and banned from the space.
const KickThreshold = 3

// DefaultBlockedWords is the built-in block list used when none is configured.
var DefaultBlockedWords = []string{
	"fuck",
	"shit",
	"bitch",
	"bastard",
	"asshole",
	"cunt",
	"dickhead",
}

// Filter flags messages containing any blocked word, ignoring case.
// A Filter is immutable and safe for concurrent use.
type Filter struct {
	words []string
}

// NewFilter creates a Filter over the given words. Empty entries are skipped.
// Passing nil or an empty list yields DefaultBlockedWords.
func NewFilter(words []string) *Filter {
	if len(words) == 0 {
		words = DefaultBlockedWords
	}

	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		normalized = append(normalized, w)
	}
	return &Filter{words: normalized}
}

// Flagged reports whether message contains a blocked word.
func (f *Filter) Flagged(message string) bool {
	if f == nil || message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, w := range f.words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
