package jolteon

import (
	"context"
	"strings"
)

// DefaultPrefix introduces commands in communities with no stored prefix and
// in private conversations.
const DefaultPrefix = ";"

// PrefixSet is the ordered list of prefixes that can introduce one command
// invocation: the stored-or-default prefix first, then the bot's platform
// mention forms.
type PrefixSet []string

// Match reports the first prefix in order that introduces text, together with
// the remaining input with leading whitespace stripped. An empty candidate
// matches any input, so a community that stores an empty prefix makes every
// message command-eligible.
func (p PrefixSet) Match(text string) (prefix string, rest string, matched bool) {
	for _, candidate := range p {
		if strings.HasPrefix(text, candidate) {
			return candidate, strings.TrimLeft(text[len(candidate):], " \t"), true
		}
	}

	return "", "", false
}

// PrefixResolver resolves the prefix set for one community.
//
// Resolution runs on every inbound message: implementations perform a fresh
// storage lookup per call and must degrade to the default prefix when storage
// is unavailable so the bot stays responsive.
type PrefixResolver interface {
	// Resolve returns the prefix set for communityID. An empty communityID
	// identifies a private conversation and never touches storage.
	Resolve(ctx context.Context, communityID string) PrefixSet
	// SetPrefix stores newPrefix as the community's invocation prefix,
	// replacing any previous value.
	SetPrefix(ctx context.Context, communityID string, newPrefix string) error
}

// BotIdentity describes the bot's own identity on one platform, supplied by
// the transport driver. MentionForms are appended to every resolved prefix
// set so mentioning the bot always works as an invocation prefix.
type BotIdentity struct {
	// Username is the bot's platform handle.
	Username string
	// MentionForms are the literal token forms that mention the bot.
	MentionForms []string
}
