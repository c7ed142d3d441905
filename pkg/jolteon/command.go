package jolteon

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// mentionPattern matches user-mention tokens at the start of a token, in both
// plain and nickname forms.
var mentionPattern = regexp.MustCompile(`^<@!?[0-9]*>`)

// massMentionMarkers are broadcast ping markers that no tag invocation or tag
// content may smuggle through the bot.
var massMentionMarkers = []string{"@everyone", "@here"}

// IsMentionToken reports whether token is shaped like a user mention.
func IsMentionToken(token string) bool {
	return mentionPattern.MatchString(token)
}

// ContainsMassMention reports whether token textually carries a broadcast
// ping marker.
func ContainsMassMention(token string) bool {
	for _, marker := range massMentionMarkers {
		if strings.Contains(token, marker) {
			return true
		}
	}

	return false
}

// CommandSpec declares one module command registration.
type CommandSpec struct {
	// Name is the canonical command word.
	Name string
	// Aliases are alternate command words bound to the same handler.
	Aliases []string
	// Description describes command behavior for help text.
	Description string
	// Usage is the argument synopsis rendered in error and help replies.
	Usage string
	// RequiredCapability gates the command on one actor capability when set.
	RequiredCapability ActorCapability
	// CommunityOnly restricts the command to community conversations.
	CommunityOnly bool
}

// Validate checks command specification coherence.
func (s CommandSpec) Validate() error {
	name := NormalizeCommandName(s.Name)
	if name == "" {
		return fmt.Errorf("validate command spec: missing name")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("validate command spec: name %q contains whitespace", s.Name)
	}

	seen := map[string]struct{}{name: {}}
	for _, alias := range s.Aliases {
		normalized := NormalizeCommandName(alias)
		if normalized == "" {
			return fmt.Errorf("validate command spec %s: empty alias", s.Name)
		}
		if strings.ContainsAny(normalized, " \t\r\n") {
			return fmt.Errorf("validate command spec %s: alias %q contains whitespace", s.Name, alias)
		}
		if _, exists := seen[normalized]; exists {
			return fmt.Errorf("validate command spec %s: duplicate alias %q", s.Name, alias)
		}
		seen[normalized] = struct{}{}
	}

	return nil
}

// Words returns the canonical name followed by all aliases, normalized.
func (s CommandSpec) Words() []string {
	words := make([]string, 0, 1+len(s.Aliases))
	words = append(words, NormalizeCommandName(s.Name))
	for _, alias := range s.Aliases {
		words = append(words, NormalizeCommandName(alias))
	}

	return words
}

// CommandInvocation carries one bound command event payload.
type CommandInvocation struct {
	// Name is the canonical command name, regardless of which alias matched.
	Name string
	// MatchedWord is the command word the user actually typed.
	MatchedWord string
	// MatchedPrefix is the resolved prefix that introduced the invocation.
	MatchedPrefix string
	// Args stores the whitespace-split tokens following the command word.
	Args []string
	// SourceMessageID identifies the inbound message that produced this command.
	SourceMessageID string
	// RawInput stores the original inbound message text.
	RawInput string
}

// Validate checks command invocation contract fields.
func (c *CommandInvocation) Validate() error {
	if c == nil {
		return fmt.Errorf("validate command invocation: nil invocation")
	}
	if NormalizeCommandName(c.Name) == "" {
		return fmt.Errorf("validate command invocation: missing name")
	}
	if c.SourceMessageID == "" {
		return fmt.Errorf("validate command invocation: missing source_message_id")
	}

	return nil
}

// ArgsTail returns all arguments from index onward joined by single spaces.
func (c *CommandInvocation) ArgsTail(index int) string {
	if c == nil || index >= len(c.Args) {
		return ""
	}

	return strings.Join(c.Args[index:], " ")
}

// RawTail returns the unprocessed remainder of the original input after the
// matched prefix, the command word, and the first count arguments. Unlike
// ArgsTail it preserves the interior whitespace the user typed, so multi-line
// content survives verbatim. Invocations without raw input fall back to
// ArgsTail.
func (c *CommandInvocation) RawTail(count int) string {
	if c == nil {
		return ""
	}
	rest, found := strings.CutPrefix(c.RawInput, c.MatchedPrefix)
	if c.RawInput == "" || !found {
		return c.ArgsTail(count)
	}

	for skipped := 0; skipped <= count; skipped++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		cut := strings.IndexFunc(rest, unicode.IsSpace)
		if cut < 0 {
			return ""
		}
		rest = rest[cut:]
	}

	return strings.TrimLeftFunc(rest, unicode.IsSpace)
}

// NormalizeCommandName folds a command word to its canonical lookup form.
func NormalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// NormalizeTagName folds a tag name to its canonical stored form.
func NormalizeTagName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// CommandCatalog lists registered command specs for help rendering.
type CommandCatalog interface {
	// Commands returns all registered command specs in registration order.
	Commands() []CommandSpec
}
