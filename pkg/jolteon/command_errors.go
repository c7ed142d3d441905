package jolteon

import "fmt"

// GuardReason identifies which pre-storage safety guard rejected an invocation.
type GuardReason string

const (
	// GuardMassMention rejects tokens carrying broadcast ping markers.
	GuardMassMention GuardReason = "mass_mention"
	// GuardRoleMention rejects invocations carrying role mentions.
	GuardRoleMention GuardReason = "role_mention"
	// GuardTooLong rejects aggregated replies reaching the size bound.
	GuardTooLong GuardReason = "too_long"
	// GuardNoTagSpecified rejects invocations naming zero tags.
	GuardNoTagSpecified GuardReason = "no_tag_specified"
	// GuardContentTooLong rejects tag contents over the write-time bound.
	GuardContentTooLong GuardReason = "content_too_long"
	// GuardPingShapedName rejects tag names shaped like user mentions.
	GuardPingShapedName GuardReason = "ping_shaped_name"
)

// GuardRejectionError reports that user input violated a safety or size policy.
//
// Guard rejections are expected, carry no side effects, and are surfaced to
// the user as one short specific message. They are never retried.
type GuardRejectionError struct {
	Reason GuardReason
}

// Error implements the error interface.
func (e *GuardRejectionError) Error() string {
	return fmt.Sprintf("guard rejection: %s", e.Reason)
}

// TagNotFoundError reports that one requested tag is absent. It aborts any
// remaining resolution in the invocation that produced it.
type TagNotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *TagNotFoundError) Error() string {
	return fmt.Sprintf("tag %q not found", e.Name)
}

// PermissionDeniedError reports that the invoking actor lacks a capability
// required by the command.
type PermissionDeniedError struct {
	Capability ActorCapability
}

// Error implements the error interface.
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: requires %s", e.Capability)
}

// CommunityOnlyError reports that a community-scoped command was invoked in a
// private conversation.
type CommunityOnlyError struct {
	Command string
}

// Error implements the error interface.
func (e *CommunityOnlyError) Error() string {
	return fmt.Sprintf("command %s can only be used in communities", e.Command)
}
