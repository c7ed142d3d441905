package jolteon

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindMessageCreated is emitted when a new message is posted.
	EventKindMessageCreated EventKind = "message.created"
	// EventKindMessageDeleted is emitted when a message is deleted.
	EventKindMessageDeleted EventKind = "message.deleted"
	// EventKindReactionAdded is emitted when a reaction is added to a message.
	EventKindReactionAdded EventKind = "reaction.added"
	// EventKindReactionRemoved is emitted when a reaction is removed from a message.
	EventKindReactionRemoved EventKind = "reaction.removed"
	// EventKindCommandInvoked is emitted by the kernel when an inbound message
	// binds to a registered command behind the community's resolved prefix.
	EventKindCommandInvoked EventKind = "command.invoked"
)

// Platform identifies an external chat platform source.
type Platform string

const (
	// PlatformConsole is the built-in local development transport.
	PlatformConsole Platform = "console"
)

// ConversationType identifies conversation scope.
type ConversationType string

const (
	// ConversationTypePrivate is a direct/private conversation. Private
	// conversations have no community and always use the default prefix.
	ConversationTypePrivate ConversationType = "private"
	// ConversationTypeCommunity is a community (guild/server) conversation.
	ConversationTypeCommunity ConversationType = "community"
)

// Event is the neutral protocol envelope that drivers publish and modules consume.
//
// Message, Reaction, and Command are optional payload branches selected by Kind.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the source-platform timestamp for the event.
	OccurredAt time.Time
	// Platform identifies the upstream platform that produced the event.
	Platform Platform
	// CommunityID scopes the event to an isolated community namespace.
	// Empty for private conversations.
	CommunityID string
	// Conversation identifies where the event happened.
	Conversation Conversation
	// Actor identifies who initiated the event.
	Actor Actor
	// Message carries message content for message events.
	Message *Message
	// Reaction carries emoji reaction metadata for reaction events.
	Reaction *Reaction
	// Command carries the bound invocation for command events.
	Command *CommandInvocation
}

// Conversation identifies the neutral destination where an event occurred.
type Conversation struct {
	// ID is the stable conversation identifier on the source platform.
	ID string
	// Type describes the conversation scope.
	Type ConversationType
	// Title is a best-effort display label for the conversation.
	Title string
}

// ActorCapability names a platform permission the command layer can gate on.
type ActorCapability string

const (
	// CapabilityManageMessages gates tag mutation commands.
	CapabilityManageMessages ActorCapability = "manage_messages"
	// CapabilityAdministrator gates community administration commands.
	CapabilityAdministrator ActorCapability = "administrator"
)

// Actor identifies the user that initiated an event.
type Actor struct {
	// ID is the stable actor identifier on the source platform.
	ID string
	// Username is the platform handle when available.
	Username string
	// DisplayName is the human-readable actor name.
	DisplayName string
	// IsBot reports whether the actor is an automated account.
	IsBot bool
	// Capabilities lists the platform permissions held by the actor in the
	// event's conversation, as reported by the driver.
	Capabilities []ActorCapability
}

// Has reports whether the actor holds one capability.
func (a Actor) Has(capability ActorCapability) bool {
	for _, held := range a.Capabilities {
		if held == capability {
			return true
		}
	}

	return false
}

// Display returns the best human-readable identity for reply footers.
func (a Actor) Display() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Username != "" {
		return a.Username
	}

	return a.ID
}

// UserMention is one user reference carried inside a message.
type UserMention struct {
	// UserID is the referenced user's stable identifier.
	UserID string
	// Raw is the literal mention token as it appeared in the text.
	Raw string
}

// Message holds neutral message content.
type Message struct {
	// ID is the message identifier on the source platform.
	ID string
	// ReplyToID is the parent message identifier when this is a reply.
	ReplyToID string
	// Text is the normalized message text body.
	Text string
	// Mentions lists user references carried by the message.
	Mentions []UserMention
	// RoleMentionIDs lists role references carried by the message.
	RoleMentionIDs []string
}

// Reaction holds neutral reaction/emoji metadata.
type Reaction struct {
	// MessageID identifies the message receiving the reaction mutation.
	MessageID string
	// Emoji is the normalized emoji token.
	Emoji string
}

// Validate checks event envelope and payload coherence.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindMessageCreated, EventKindMessageDeleted:
		if e.Message == nil {
			return fmt.Errorf("%w: %s requires message payload", ErrInvalidEvent, e.Kind)
		}
	case EventKindReactionAdded, EventKindReactionRemoved:
		if e.Reaction == nil {
			return fmt.Errorf("%w: %s requires reaction payload", ErrInvalidEvent, e.Kind)
		}
	case EventKindCommandInvoked:
		if e.Command == nil {
			return fmt.Errorf("%w: %s requires command payload", ErrInvalidEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
