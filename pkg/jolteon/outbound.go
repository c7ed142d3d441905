package jolteon

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOutboundRequest indicates an outbound request envelope violation.
var ErrInvalidOutboundRequest = errors.New("jolteon: invalid outbound request")

// Dispatcher sends neutral outbound operations to the active transport.
//
// Implementations enforce platform-specific constraints while preserving
// these protocol-level request semantics.
type Dispatcher interface {
	// SendMessage publishes a new outbound message to a destination conversation.
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	// DeleteMessage removes an existing message by ID. Deleting a message
	// that is already gone returns ErrMessageNotFound.
	DeleteMessage(ctx context.Context, request DeleteMessageRequest) error
}

// OutboundTarget identifies where an outbound operation should be delivered.
type OutboundTarget struct {
	// Conversation identifies the destination conversation.
	Conversation Conversation
}

// Validate checks target identity fields used for outbound routing.
func (t OutboundTarget) Validate() error {
	if t.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	}
	if t.Conversation.Type == "" {
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent derives a destination target from an inbound event.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}
	target := OutboundTarget{Conversation: event.Conversation}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage identifies a message successfully emitted by the dispatcher.
type OutboundMessage struct {
	// ID is the destination-platform message identifier.
	ID string
	// Target is the destination where this message was delivered.
	Target OutboundTarget
}

// SendMessageRequest describes a new outbound text message.
type SendMessageRequest struct {
	// Target identifies where the message should be sent.
	Target OutboundTarget
	// Text is the message body.
	Text string
	// ReplyToMessageID optionally links this message as a reply.
	ReplyToMessageID string
	// TTL hints that the message should be removed after this duration when
	// the platform supports it. Zero means the message stands indefinitely.
	TTL time.Duration
}

// Validate checks the request envelope before dispatch.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}

	return nil
}

// DeleteMessageRequest describes message deletion behavior.
type DeleteMessageRequest struct {
	// Target identifies where the message exists.
	Target OutboundTarget
	// MessageID identifies which message should be deleted.
	MessageID string
}

// Validate checks the request envelope before dispatch.
func (r DeleteMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate delete message target: %w", err)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidOutboundRequest)
	}

	return nil
}
