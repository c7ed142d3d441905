package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

const (
	transientReplyTTL    = 15 * time.Second
	apologyReplyTTL      = 30 * time.Second
	unhandledReplyFormat = "Error!\n```%s```\nThe operator will be informed.  Most likely this is a bug, but check your syntax."
)

// errorReply is one rendered user-facing failure message.
type errorReply struct {
	text string
	ttl  time.Duration
}

// respondCommandErrors wraps a command handler so its typed failures become
// user replies. Handlers return errors from the closed taxonomy; anything
// outside it is reported to the operator and answered with the apology.
func (k *Kernel) respondCommandErrors(handler jolteon.EventHandler) jolteon.EventHandler {
	return func(ctx context.Context, event *jolteon.Event) error {
		handlerErr := handler(ctx, event)
		if handlerErr == nil {
			return nil
		}

		if isUnhandledCommandError(handlerErr) {
			k.reportToOperator(ctx, event, handlerErr)
		}

		reply := commandErrorReply(handlerErr)
		if err := k.sendErrorReply(ctx, event, reply); err != nil {
			return errors.Join(handlerErr, err)
		}

		return nil
	}
}

// commandErrorReply maps the closed command-error taxonomy to reply texts.
func commandErrorReply(handlerErr error) errorReply {
	var guardErr *jolteon.GuardRejectionError
	if errors.As(handlerErr, &guardErr) {
		return guardReply(guardErr.Reason)
	}

	var notFoundErr *jolteon.TagNotFoundError
	if errors.As(handlerErr, &notFoundErr) {
		return errorReply{
			text: fmt.Sprintf("tag `%s` not found!", notFoundErr.Name),
			ttl:  transientReplyTTL,
		}
	}

	var permissionErr *jolteon.PermissionDeniedError
	if errors.As(handlerErr, &permissionErr) {
		return errorReply{text: "You are not allowed to do that!"}
	}

	var communityErr *jolteon.CommunityOnlyError
	if errors.As(handlerErr, &communityErr) {
		return errorReply{text: "That can only be used in communities, not private messages!"}
	}

	if errors.Is(handlerErr, jolteon.ErrStorageUnavailable) {
		return errorReply{
			text: "Storage is unavailable right now, please try again later.",
			ttl:  apologyReplyTTL,
		}
	}

	return errorReply{
		text: fmt.Sprintf(unhandledReplyFormat, handlerErr.Error()),
		ttl:  apologyReplyTTL,
	}
}

// guardReply keeps the original wording for every guard rejection.
func guardReply(reason jolteon.GuardReason) errorReply {
	switch reason {
	case jolteon.GuardMassMention:
		return errorReply{text: "Mass ping attempt detected, no actions taken."}
	case jolteon.GuardRoleMention:
		return errorReply{text: "Role mention attempt detected, no actions taken"}
	case jolteon.GuardTooLong:
		return errorReply{text: "You have too many factoids!"}
	case jolteon.GuardNoTagSpecified:
		return errorReply{text: "You need to specify a tag!", ttl: transientReplyTTL}
	case jolteon.GuardContentTooLong:
		return errorReply{text: "That factoid is too long!"}
	case jolteon.GuardPingShapedName:
		return errorReply{text: "You cannot have a ping factoid."}
	default:
		return errorReply{
			text: fmt.Sprintf(unhandledReplyFormat, "guard rejection: "+string(reason)),
			ttl:  apologyReplyTTL,
		}
	}
}

// isUnhandledCommandError reports whether an error falls outside the taxonomy.
func isUnhandledCommandError(handlerErr error) bool {
	var guardErr *jolteon.GuardRejectionError
	var notFoundErr *jolteon.TagNotFoundError
	var permissionErr *jolteon.PermissionDeniedError
	var communityErr *jolteon.CommunityOnlyError

	switch {
	case errors.As(handlerErr, &guardErr),
		errors.As(handlerErr, &notFoundErr),
		errors.As(handlerErr, &permissionErr),
		errors.As(handlerErr, &communityErr),
		errors.Is(handlerErr, jolteon.ErrStorageUnavailable):
		return false
	default:
		return true
	}
}

// reportToOperator forwards a failure diagnostic to the operator reporter.
// Reporting is best effort and never masks the user-facing reply.
func (k *Kernel) reportToOperator(ctx context.Context, event *jolteon.Event, handlerErr error) {
	reporter, err := jolteon.ResolveAs[jolteon.OperatorReporter](k.services, jolteon.ServiceOperatorReporter)
	if err != nil {
		k.cfg.onAsyncError(ctx, "resolve operator reporter", err)
		return
	}

	commandName := ""
	if event != nil && event.Command != nil {
		commandName = event.Command.Name
	}
	if err := reporter.Report(ctx, commandName, handlerErr.Error()); err != nil {
		k.cfg.onAsyncError(ctx, "report to operator", err)
	}
}

// sendErrorReply answers the invoking user with one failure message.
func (k *Kernel) sendErrorReply(ctx context.Context, event *jolteon.Event, reply errorReply) error {
	dispatcher, err := jolteon.ResolveAs[jolteon.Dispatcher](k.services, jolteon.ServiceDispatcher)
	if err != nil {
		return fmt.Errorf("error reply resolve dispatcher: %w", err)
	}

	target, err := jolteon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("error reply derive target: %w", err)
	}

	_, err = dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
		Target:           target,
		Text:             reply.text,
		ReplyToMessageID: replyToMessageID(event),
		TTL:              reply.ttl,
	})
	if err != nil {
		return fmt.Errorf("error reply send: %w", err)
	}

	return nil
}
