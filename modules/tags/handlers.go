package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

const (
	tagUsageReplyTTL    = 30 * time.Second
	tagDeleteConfirmTTL = 10 * time.Second
	tagReplyPreamble    = "Please refer to the below information."
	tagReplyFooter      = "I am a bot, i will not respond to you | Request by "
	tagAddUsageReply    = "Missing required argument!\nUsage:`tagadd <name> <contents>`"
	tagDeleteUsageReply = "Missing required argument!\nUsage:`tagdelete <name>`"
	tagsListEmptyReply  = "This community has no tags yet."
)

// handleTag aggregates the named tags into one reply and arms it for
// retraction by the requester.
func (m *Module) handleTag(ctx context.Context, event *jolteon.Event) error {
	communityID, err := parseCommunityID(event.CommunityID)
	if err != nil {
		return fmt.Errorf("tag command community id: %w", err)
	}

	var roleMentionIDs []string
	if event.Message != nil {
		roleMentionIDs = event.Message.RoleMentionIDs
	}

	result, err := m.aggregator.Invoke(ctx, communityID, event.Actor, event.Command.Args, roleMentionIDs)
	if err != nil {
		return err
	}

	target, err := jolteon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("tag command target: %w", err)
	}

	reply, err := m.dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
		Target: target,
		Text:   renderTagReply(result),
	})
	if err != nil {
		return fmt.Errorf("send tag reply: %w", err)
	}

	// The reply replaces the invocation. Platforms that forbid deleting
	// other users' messages just leave it standing.
	m.deleteSourceMessage(ctx, event, target)

	if err := m.watchtower.Arm(reply.ID, event.Actor.ID, target); err != nil {
		m.logger.ErrorContext(ctx, "arming tag reply for retraction failed",
			slog.String("reply_id", reply.ID),
			slog.String("error", err.Error()))
	}

	return nil
}

// handleTagAdd creates or replaces one tag after the write-time guards.
func (m *Module) handleTagAdd(ctx context.Context, event *jolteon.Event) error {
	invocation := event.Command
	if len(invocation.Args) < 2 {
		return m.sendUsageReply(ctx, event, tagAddUsageReply)
	}

	name := invocation.Args[0]
	contents := invocation.RawTail(1)

	if jolteon.IsMentionToken(name) {
		return &jolteon.GuardRejectionError{Reason: jolteon.GuardPingShapedName}
	}
	if len(contents) > jolteon.MaxTagContentLength {
		return &jolteon.GuardRejectionError{Reason: jolteon.GuardContentTooLong}
	}

	communityID, err := parseCommunityID(event.CommunityID)
	if err != nil {
		return fmt.Errorf("tagadd community id: %w", err)
	}

	normalized := jolteon.NormalizeTagName(name)
	if err := m.store.UpsertTag(ctx, communityID, normalized, contents); err != nil {
		return fmt.Errorf("store tag %s: %w", normalized, err)
	}

	return m.sendReply(ctx, event, jolteon.SendMessageRequest{
		Text: fmt.Sprintf("Tag added with name `%s` and contents `%s`", normalized, contents),
	})
}

// handleTagDelete removes one tag and confirms with a short-lived reply.
func (m *Module) handleTagDelete(ctx context.Context, event *jolteon.Event) error {
	invocation := event.Command
	if len(invocation.Args) == 0 {
		return m.sendUsageReply(ctx, event, tagDeleteUsageReply)
	}

	communityID, err := parseCommunityID(event.CommunityID)
	if err != nil {
		return fmt.Errorf("tagdelete community id: %w", err)
	}

	normalized := jolteon.NormalizeTagName(invocation.Args[0])
	if err := m.store.DeleteTag(ctx, communityID, normalized); err != nil {
		return fmt.Errorf("delete tag %s: %w", normalized, err)
	}

	if err := m.sendReply(ctx, event, jolteon.SendMessageRequest{
		Text: fmt.Sprintf("tag `%s` deleted", normalized),
		TTL:  tagDeleteConfirmTTL,
	}); err != nil {
		return err
	}

	target, targetErr := jolteon.OutboundTargetFromEvent(event)
	if targetErr == nil {
		m.deleteSourceMessage(ctx, event, target)
	}

	return nil
}

// handleTagsList replies with every tag name stored for the community.
func (m *Module) handleTagsList(ctx context.Context, event *jolteon.Event) error {
	communityID, err := parseCommunityID(event.CommunityID)
	if err != nil {
		return fmt.Errorf("tagslist community id: %w", err)
	}

	names, err := m.store.ListTags(ctx, communityID)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}

	if len(names) == 0 {
		return m.sendReply(ctx, event, jolteon.SendMessageRequest{Text: tagsListEmptyReply})
	}

	var builder strings.Builder
	builder.WriteString("Tags in this community:\n")
	for _, name := range names {
		builder.WriteString("`")
		builder.WriteString(name)
		builder.WriteString("` ")
	}

	return m.sendReply(ctx, event, jolteon.SendMessageRequest{
		Text: strings.TrimRight(builder.String(), " "),
	})
}

// renderTagReply assembles the outbound tag response body.
func renderTagReply(result *AggregationResult) string {
	var builder strings.Builder
	if len(result.Mentions) > 0 {
		builder.WriteString(strings.Join(result.Mentions, " "))
		builder.WriteString(" ")
	}
	builder.WriteString(tagReplyPreamble)
	builder.WriteString("\n\n")
	builder.WriteString(result.Body)
	builder.WriteString("\n\n")
	builder.WriteString(tagReplyFooter)
	builder.WriteString(result.RequesterDisplay)

	return builder.String()
}

// sendReply fills the target and reply linkage from the triggering event.
func (m *Module) sendReply(ctx context.Context, event *jolteon.Event, request jolteon.SendMessageRequest) error {
	target, err := jolteon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("derive reply target: %w", err)
	}
	request.Target = target
	request.ReplyToMessageID = event.Command.SourceMessageID

	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	return nil
}

func (m *Module) sendUsageReply(ctx context.Context, event *jolteon.Event, text string) error {
	return m.sendReply(ctx, event, jolteon.SendMessageRequest{
		Text: text,
		TTL:  tagUsageReplyTTL,
	})
}

// deleteSourceMessage best-effort removes the invoking message. Failures are
// logged, never surfaced.
func (m *Module) deleteSourceMessage(ctx context.Context, event *jolteon.Event, target jolteon.OutboundTarget) {
	sourceID := event.Command.SourceMessageID
	if sourceID == "" {
		return
	}

	err := m.dispatcher.DeleteMessage(ctx, jolteon.DeleteMessageRequest{
		Target:    target,
		MessageID: sourceID,
	})
	if err != nil && !errors.Is(err, jolteon.ErrMessageNotFound) {
		m.logger.DebugContext(ctx, "deleting invocation message failed",
			slog.String("message_id", sourceID),
			slog.String("error", err.Error()))
	}
}

// parseCommunityID converts the envelope community identifier to storage form.
func parseCommunityID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse community id %q: %w", raw, err)
	}

	return id, nil
}
