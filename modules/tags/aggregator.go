package tags

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// AggregationResult is one successfully aggregated tag reply.
type AggregationResult struct {
	// Body is the joined tag contents.
	Body string
	// Mentions are the user-mention tokens to notify, in input order.
	Mentions []string
	// RequesterDisplay is the invoking user's display identity for the footer.
	RequesterDisplay string
}

// Aggregator resolves tag invocations against storage under the safety guards.
type Aggregator struct {
	store  jolteon.TagStore
	logger *slog.Logger
}

// NewAggregator creates a tag aggregator.
func NewAggregator(store jolteon.TagStore, logger *slog.Logger) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("new aggregator: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{store: store, logger: logger}, nil
}

// Invoke runs one tag invocation.
//
// Guards run strictly before storage access: any token smuggling a broadcast
// ping rejects the whole invocation, then role mentions reject, then tokens
// partition into user mentions and tag names. Tag names resolve sequentially
// left to right and the first miss aborts with no partial reply. The joined
// body is rejected, never truncated, when it reaches the aggregate bound.
func (a *Aggregator) Invoke(
	ctx context.Context,
	communityID int64,
	requester jolteon.Actor,
	tokens []string,
	roleMentionIDs []string,
) (*AggregationResult, error) {
	for _, token := range tokens {
		if jolteon.ContainsMassMention(token) {
			return nil, &jolteon.GuardRejectionError{Reason: jolteon.GuardMassMention}
		}
	}
	if len(roleMentionIDs) > 0 {
		return nil, &jolteon.GuardRejectionError{Reason: jolteon.GuardRoleMention}
	}

	mentions := make([]string, 0, len(tokens))
	names := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if jolteon.IsMentionToken(token) {
			mentions = append(mentions, token)
			continue
		}
		names = append(names, token)
	}
	if len(names) == 0 {
		return nil, &jolteon.GuardRejectionError{Reason: jolteon.GuardNoTagSpecified}
	}

	contents := make([]string, 0, len(names))
	for _, name := range names {
		name = jolteon.NormalizeTagName(name)
		content, found, err := a.store.GetTag(ctx, communityID, name)
		if err != nil {
			return nil, fmt.Errorf("resolve tag %s: %w", name, err)
		}
		if !found {
			return nil, &jolteon.TagNotFoundError{Name: name}
		}
		contents = append(contents, content)
	}

	body := strings.Join(contents, "\n\n")
	if len(body) >= jolteon.MaxAggregateLength {
		return nil, &jolteon.GuardRejectionError{Reason: jolteon.GuardTooLong}
	}

	a.logger.DebugContext(ctx, "tag invocation aggregated",
		"community_id", communityID,
		"tags", len(names),
		"mentions", len(mentions),
	)

	return &AggregationResult{
		Body:             body,
		Mentions:         mentions,
		RequesterDisplay: requester.Display(),
	}, nil
}
