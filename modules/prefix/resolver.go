package prefix

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// Resolver resolves per-community invocation prefixes from storage.
//
// Every resolution performs a fresh lookup so prefix changes apply to the
// next message without caching or invalidation.
type Resolver struct {
	store         jolteon.PrefixStore
	identity      jolteon.BotIdentity
	defaultPrefix string
	logger        *slog.Logger
}

// NewResolver creates a storage-backed prefix resolver.
func NewResolver(
	store jolteon.PrefixStore,
	identity jolteon.BotIdentity,
	defaultPrefix string,
	logger *slog.Logger,
) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("new prefix resolver: nil store")
	}
	if defaultPrefix == "" {
		defaultPrefix = jolteon.DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:         store,
		identity:      identity,
		defaultPrefix: defaultPrefix,
		logger:        logger,
	}, nil
}

// Resolve returns the community's prefix set: the stored prefix when one
// exists, otherwise the default, always followed by the bot's mention forms.
// Storage failures degrade to the default so the bot stays responsive.
func (r *Resolver) Resolve(ctx context.Context, communityID string) jolteon.PrefixSet {
	prefixes := jolteon.PrefixSet{r.defaultPrefix}

	if communityID != "" {
		if stored, found := r.lookupStored(ctx, communityID); found {
			prefixes[0] = stored
		}
	}

	return append(prefixes, r.identity.MentionForms...)
}

// SetPrefix stores newPrefix for the community, replacing any previous value.
// The value is stored verbatim; empty and whitespace prefixes are permitted.
func (r *Resolver) SetPrefix(ctx context.Context, communityID string, newPrefix string) error {
	numericID, err := parseCommunityID(communityID)
	if err != nil {
		return fmt.Errorf("set prefix: %w", err)
	}

	if err := r.store.SetPrefix(ctx, numericID, newPrefix); err != nil {
		return fmt.Errorf("set prefix for community %s: %w", communityID, err)
	}

	return nil
}

// lookupStored performs one storage lookup and swallows failures with a log.
func (r *Resolver) lookupStored(ctx context.Context, communityID string) (string, bool) {
	numericID, err := parseCommunityID(communityID)
	if err != nil {
		r.logger.WarnContext(ctx, "prefix lookup skipped for malformed community id",
			"community_id", communityID,
			"error", err,
		)
		return "", false
	}

	stored, found, err := r.store.GetPrefix(ctx, numericID)
	if err != nil {
		r.logger.ErrorContext(ctx, "prefix lookup failed, using default",
			"community_id", communityID,
			"error", err,
		)
		return "", false
	}

	return stored, found
}

// parseCommunityID converts the event-level community identity to storage form.
func parseCommunityID(communityID string) (int64, error) {
	numericID, err := strconv.ParseInt(communityID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse community id %q: %w", communityID, err)
	}

	return numericID, nil
}

var _ jolteon.PrefixResolver = (*Resolver)(nil)
