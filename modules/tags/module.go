// Package tags implements the factoid engine: tag aggregation with safety
// guards, tag management commands, and reaction-driven reply retraction.
package tags

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

const (
	tagCommandName       = "tag"
	tagAddCommandName    = "tagadd"
	tagDeleteCommandName = "tagdelete"
	tagsListCommandName  = "tagslist"
)

// Module owns the tag command surface and the retraction protocol.
type Module struct {
	retractionTimeout time.Duration
	logger            *slog.Logger

	dispatcher jolteon.Dispatcher
	store      jolteon.TagStore
	aggregator *Aggregator
	watchtower *Watchtower
}

// New creates the tags module. A non-positive retraction timeout selects the
// default window.
func New(retractionTimeout time.Duration, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	return &Module{
		retractionTimeout: retractionTimeout,
		logger:            logger,
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "tags"
}

// Spec declares tag commands, the command handler, and the reaction handler.
func (m *Module) Spec() jolteon.ModuleSpec {
	return jolteon.ModuleSpec{
		Handlers: []jolteon.ModuleHandler{
			{
				Capability: jolteon.Capability{
					Name:        "tags-command-handler",
					Description: "serves tag invocation and management commands",
					Interest: jolteon.InterestSet{
						Kinds:          []jolteon.EventKind{jolteon.EventKindCommandInvoked},
						RequireCommand: true,
						CommandNames: []string{
							tagCommandName,
							tagAddCommandName,
							tagDeleteCommandName,
							tagsListCommandName,
						},
					},
					RequiredServices: []string{
						jolteon.ServiceDispatcher,
						jolteon.ServiceTagStore,
					},
				},
				Subscription: jolteon.NewDefaultSubscriptionSpec("tags-commands"),
				Handler:      m.handleCommand,
			},
			{
				Capability: jolteon.Capability{
					Name:        "tags-retraction-handler",
					Description: "retracts bot replies on requester wastebasket reactions",
					Interest: jolteon.InterestSet{
						Kinds:           []jolteon.EventKind{jolteon.EventKindReactionAdded},
						RequireReaction: true,
					},
					RequiredServices: []string{jolteon.ServiceDispatcher},
				},
				Subscription: jolteon.NewDefaultSubscriptionSpec("tags-reactions"),
				Handler:      m.handleReaction,
			},
		},
		Commands: []jolteon.CommandSpec{
			{
				Name:          tagCommandName,
				Aliases:       []string{"t"},
				Description:   "call a tag (or two, or ten)",
				Usage:         "<name...> [@mention...]",
				CommunityOnly: true,
			},
			{
				Name:               tagAddCommandName,
				Aliases:            []string{"tmanage", "tagmanage", "tadd", "tm", "ta"},
				Description:        "add or edit tags",
				Usage:              "<name> <contents...>",
				RequiredCapability: jolteon.CapabilityManageMessages,
				CommunityOnly:      true,
			},
			{
				Name:               tagDeleteCommandName,
				Aliases:            []string{"trm", "tagremove"},
				Description:        "delete a tag",
				Usage:              "<name>",
				RequiredCapability: jolteon.CapabilityManageMessages,
				CommunityOnly:      true,
			},
			{
				Name:          tagsListCommandName,
				Aliases:       []string{"taglist", "tags"},
				Description:   "list this community's tags",
				CommunityOnly: true,
			},
		},
	}
}

// OnRegister resolves storage and outbound dependencies and builds the
// aggregator and watchtower.
func (m *Module) OnRegister(_ context.Context, runtime jolteon.ModuleRuntime) error {
	services := runtime.Services()

	dispatcher, err := jolteon.ResolveAs[jolteon.Dispatcher](services, jolteon.ServiceDispatcher)
	if err != nil {
		return fmt.Errorf("tags resolve dispatcher: %w", err)
	}
	store, err := jolteon.ResolveAs[jolteon.TagStore](services, jolteon.ServiceTagStore)
	if err != nil {
		return fmt.Errorf("tags resolve store: %w", err)
	}

	aggregator, err := NewAggregator(store, m.logger)
	if err != nil {
		return fmt.Errorf("tags build aggregator: %w", err)
	}
	watchtower, err := NewWatchtower(dispatcher, m.retractionTimeout, m.logger)
	if err != nil {
		return fmt.Errorf("tags build watchtower: %w", err)
	}

	m.dispatcher = dispatcher
	m.store = store
	m.aggregator = aggregator
	m.watchtower = watchtower

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown releases all armed retraction watchers.
func (m *Module) OnShutdown(_ context.Context) error {
	if m.watchtower != nil {
		m.watchtower.Close()
	}

	return nil
}

// handleCommand dispatches one bound tag command to its handler.
func (m *Module) handleCommand(ctx context.Context, event *jolteon.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}

	switch event.Command.Name {
	case tagCommandName:
		return m.handleTag(ctx, event)
	case tagAddCommandName:
		return m.handleTagAdd(ctx, event)
	case tagDeleteCommandName:
		return m.handleTagDelete(ctx, event)
	case tagsListCommandName:
		return m.handleTagsList(ctx, event)
	default:
		return nil
	}
}

// handleReaction forwards reaction events to the watchtower.
func (m *Module) handleReaction(ctx context.Context, event *jolteon.Event) error {
	return m.watchtower.HandleReaction(ctx, event)
}

var _ jolteon.Module = (*Module)(nil)
