// Package prefix owns per-community invocation prefixes: the storage-backed
// resolver used by the kernel router and the administrative prefix command.
package prefix

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

const (
	commandName = "prefix"

	usageReplyTTL = 30 * time.Second
)

// Module registers the prefix resolver service and the prefix command.
type Module struct {
	defaultPrefix string
	logger        *slog.Logger

	resolver   *Resolver
	dispatcher jolteon.Dispatcher
}

// New creates the prefix module.
func New(defaultPrefix string, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	return &Module{
		defaultPrefix: defaultPrefix,
		logger:        logger,
	}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "prefix"
}

// Spec declares the prefix command and its command-event handler.
func (m *Module) Spec() jolteon.ModuleSpec {
	return jolteon.ModuleSpec{
		Handlers: []jolteon.ModuleHandler{
			{
				Capability: jolteon.Capability{
					Name:        "prefix-command-handler",
					Description: "stores a community's invocation prefix",
					Interest: jolteon.InterestSet{
						Kinds:          []jolteon.EventKind{jolteon.EventKindCommandInvoked},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						jolteon.ServiceDispatcher,
						jolteon.ServicePrefixStore,
						jolteon.ServiceBotIdentity,
					},
				},
				Subscription: jolteon.NewDefaultSubscriptionSpec("prefix-commands"),
				Handler:      m.handleSetPrefix,
			},
		},
		Commands: []jolteon.CommandSpec{
			{
				Name:               commandName,
				Description:        "set this community's command prefix",
				Usage:              "<newprefix>",
				RequiredCapability: jolteon.CapabilityAdministrator,
				CommunityOnly:      true,
			},
		},
	}
}

// OnRegister builds the resolver from storage and identity services and
// publishes it for the kernel command router.
func (m *Module) OnRegister(_ context.Context, runtime jolteon.ModuleRuntime) error {
	services := runtime.Services()

	dispatcher, err := jolteon.ResolveAs[jolteon.Dispatcher](services, jolteon.ServiceDispatcher)
	if err != nil {
		return fmt.Errorf("prefix resolve dispatcher: %w", err)
	}
	store, err := jolteon.ResolveAs[jolteon.PrefixStore](services, jolteon.ServicePrefixStore)
	if err != nil {
		return fmt.Errorf("prefix resolve store: %w", err)
	}
	identity, err := jolteon.ResolveAs[jolteon.BotIdentity](services, jolteon.ServiceBotIdentity)
	if err != nil {
		return fmt.Errorf("prefix resolve bot identity: %w", err)
	}

	resolver, err := NewResolver(store, identity, m.defaultPrefix, m.logger)
	if err != nil {
		return fmt.Errorf("prefix build resolver: %w", err)
	}
	if err := services.Register(jolteon.ServicePrefixResolver, jolteon.PrefixResolver(resolver)); err != nil {
		return fmt.Errorf("prefix register resolver service: %w", err)
	}

	m.dispatcher = dispatcher
	m.resolver = resolver

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

// handleSetPrefix stores the new prefix and confirms it to the invoker.
func (m *Module) handleSetPrefix(ctx context.Context, event *jolteon.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}

	target, err := jolteon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("prefix derive outbound target: %w", err)
	}

	newPrefix := event.Command.ArgsTail(0)
	if newPrefix == "" {
		_, err = m.dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
			Target:           target,
			Text:             "Missing required argument!\nUsage:`prefix <newprefix>`",
			ReplyToMessageID: event.Command.SourceMessageID,
			TTL:              usageReplyTTL,
		})
		if err != nil {
			return fmt.Errorf("prefix send usage reply: %w", err)
		}

		return nil
	}

	if err := m.resolver.SetPrefix(ctx, event.CommunityID, newPrefix); err != nil {
		return fmt.Errorf("prefix store new prefix: %w", err)
	}

	m.logger.InfoContext(ctx, "community prefix updated",
		"community_id", event.CommunityID,
		"prefix", newPrefix,
	)

	_, err = m.dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
		Target:           target,
		Text:             "Prefix set to " + newPrefix,
		ReplyToMessageID: event.Command.SourceMessageID,
	})
	if err != nil {
		return fmt.Errorf("prefix send confirmation: %w", err)
	}

	return nil
}

var _ jolteon.Module = (*Module)(nil)
