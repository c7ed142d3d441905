// Package help renders the registered command catalog for users.
package help

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

const commandName = "help"

// Module serves the help command from the kernel's command catalog.
type Module struct {
	logger *slog.Logger

	dispatcher jolteon.Dispatcher
	catalog    jolteon.CommandCatalog
	resolver   jolteon.PrefixResolver
}

// New creates the help module.
func New(logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}

	return &Module{logger: logger}
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "help"
}

// Spec declares the help command. It works in private conversations too, so
// no community gate applies.
func (m *Module) Spec() jolteon.ModuleSpec {
	return jolteon.ModuleSpec{
		Handlers: []jolteon.ModuleHandler{
			{
				Capability: jolteon.Capability{
					Name:        "help-command-handler",
					Description: "renders the registered command catalog",
					Interest: jolteon.InterestSet{
						Kinds:          []jolteon.EventKind{jolteon.EventKindCommandInvoked},
						RequireCommand: true,
						CommandNames:   []string{commandName},
					},
					RequiredServices: []string{
						jolteon.ServiceDispatcher,
						jolteon.ServiceCommandCatalog,
						jolteon.ServicePrefixResolver,
					},
				},
				Subscription: jolteon.NewDefaultSubscriptionSpec("help-commands"),
				Handler:      m.handleHelp,
			},
		},
		Commands: []jolteon.CommandSpec{
			{
				Name:        commandName,
				Aliases:     []string{"man"},
				Description: "show available commands",
			},
		},
	}
}

// OnRegister resolves the dispatcher, the command catalog, and the prefix
// resolution service.
func (m *Module) OnRegister(_ context.Context, runtime jolteon.ModuleRuntime) error {
	services := runtime.Services()

	dispatcher, err := jolteon.ResolveAs[jolteon.Dispatcher](services, jolteon.ServiceDispatcher)
	if err != nil {
		return fmt.Errorf("help resolve dispatcher: %w", err)
	}
	catalog, err := jolteon.ResolveAs[jolteon.CommandCatalog](services, jolteon.ServiceCommandCatalog)
	if err != nil {
		return fmt.Errorf("help resolve catalog: %w", err)
	}
	resolver, err := jolteon.ResolveAs[jolteon.PrefixResolver](services, jolteon.ServicePrefixResolver)
	if err != nil {
		return fmt.Errorf("help resolve prefix resolver: %w", err)
	}

	m.dispatcher = dispatcher
	m.catalog = catalog
	m.resolver = resolver

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(_ context.Context) error {
	return nil
}

// OnShutdown completes the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

// handleHelp replies with the catalog rendered under the conversation's
// active prefix.
func (m *Module) handleHelp(ctx context.Context, event *jolteon.Event) error {
	if event == nil || event.Command == nil {
		return nil
	}

	prefix := jolteon.DefaultPrefix
	if prefixes := m.resolver.Resolve(ctx, event.CommunityID); len(prefixes) > 0 {
		prefix = prefixes[0]
	}

	target, err := jolteon.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("help target: %w", err)
	}

	_, err = m.dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
		Target:           target,
		Text:             renderCatalog(prefix, m.catalog.Commands()),
		ReplyToMessageID: event.Command.SourceMessageID,
	})
	if err != nil {
		return fmt.Errorf("send help reply: %w", err)
	}

	return nil
}

// renderCatalog formats one line per registered command.
func renderCatalog(prefix string, commands []jolteon.CommandSpec) string {
	var builder strings.Builder
	builder.WriteString("Available commands (prefix `")
	builder.WriteString(prefix)
	builder.WriteString("`):\n")

	for _, command := range commands {
		builder.WriteString("`")
		builder.WriteString(prefix)
		builder.WriteString(command.Name)
		if command.Usage != "" {
			builder.WriteString(" ")
			builder.WriteString(command.Usage)
		}
		builder.WriteString("`")
		if command.Description != "" {
			builder.WriteString(" - ")
			builder.WriteString(command.Description)
		}
		if len(command.Aliases) > 0 {
			builder.WriteString(" (aliases: ")
			builder.WriteString(strings.Join(command.Aliases, ", "))
			builder.WriteString(")")
		}
		builder.WriteString("\n")
	}

	return strings.TrimRight(builder.String(), "\n")
}

var _ jolteon.Module = (*Module)(nil)
