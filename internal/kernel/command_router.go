package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

type commandRegistration struct {
	moduleName string
	spec       jolteon.CommandSpec
}

// registerModuleCommands validates and registers module-owned command specs.
// Every command word, canonical name and aliases alike, becomes a lookup key.
func (k *Kernel) registerModuleCommands(moduleName string, commands []jolteon.CommandSpec) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]jolteon.CommandSpec, 0, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}
		normalized = append(normalized, cloneCommandSpec(command))
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		for _, word := range command.Words() {
			existing, exists := k.commands[word]
			if exists {
				return fmt.Errorf(
					"register command %s for module %s: word %s already registered by module %s",
					command.Name,
					moduleName,
					word,
					existing.moduleName,
				)
			}
		}
	}
	for _, command := range normalized {
		registration := commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
		for _, word := range command.Words() {
			k.commands[word] = registration
		}
		k.commandOrder = append(k.commandOrder, jolteon.NormalizeCommandName(command.Name))
	}

	return nil
}

// unregisterModuleCommands removes every command owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	removed := make(map[string]struct{})
	for word, registration := range k.commands {
		if registration.moduleName == moduleName {
			removed[jolteon.NormalizeCommandName(registration.spec.Name)] = struct{}{}
			delete(k.commands, word)
		}
	}
	if len(removed) == 0 {
		return
	}

	filtered := make([]string, 0, len(k.commandOrder))
	for _, name := range k.commandOrder {
		if _, gone := removed[name]; !gone {
			filtered = append(filtered, name)
		}
	}
	k.commandOrder = filtered
}

// lookupCommand resolves one command spec by any of its normalized words.
func (k *Kernel) lookupCommand(word string) (jolteon.CommandSpec, bool) {
	k.mu.RLock()
	registration, exists := k.commands[jolteon.NormalizeCommandName(word)]
	k.mu.RUnlock()
	if !exists {
		return jolteon.CommandSpec{}, false
	}

	return cloneCommandSpec(registration.spec), true
}

// newDriverEventSink creates the source-event sink wrapped with command routing.
func (k *Kernel) newDriverEventSink() jolteon.EventSink {
	return &commandRoutingSink{
		base:          k.bus,
		lookupCommand: k.lookupCommand,
		serviceLookup: k.services,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandRoutingSink publishes source events and derives command events.
//
// Command derivation resolves the community prefix set on every inbound
// message so prefix changes take effect immediately without restarts.
type commandRoutingSink struct {
	base          jolteon.EventSink
	lookupCommand func(word string) (jolteon.CommandSpec, bool)
	serviceLookup jolteon.ServiceRegistry
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and conditionally derives one command event.
func (s *commandRoutingSink) Publish(ctx context.Context, event *jolteon.Event) error {
	if event == nil {
		return fmt.Errorf("publish command routing sink: nil event")
	}
	if s.base == nil {
		return fmt.Errorf("publish command routing sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	invocation, spec, ok := s.deriveInvocation(ctx, event)
	if !ok {
		return nil
	}

	if gateErr := gateInvocation(spec, event); gateErr != nil {
		s.replyGateRejection(ctx, event, gateErr)
		return nil
	}

	commandEvent := derivedCommandEvent(event, invocation)
	if err := s.base.Publish(ctx, commandEvent); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

// deriveInvocation parses an inbound message against the resolved prefix set
// and the command registry. Unmatched text and unknown words stay silent.
func (s *commandRoutingSink) deriveInvocation(
	ctx context.Context,
	event *jolteon.Event,
) (jolteon.CommandInvocation, jolteon.CommandSpec, bool) {
	if event.Kind != jolteon.EventKindMessageCreated || event.Message == nil {
		return jolteon.CommandInvocation{}, jolteon.CommandSpec{}, false
	}
	if event.Actor.IsBot {
		return jolteon.CommandInvocation{}, jolteon.CommandSpec{}, false
	}

	prefixes := s.resolvePrefixes(ctx, event.CommunityID)
	matchedPrefix, rest, matched := prefixes.Match(event.Message.Text)
	if !matched {
		return jolteon.CommandInvocation{}, jolteon.CommandSpec{}, false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return jolteon.CommandInvocation{}, jolteon.CommandSpec{}, false
	}

	word := jolteon.NormalizeCommandName(fields[0])
	spec, registered := s.lookupCommand(word)
	if !registered {
		return jolteon.CommandInvocation{}, jolteon.CommandSpec{}, false
	}

	invocation := jolteon.CommandInvocation{
		Name:            jolteon.NormalizeCommandName(spec.Name),
		MatchedWord:     word,
		MatchedPrefix:   matchedPrefix,
		Args:            fields[1:],
		SourceMessageID: event.Message.ID,
		RawInput:        event.Message.Text,
	}

	return invocation, spec, true
}

// resolvePrefixes returns the freshest prefix set for one community.
// When the resolver service is missing the router still answers on the
// default prefix plus whatever mention forms the identity service provides.
func (s *commandRoutingSink) resolvePrefixes(ctx context.Context, communityID string) jolteon.PrefixSet {
	resolver, err := jolteon.ResolveAs[jolteon.PrefixResolver](s.serviceLookup, jolteon.ServicePrefixResolver)
	if err == nil {
		return resolver.Resolve(ctx, communityID)
	}
	s.reportAsyncError(ctx, "resolve prefix resolver service", err)

	prefixes := jolteon.PrefixSet{jolteon.DefaultPrefix}
	identity, err := jolteon.ResolveAs[jolteon.BotIdentity](s.serviceLookup, jolteon.ServiceBotIdentity)
	if err != nil {
		return prefixes
	}

	return append(prefixes, identity.MentionForms...)
}

// gateInvocation enforces conversation-scope and actor-capability gates.
func gateInvocation(spec jolteon.CommandSpec, event *jolteon.Event) error {
	if spec.CommunityOnly && event.Conversation.Type != jolteon.ConversationTypeCommunity {
		return &jolteon.CommunityOnlyError{Command: jolteon.NormalizeCommandName(spec.Name)}
	}
	if spec.RequiredCapability != "" && !event.Actor.Has(spec.RequiredCapability) {
		return &jolteon.PermissionDeniedError{Capability: spec.RequiredCapability}
	}

	return nil
}

// replyGateRejection surfaces gate failures directly from the router since no
// module handler ever sees a gated invocation.
func (s *commandRoutingSink) replyGateRejection(ctx context.Context, event *jolteon.Event, gateErr error) {
	dispatcher, err := jolteon.ResolveAs[jolteon.Dispatcher](s.serviceLookup, jolteon.ServiceDispatcher)
	if err != nil {
		s.reportAsyncError(ctx, "gate rejection resolve dispatcher", err)
		return
	}

	target, err := jolteon.OutboundTargetFromEvent(event)
	if err != nil {
		s.reportAsyncError(ctx, "gate rejection derive target", err)
		return
	}

	reply := commandErrorReply(gateErr)
	_, err = dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
		Target:           target,
		Text:             reply.text,
		ReplyToMessageID: replyToMessageID(event),
		TTL:              reply.ttl,
	})
	if err != nil {
		s.reportAsyncError(ctx, "gate rejection send", err)
	}
}

func (s *commandRoutingSink) reportAsyncError(ctx context.Context, scope string, err error) {
	if s.reportAsync != nil {
		s.reportAsync(ctx, scope, err)
	}
}

// derivedCommandEvent builds the command event published after a successful bind.
func derivedCommandEvent(sourceEvent *jolteon.Event, invocation jolteon.CommandInvocation) *jolteon.Event {
	return &jolteon.Event{
		ID:          sourceEvent.ID + "#command",
		Kind:        jolteon.EventKindCommandInvoked,
		OccurredAt:  sourceEvent.OccurredAt,
		Platform:    sourceEvent.Platform,
		CommunityID: sourceEvent.CommunityID,
		Conversation: jolteon.Conversation{
			ID:    sourceEvent.Conversation.ID,
			Type:  sourceEvent.Conversation.Type,
			Title: sourceEvent.Conversation.Title,
		},
		Actor:   cloneActor(sourceEvent.Actor),
		Message: cloneMessage(sourceEvent.Message),
		Command: cloneCommandInvocation(invocation),
	}
}

// replyToMessageID picks the message an error reply should attach to.
func replyToMessageID(event *jolteon.Event) string {
	if event == nil {
		return ""
	}
	if event.Message != nil && event.Message.ID != "" {
		return event.Message.ID
	}
	if event.Command != nil {
		return event.Command.SourceMessageID
	}

	return ""
}

func cloneCommandSpec(spec jolteon.CommandSpec) jolteon.CommandSpec {
	cloned := spec
	cloned.Name = jolteon.NormalizeCommandName(spec.Name)
	if len(spec.Aliases) > 0 {
		cloned.Aliases = make([]string, 0, len(spec.Aliases))
		for _, alias := range spec.Aliases {
			cloned.Aliases = append(cloned.Aliases, jolteon.NormalizeCommandName(alias))
		}
	}

	return cloned
}

func cloneCommandInvocation(invocation jolteon.CommandInvocation) *jolteon.CommandInvocation {
	cloned := invocation
	if len(invocation.Args) > 0 {
		cloned.Args = append([]string(nil), invocation.Args...)
	}

	return &cloned
}

func cloneActor(actor jolteon.Actor) jolteon.Actor {
	cloned := actor
	if len(actor.Capabilities) > 0 {
		cloned.Capabilities = append([]jolteon.ActorCapability(nil), actor.Capabilities...)
	}

	return cloned
}

func cloneMessage(message *jolteon.Message) *jolteon.Message {
	if message == nil {
		return nil
	}

	cloned := *message
	if len(message.Mentions) > 0 {
		cloned.Mentions = append([]jolteon.UserMention(nil), message.Mentions...)
	}
	if len(message.RoleMentionIDs) > 0 {
		cloned.RoleMentionIDs = append([]string(nil), message.RoleMentionIDs...)
	}

	return &cloned
}
