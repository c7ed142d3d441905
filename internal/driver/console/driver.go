// Package console implements a local development transport: stdin lines
// become inbound message events and outbound operations print to stdout.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

const (
	// DriverType is the configuration token selecting this driver.
	DriverType = "console"
	// DriverPlatform is the neutral platform for console runtimes.
	DriverPlatform = jolteon.PlatformConsole

	// reactionInputPrefix introduces a synthetic reaction line on stdin.
	reactionInputPrefix = "+react "
)

var (
	userMentionPattern = regexp.MustCompile(`<@!?([0-9]+)>`)
	roleMentionPattern = regexp.MustCompile(`<@&([0-9]+)>`)
)

// Config is the console driver JSON configuration payload.
type Config struct {
	// CommunityID scopes inbound events; empty simulates a private conversation.
	CommunityID string `json:"community_id"`
	// ConversationID identifies the single simulated conversation.
	ConversationID string `json:"conversation_id"`
	// Username is the bot's handle used for mention-form prefixes.
	Username string `json:"username"`
	// ActorID identifies the simulated local user.
	ActorID string `json:"actor_id"`
	// ActorName is the simulated local user's display name.
	ActorName string `json:"actor_name"`
	// ActorCapabilities lists platform permissions granted to the local user.
	ActorCapabilities []string `json:"actor_capabilities"`
	// Status is the presence status advertised when the driver starts.
	Status string `json:"status"`
	// ActivityText is the presence activity line advertised when the driver starts.
	ActivityText string `json:"activity_text"`
}

// applyDefaults fills unset fields with local development values.
// The local user holds every gated capability so all commands are reachable.
func (c *Config) applyDefaults() {
	if c.ConversationID == "" {
		c.ConversationID = "console"
	}
	if c.Username == "" {
		c.Username = "jolteon"
	}
	if c.ActorID == "" {
		c.ActorID = "local-user"
	}
	if c.ActorName == "" {
		c.ActorName = "Local User"
	}
	if c.Status == "" {
		c.Status = "online"
	}
	if c.ActorCapabilities == nil {
		c.ActorCapabilities = []string{
			string(jolteon.CapabilityManageMessages),
			string(jolteon.CapabilityAdministrator),
		}
	}
}

// BuildRuntimeFromConfig creates the console driver and its dispatcher pair.
func BuildRuntimeFromConfig(name string, logger *slog.Logger, raw []byte) (jolteon.Driver, jolteon.Dispatcher, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("build console runtime: empty name")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, nil, fmt.Errorf("decode console config: %w", err)
		}
	}
	cfg.applyDefaults()

	dispatcher := newDispatcher(os.Stdout, logger)
	consoleDriver := &Driver{
		name:   name,
		cfg:    cfg,
		logger: logger,
		input:  os.Stdin,
	}

	return consoleDriver, dispatcher, nil
}

// Driver consumes stdin lines and publishes neutral inbound events.
type Driver struct {
	name   string
	cfg    Config
	logger *slog.Logger
	input  io.Reader
}

// Name returns the configured driver instance identifier.
func (d *Driver) Name() string {
	return d.name
}

// Identity returns the bot identity simulated by the console transport.
func (d *Driver) Identity() jolteon.BotIdentity {
	return jolteon.BotIdentity{
		Username:     d.cfg.Username,
		MentionForms: []string{"@" + d.cfg.Username},
	}
}

// Start reads stdin until EOF or context cancellation.
func (d *Driver) Start(ctx context.Context, sink jolteon.EventSink) error {
	if sink == nil {
		return fmt.Errorf("console driver start: nil sink")
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(d.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	d.logger.InfoContext(ctx, "console driver listening",
		"driver", d.name,
		"community_id", d.cfg.CommunityID,
		"status", d.cfg.Status,
		"activity", d.cfg.ActivityText,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return fmt.Errorf("read console input: %w", err)
		case line, open := <-lines:
			if !open {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := sink.Publish(ctx, d.eventFromLine(line)); err != nil {
				d.logger.ErrorContext(ctx, "publish console event failed", "error", err)
			}
		}
	}
}

// Shutdown releases console resources. Stdin needs no explicit teardown.
func (d *Driver) Shutdown(ctx context.Context) error {
	d.logger.InfoContext(ctx, "console driver stopped", "driver", d.name)

	return nil
}

// eventFromLine maps one stdin line to an inbound event.
// "+react <message_id> <emoji>" simulates a reaction; anything else is a message.
func (d *Driver) eventFromLine(line string) *jolteon.Event {
	if reaction, ok := parseReactionLine(line); ok {
		return d.newEvent(jolteon.EventKindReactionAdded, func(event *jolteon.Event) {
			event.Reaction = reaction
		})
	}

	return d.newEvent(jolteon.EventKindMessageCreated, func(event *jolteon.Event) {
		event.Message = &jolteon.Message{
			ID:             uuid.NewString(),
			Text:           line,
			Mentions:       parseUserMentions(line),
			RoleMentionIDs: parseRoleMentions(line),
		}
	})
}

func (d *Driver) newEvent(kind jolteon.EventKind, attach func(*jolteon.Event)) *jolteon.Event {
	conversationType := jolteon.ConversationTypeCommunity
	if d.cfg.CommunityID == "" {
		conversationType = jolteon.ConversationTypePrivate
	}

	capabilities := make([]jolteon.ActorCapability, 0, len(d.cfg.ActorCapabilities))
	for _, capability := range d.cfg.ActorCapabilities {
		capabilities = append(capabilities, jolteon.ActorCapability(capability))
	}

	event := &jolteon.Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		OccurredAt:  time.Now().UTC(),
		Platform:    DriverPlatform,
		CommunityID: d.cfg.CommunityID,
		Conversation: jolteon.Conversation{
			ID:    d.cfg.ConversationID,
			Type:  conversationType,
			Title: "console",
		},
		Actor: jolteon.Actor{
			ID:           d.cfg.ActorID,
			Username:     d.cfg.ActorID,
			DisplayName:  d.cfg.ActorName,
			Capabilities: capabilities,
		},
	}
	attach(event)

	return event
}

// parseReactionLine decodes the synthetic reaction input grammar.
func parseReactionLine(line string) (*jolteon.Reaction, bool) {
	if !strings.HasPrefix(line, reactionInputPrefix) {
		return nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(line, reactionInputPrefix))
	if len(fields) != 2 {
		return nil, false
	}

	return &jolteon.Reaction{
		MessageID: fields[0],
		Emoji:     fields[1],
	}, true
}

func parseUserMentions(text string) []jolteon.UserMention {
	matches := userMentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	mentions := make([]jolteon.UserMention, 0, len(matches))
	for _, match := range matches {
		mentions = append(mentions, jolteon.UserMention{
			UserID: match[1],
			Raw:    match[0],
		})
	}

	return mentions
}

func parseRoleMentions(text string) []string {
	matches := roleMentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	roleIDs := make([]string, 0, len(matches))
	for _, match := range matches {
		roleIDs = append(roleIDs, match[1])
	}

	return roleIDs
}

var _ jolteon.Driver = (*Driver)(nil)
