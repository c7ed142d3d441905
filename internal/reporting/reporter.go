// Package reporting delivers failure diagnostics to a dedicated operator
// conversation so unhandled command errors are never lost silently.
package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// chunkSize bounds one diagnostic chunk so the fenced block stays inside
// platform message limits.
const chunkSize = 1988

// Reporter sends chunked diagnostics to one operator conversation.
type Reporter struct {
	dispatcher jolteon.Dispatcher
	target     jolteon.OutboundTarget
	logger     *slog.Logger
}

// New creates a reporter bound to the operator conversation.
func New(dispatcher jolteon.Dispatcher, operatorConversationID string, logger *slog.Logger) (*Reporter, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("new reporter: nil dispatcher")
	}
	if operatorConversationID == "" {
		return nil, fmt.Errorf("new reporter: empty operator conversation id")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reporter{
		dispatcher: dispatcher,
		target: jolteon.OutboundTarget{
			Conversation: jolteon.Conversation{
				ID:   operatorConversationID,
				Type: jolteon.ConversationTypeCommunity,
			},
		},
		logger: logger,
	}, nil
}

// Report delivers one diagnostic split into fenced chunks, then a trailer
// naming the command that failed.
func (r *Reporter) Report(ctx context.Context, commandName string, diagnostic string) error {
	if diagnostic == "" {
		diagnostic = "(no diagnostic text)"
	}

	for _, chunk := range splitChunks(diagnostic, chunkSize) {
		_, err := r.dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
			Target: r.target,
			Text:   "```\n" + chunk + "\n```",
		})
		if err != nil {
			return fmt.Errorf("report diagnostic chunk: %w", err)
		}
	}

	if commandName == "" {
		commandName = "(unknown)"
	}
	_, err := r.dispatcher.SendMessage(ctx, jolteon.SendMessageRequest{
		Target: r.target,
		Text:   "Command being invoked: " + commandName,
	})
	if err != nil {
		return fmt.Errorf("report command trailer: %w", err)
	}

	r.logger.ErrorContext(ctx, "command failure reported to operator",
		"command", commandName,
		"diagnostic_length", len(diagnostic),
	)

	return nil
}

// splitChunks cuts text into chunks of at most size bytes, never splitting a
// multi-byte rune across a boundary.
func splitChunks(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}

	chunks := make([]string, 0, len(text)/size+1)
	for len(text) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = size
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	chunks = append(chunks, text)

	return chunks
}

var _ jolteon.OperatorReporter = (*Reporter)(nil)
