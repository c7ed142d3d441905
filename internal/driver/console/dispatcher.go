package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// Dispatcher prints outbound operations to the console and tracks emitted
// message IDs so deletion semantics mirror a real platform.
type Dispatcher struct {
	mu     sync.Mutex
	output io.Writer
	logger *slog.Logger
	sent   map[string]struct{}

	botLabel  *color.Color
	metaLabel *color.Color
}

func newDispatcher(output io.Writer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		output:    output,
		logger:    logger,
		sent:      make(map[string]struct{}),
		botLabel:  color.New(color.FgCyan, color.Bold),
		metaLabel: color.New(color.FgYellow),
	}
}

// SendMessage prints the outbound message and returns its synthetic identity.
func (d *Dispatcher) SendMessage(
	ctx context.Context,
	request jolteon.SendMessageRequest,
) (*jolteon.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("console send message: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("console send message: %w", err)
	}

	messageID := uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent[messageID] = struct{}{}

	fmt.Fprintf(d.output, "%s %s\n", d.botLabel.Sprint("[bot]"), request.Text)
	if request.ReplyToMessageID != "" {
		fmt.Fprintf(d.output, "%s\n", d.metaLabel.Sprintf("  replying to %s", request.ReplyToMessageID))
	}
	if request.TTL > 0 {
		fmt.Fprintf(d.output, "%s\n", d.metaLabel.Sprintf("  expires in %s", request.TTL))
	}
	fmt.Fprintf(d.output, "%s\n", d.metaLabel.Sprintf("  message id %s", messageID))

	return &jolteon.OutboundMessage{
		ID:     messageID,
		Target: request.Target,
	}, nil
}

// DeleteMessage removes one tracked message. Unknown IDs report not found.
func (d *Dispatcher) DeleteMessage(ctx context.Context, request jolteon.DeleteMessageRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("console delete message: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("console delete message: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.sent[request.MessageID]; !exists {
		return fmt.Errorf("console delete message %s: %w", request.MessageID, jolteon.ErrMessageNotFound)
	}
	delete(d.sent, request.MessageID)

	fmt.Fprintf(d.output, "%s\n", d.metaLabel.Sprintf("[bot] deleted message %s", request.MessageID))

	return nil
}

var _ jolteon.Dispatcher = (*Dispatcher)(nil)
