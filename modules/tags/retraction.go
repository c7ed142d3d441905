package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

// wastebasketEmoji is the reaction that retracts one bot reply.
const wastebasketEmoji = "\U0001F5D1"

// DefaultRetractionTimeout bounds how long one reply stays retractable.
const DefaultRetractionTimeout = 120 * time.Second

// Watchtower tracks retractable bot replies.
//
// One watcher is armed per aggregated reply and keyed by the reply message.
// Only the exact requester can fire it, with the wastebasket emoji. Firing,
// timing out, and shutdown all release the watcher. State is in-memory only.
type Watchtower struct {
	dispatcher jolteon.Dispatcher
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	closed   bool
	watchers map[string]*replyWatcher
}

type replyWatcher struct {
	requesterID string
	target      jolteon.OutboundTarget
	timer       *time.Timer
}

// NewWatchtower creates a retraction watchtower.
func NewWatchtower(dispatcher jolteon.Dispatcher, timeout time.Duration, logger *slog.Logger) (*Watchtower, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("new watchtower: nil dispatcher")
	}
	if timeout <= 0 {
		timeout = DefaultRetractionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watchtower{
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger,
		watchers:   make(map[string]*replyWatcher),
	}, nil
}

// Arm registers one retractable reply. Re-arming the same reply replaces the
// previous watcher and restarts its timeout.
func (w *Watchtower) Arm(replyMessageID string, requesterID string, target jolteon.OutboundTarget) error {
	if replyMessageID == "" {
		return fmt.Errorf("arm watcher: empty reply message id")
	}
	if requesterID == "" {
		return fmt.Errorf("arm watcher: empty requester id")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("arm watcher: watchtower closed")
	}

	if previous, exists := w.watchers[replyMessageID]; exists {
		previous.timer.Stop()
	}
	watcher := &replyWatcher{
		requesterID: requesterID,
		target:      target,
	}
	watcher.timer = time.AfterFunc(w.timeout, func() {
		w.expire(replyMessageID, watcher)
	})
	w.watchers[replyMessageID] = watcher

	return nil
}

// HandleReaction processes one reaction-added event against armed watchers.
// Wrong emoji, wrong user, and unknown messages are ignored silently.
func (w *Watchtower) HandleReaction(ctx context.Context, event *jolteon.Event) error {
	if event == nil || event.Reaction == nil {
		return nil
	}
	if !isWastebasket(event.Reaction.Emoji) {
		return nil
	}

	w.mu.Lock()
	watcher, exists := w.watchers[event.Reaction.MessageID]
	if !exists || watcher.requesterID != event.Actor.ID {
		w.mu.Unlock()
		return nil
	}
	delete(w.watchers, event.Reaction.MessageID)
	w.mu.Unlock()

	watcher.timer.Stop()

	err := w.dispatcher.DeleteMessage(ctx, jolteon.DeleteMessageRequest{
		Target:    watcher.target,
		MessageID: event.Reaction.MessageID,
	})
	if err != nil && !errors.Is(err, jolteon.ErrMessageNotFound) {
		return fmt.Errorf("retract reply %s: %w", event.Reaction.MessageID, err)
	}

	w.logger.InfoContext(ctx, "reply retracted by requester",
		"reply_message_id", event.Reaction.MessageID,
		"requester_id", watcher.requesterID,
	)

	return nil
}

// Armed reports whether one reply is currently retractable.
func (w *Watchtower) Armed(replyMessageID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	_, exists := w.watchers[replyMessageID]

	return exists
}

// Close releases all armed watchers without deleting their replies.
func (w *Watchtower) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for replyMessageID, watcher := range w.watchers {
		watcher.timer.Stop()
		delete(w.watchers, replyMessageID)
	}
}

// expire releases one watcher after its idle timeout. A timer firing for a
// watcher that re-arming already replaced leaves the replacement armed.
func (w *Watchtower) expire(replyMessageID string, watcher *replyWatcher) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if current, exists := w.watchers[replyMessageID]; exists && current == watcher {
		delete(w.watchers, replyMessageID)
	}
}

// isWastebasket matches the wastebasket emoji with or without the
// emoji-presentation variation selector.
func isWastebasket(emoji string) bool {
	return strings.TrimSuffix(emoji, "️") == wastebasketEmoji
}
