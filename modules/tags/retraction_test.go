package tags

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

type retractionDispatcher struct {
	deletes   []jolteon.DeleteMessageRequest
	deleteErr error
}

func (d *retractionDispatcher) SendMessage(
	_ context.Context,
	request jolteon.SendMessageRequest,
) (*jolteon.OutboundMessage, error) {
	return &jolteon.OutboundMessage{ID: "reply-1", Target: request.Target}, nil
}

func (d *retractionDispatcher) DeleteMessage(_ context.Context, request jolteon.DeleteMessageRequest) error {
	d.deletes = append(d.deletes, request)

	return d.deleteErr
}

func newTestWatchtower(t *testing.T, dispatcher jolteon.Dispatcher, timeout time.Duration) *Watchtower {
	t.Helper()

	watchtower, err := NewWatchtower(dispatcher, timeout, slog.Default())
	if err != nil {
		t.Fatalf("new watchtower: %v", err)
	}
	t.Cleanup(watchtower.Close)

	return watchtower
}

func testTarget() jolteon.OutboundTarget {
	return jolteon.OutboundTarget{
		Conversation: jolteon.Conversation{
			ID:   "chan-1",
			Type: jolteon.ConversationTypeCommunity,
		},
	}
}

func reactionEvent(messageID, actorID, emoji string) *jolteon.Event {
	return &jolteon.Event{
		ID:         "evt-react",
		Kind:       jolteon.EventKindReactionAdded,
		OccurredAt: time.Now(),
		Platform:   jolteon.PlatformConsole,
		Conversation: jolteon.Conversation{
			ID:   "chan-1",
			Type: jolteon.ConversationTypeCommunity,
		},
		Actor: jolteon.Actor{ID: actorID},
		Reaction: &jolteon.Reaction{
			MessageID: messageID,
			Emoji:     emoji,
		},
	}
}

func TestRequesterReactionRetractsReply(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	event := reactionEvent("reply-1", "user-1", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}

	if len(dispatcher.deletes) != 1 {
		t.Fatalf("deletes = %d, want 1", len(dispatcher.deletes))
	}
	if dispatcher.deletes[0].MessageID != "reply-1" {
		t.Fatalf("deleted message = %q", dispatcher.deletes[0].MessageID)
	}
	if watchtower.Armed("reply-1") {
		t.Fatal("watcher still armed after retraction")
	}
}

func TestReactionWithVariationSelectorRetracts(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	event := reactionEvent("reply-1", "user-1", "\U0001F5D1️")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}
	if len(dispatcher.deletes) != 1 {
		t.Fatalf("deletes = %d, want 1", len(dispatcher.deletes))
	}
}

func TestNonRequesterReactionIsIgnored(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	event := reactionEvent("reply-1", "user-2", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}

	if len(dispatcher.deletes) != 0 {
		t.Fatalf("deletes = %d, want 0", len(dispatcher.deletes))
	}
	if !watchtower.Armed("reply-1") {
		t.Fatal("watcher released by non-requester reaction")
	}
}

func TestWrongEmojiIsIgnored(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	event := reactionEvent("reply-1", "user-1", "\U0001F44D")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}

	if len(dispatcher.deletes) != 0 {
		t.Fatalf("deletes = %d, want 0", len(dispatcher.deletes))
	}
	if !watchtower.Armed("reply-1") {
		t.Fatal("watcher released by unrelated emoji")
	}
}

func TestUnknownMessageReactionIsIgnored(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	event := reactionEvent("reply-unknown", "user-1", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}
	if len(dispatcher.deletes) != 0 {
		t.Fatalf("deletes = %d, want 0", len(dispatcher.deletes))
	}
}

func TestAlreadyDeletedReplyRetractsCleanly(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{deleteErr: jolteon.ErrMessageNotFound}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	event := reactionEvent("reply-1", "user-1", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}
	if watchtower.Armed("reply-1") {
		t.Fatal("watcher still armed after retraction of missing reply")
	}
}

func TestTransportFailureSurfaces(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{deleteErr: errors.New("socket closed")}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	event := reactionEvent("reply-1", "user-1", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), event); err == nil {
		t.Fatal("expected transport failure to surface")
	}
}

func TestWatcherExpiresAfterTimeout(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, 10*time.Millisecond)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for watchtower.Armed("reply-1") {
		if time.Now().After(deadline) {
			t.Fatal("watcher never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	event := reactionEvent("reply-1", "user-1", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), event); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}
	if len(dispatcher.deletes) != 0 {
		t.Fatalf("deletes after expiry = %d, want 0", len(dispatcher.deletes))
	}
}

func TestRearmReplacesRequester(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if err := watchtower.Arm("reply-1", "user-2", testTarget()); err != nil {
		t.Fatalf("re-arm: %v", err)
	}

	staleRequester := reactionEvent("reply-1", "user-1", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), staleRequester); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}
	if len(dispatcher.deletes) != 0 {
		t.Fatalf("stale requester retracted: %v", dispatcher.deletes)
	}

	current := reactionEvent("reply-1", "user-2", "\U0001F5D1")
	if err := watchtower.HandleReaction(context.Background(), current); err != nil {
		t.Fatalf("handle reaction: %v", err)
	}
	if len(dispatcher.deletes) != 1 {
		t.Fatalf("deletes = %d, want 1", len(dispatcher.deletes))
	}
}

func TestRearmSurvivesStaleTimerExpiry(t *testing.T) {
	t.Parallel()

	dispatcher := &retractionDispatcher{}
	watchtower := newTestWatchtower(t, dispatcher, time.Minute)

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}

	// A timer callback from before a re-arm carries the replaced watcher
	// and must not release the replacement.
	stale := &replyWatcher{requesterID: "user-1"}
	watchtower.expire("reply-1", stale)
	if !watchtower.Armed("reply-1") {
		t.Fatal("stale timer released the current watcher")
	}

	watchtower.mu.Lock()
	current := watchtower.watchers["reply-1"]
	watchtower.mu.Unlock()
	watchtower.expire("reply-1", current)
	if watchtower.Armed("reply-1") {
		t.Fatal("current watcher should expire")
	}
}

func TestCloseReleasesWatchersWithoutDeleting(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dispatcher := &retractionDispatcher{}
	watchtower, err := NewWatchtower(dispatcher, time.Minute, slog.Default())
	if err != nil {
		t.Fatalf("new watchtower: %v", err)
	}

	if err := watchtower.Arm("reply-1", "user-1", testTarget()); err != nil {
		t.Fatalf("arm: %v", err)
	}
	watchtower.Close()

	if watchtower.Armed("reply-1") {
		t.Fatal("watcher survived shutdown")
	}
	if len(dispatcher.deletes) != 0 {
		t.Fatalf("shutdown deleted replies: %v", dispatcher.deletes)
	}
	if err := watchtower.Arm("reply-2", "user-1", testTarget()); err == nil {
		t.Fatal("arming after shutdown should fail")
	}
}
