package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

func newTestBus(onAsyncError func(context.Context, string, error)) *EventBus {
	if onAsyncError == nil {
		onAsyncError = func(context.Context, string, error) {}
	}

	return NewEventBus(8, 1, time.Second, onAsyncError)
}

func newBusMessageEvent(id string) *jolteon.Event {
	return &jolteon.Event{
		ID:         id,
		Kind:       jolteon.EventKindMessageCreated,
		OccurredAt: time.Now(),
		Platform:   jolteon.PlatformConsole,
		Conversation: jolteon.Conversation{
			ID:   "chan-1",
			Type: jolteon.ConversationTypeCommunity,
		},
		Actor:   jolteon.Actor{ID: "user-1"},
		Message: &jolteon.Message{ID: id, Text: "hello"},
	}
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := newTestBus(nil)
	defer func() {
		if err := bus.Close(context.Background()); err != nil {
			t.Fatalf("close bus: %v", err)
		}
	}()

	received := make(chan string, 4)
	_, err := bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{Kinds: []jolteon.EventKind{jolteon.EventKindMessageCreated}},
		jolteon.NewDefaultSubscriptionSpec("messages"),
		func(_ context.Context, event *jolteon.Event) error {
			received <- event.ID
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	reactionSeen := make(chan struct{}, 1)
	_, err = bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{Kinds: []jolteon.EventKind{jolteon.EventKindReactionAdded}},
		jolteon.NewDefaultSubscriptionSpec("reactions"),
		func(context.Context, *jolteon.Event) error {
			reactionSeen <- struct{}{}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), newBusMessageEvent("evt-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case id := <-received:
		if id != "evt-1" {
			t.Fatalf("received = %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("matching subscriber never received event")
	}

	select {
	case <-reactionSeen:
		t.Fatal("non-matching subscriber received event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishRejectsInvalidEvents(t *testing.T) {
	bus := newTestBus(nil)
	defer func() { _ = bus.Close(context.Background()) }()

	if err := bus.Publish(context.Background(), &jolteon.Event{}); err == nil {
		t.Fatal("invalid event should fail publish")
	}
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	bus := newTestBus(nil)
	defer func() { _ = bus.Close(context.Background()) }()

	_, err := bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{},
		jolteon.NewDefaultSubscriptionSpec("broken"),
		nil,
	)
	if err == nil {
		t.Fatal("nil handler should fail subscribe")
	}
}

func TestDropNewestReportsDropsWithoutFailingPublish(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var dropped []error
	bus := NewEventBus(1, 1, time.Second, func(_ context.Context, _ string, err error) {
		mu.Lock()
		dropped = append(dropped, err)
		mu.Unlock()
	})
	defer func() { _ = bus.Close(context.Background()) }()

	release := make(chan struct{})
	_, err := bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{},
		jolteon.SubscriptionSpec{Name: "slow", Buffer: 1, Workers: 1, Backpressure: jolteon.BackpressureDropNewest},
		func(context.Context, *jolteon.Event) error {
			<-release
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Saturate the worker and the single queue slot, then overflow.
	for i := 0; i < 8; i++ {
		if err := bus.Publish(context.Background(), newBusMessageEvent("evt")); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		count := len(dropped)
		mu.Unlock()
		if count > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no drops reported")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, err := range dropped {
		if !errors.Is(err, jolteon.ErrEventDropped) {
			t.Fatalf("drop error = %v", err)
		}
	}
}

func TestHandlerPanicIsIsolated(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var reported []error
	bus := newTestBus(func(_ context.Context, _ string, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})
	defer func() { _ = bus.Close(context.Background()) }()

	delivered := make(chan struct{}, 2)
	_, err := bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{},
		jolteon.NewDefaultSubscriptionSpec("panicky"),
		func(_ context.Context, event *jolteon.Event) error {
			if event.ID == "evt-panic" {
				panic("handler exploded")
			}
			delivered <- struct{}{}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), newBusMessageEvent("evt-panic")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(context.Background(), newBusMessageEvent("evt-after")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive handler panic")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 {
		t.Fatal("panic not reported to async error sink")
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := newTestBus(nil)
	defer func() { _ = bus.Close(context.Background()) }()

	received := make(chan struct{}, 1)
	subscription, err := bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{},
		jolteon.NewDefaultSubscriptionSpec("short-lived"),
		func(context.Context, *jolteon.Event) error {
			received <- struct{}{}
			return nil
		},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := subscription.Close(context.Background()); err != nil {
		t.Fatalf("close subscription: %v", err)
	}

	if err := bus.Publish(context.Background(), newBusMessageEvent("evt-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-received:
		t.Fatal("closed subscription received event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusCloseIsIdempotentAndRejectsLateCalls(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := newTestBus(nil)

	if err := bus.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := bus.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := bus.Publish(context.Background(), newBusMessageEvent("evt-1")); err == nil {
		t.Fatal("publish after close should fail")
	}
	_, err := bus.Subscribe(
		context.Background(),
		jolteon.InterestSet{},
		jolteon.NewDefaultSubscriptionSpec("late"),
		func(context.Context, *jolteon.Event) error { return nil },
	)
	if err == nil {
		t.Fatal("subscribe after close should fail")
	}
}
