package tags

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/GlaceonBot/Jolteon/pkg/jolteon"
)

type stubTagStore struct {
	tags     map[string]string
	getErr   error
	getCalls []string
	upserts  []upsertCall
	deletes  []string
	listErr  error
}

type upsertCall struct {
	name     string
	contents string
}

func newStubTagStore(tags map[string]string) *stubTagStore {
	if tags == nil {
		tags = make(map[string]string)
	}

	return &stubTagStore{tags: tags}
}

func (s *stubTagStore) GetTag(_ context.Context, _ int64, name string) (string, bool, error) {
	s.getCalls = append(s.getCalls, name)
	if s.getErr != nil {
		return "", false, s.getErr
	}
	content, found := s.tags[name]

	return content, found, nil
}

func (s *stubTagStore) UpsertTag(_ context.Context, _ int64, name string, contents string) error {
	if s.getErr != nil {
		return s.getErr
	}
	s.upserts = append(s.upserts, upsertCall{name: name, contents: contents})
	s.tags[name] = contents

	return nil
}

func (s *stubTagStore) DeleteTag(_ context.Context, _ int64, name string) error {
	if s.getErr != nil {
		return s.getErr
	}
	s.deletes = append(s.deletes, name)
	delete(s.tags, name)

	return nil
}

func (s *stubTagStore) ListTags(_ context.Context, _ int64) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.tags))
	for name := range s.tags {
		names = append(names, name)
	}

	return names, nil
}

func newTestAggregator(t *testing.T, store jolteon.TagStore) *Aggregator {
	t.Helper()

	aggregator, err := NewAggregator(store, slog.Default())
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}

	return aggregator
}

func testRequester() jolteon.Actor {
	return jolteon.Actor{ID: "user-1", Username: "trainer", DisplayName: "Trainer"}
}

func TestInvokeJoinsTagsInOrder(t *testing.T) {
	t.Parallel()

	store := newStubTagStore(map[string]string{
		"rules": "Read the rules.",
		"faq":   "Check the FAQ.",
	})
	aggregator := newTestAggregator(t, store)

	result, err := aggregator.Invoke(context.Background(), 42, testRequester(), []string{"rules", "faq"}, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	want := "Read the rules.\n\nCheck the FAQ."
	if result.Body != want {
		t.Fatalf("body = %q, want %q", result.Body, want)
	}
	if len(result.Mentions) != 0 {
		t.Fatalf("mentions = %v, want none", result.Mentions)
	}
	if result.RequesterDisplay != "Trainer" {
		t.Fatalf("requester display = %q", result.RequesterDisplay)
	}
}

func TestInvokePartitionsMentionsFromNames(t *testing.T) {
	t.Parallel()

	store := newStubTagStore(map[string]string{"rules": "Read the rules."})
	aggregator := newTestAggregator(t, store)

	result, err := aggregator.Invoke(
		context.Background(), 42, testRequester(),
		[]string{"<@1001>", "rules", "<@!1002>"}, nil,
	)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if got, want := result.Mentions, []string{"<@1001>", "<@!1002>"}; !equalStrings(got, want) {
		t.Fatalf("mentions = %v, want %v", got, want)
	}
	if result.Body != "Read the rules." {
		t.Fatalf("body = %q", result.Body)
	}
}

func TestInvokeNormalizesTagNames(t *testing.T) {
	t.Parallel()

	store := newStubTagStore(map[string]string{"rules": "Read the rules."})
	aggregator := newTestAggregator(t, store)

	if _, err := aggregator.Invoke(context.Background(), 42, testRequester(), []string{"RULES"}, nil); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got, want := store.getCalls, []string{"rules"}; !equalStrings(got, want) {
		t.Fatalf("lookups = %v, want %v", got, want)
	}
}

func TestInvokeGuardRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		tokens         []string
		roleMentionIDs []string
		wantReason     jolteon.GuardReason
	}{
		{
			name:       "mass mention token",
			tokens:     []string{"rules", "@everyone"},
			wantReason: jolteon.GuardMassMention,
		},
		{
			name:       "mass mention embedded in token",
			tokens:     []string{"hey@here"},
			wantReason: jolteon.GuardMassMention,
		},
		{
			name:           "role mention",
			tokens:         []string{"rules"},
			roleMentionIDs: []string{"2001"},
			wantReason:     jolteon.GuardRoleMention,
		},
		{
			name:       "no tokens",
			tokens:     nil,
			wantReason: jolteon.GuardNoTagSpecified,
		},
		{
			name:       "only mentions",
			tokens:     []string{"<@1001>"},
			wantReason: jolteon.GuardNoTagSpecified,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			store := newStubTagStore(map[string]string{"rules": "Read the rules."})
			aggregator := newTestAggregator(t, store)

			_, err := aggregator.Invoke(
				context.Background(), 42, testRequester(),
				test.tokens, test.roleMentionIDs,
			)

			var rejection *jolteon.GuardRejectionError
			if !errors.As(err, &rejection) {
				t.Fatalf("error = %v, want guard rejection", err)
			}
			if rejection.Reason != test.wantReason {
				t.Fatalf("reason = %q, want %q", rejection.Reason, test.wantReason)
			}
			if len(store.getCalls) != 0 && test.wantReason != jolteon.GuardTooLong {
				t.Fatalf("storage consulted despite guard rejection: %v", store.getCalls)
			}
		})
	}
}

func TestInvokeAbortsOnFirstMiss(t *testing.T) {
	t.Parallel()

	store := newStubTagStore(map[string]string{
		"rules": "Read the rules.",
		"faq":   "Check the FAQ.",
	})
	aggregator := newTestAggregator(t, store)

	_, err := aggregator.Invoke(
		context.Background(), 42, testRequester(),
		[]string{"rules", "missing", "faq"}, nil,
	)

	var notFound *jolteon.TagNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want tag not found", err)
	}
	if notFound.Name != "missing" {
		t.Fatalf("missing tag name = %q", notFound.Name)
	}
	if got, want := store.getCalls, []string{"rules", "missing"}; !equalStrings(got, want) {
		t.Fatalf("lookups = %v, want %v", got, want)
	}
}

func TestInvokeStorageFailurePropagates(t *testing.T) {
	t.Parallel()

	store := newStubTagStore(nil)
	store.getErr = jolteon.ErrStorageUnavailable
	aggregator := newTestAggregator(t, store)

	_, err := aggregator.Invoke(context.Background(), 42, testRequester(), []string{"rules"}, nil)
	if !errors.Is(err, jolteon.ErrStorageUnavailable) {
		t.Fatalf("error = %v, want storage unavailable", err)
	}
}

func TestInvokeRejectsOversizedAggregate(t *testing.T) {
	t.Parallel()

	half := strings.Repeat("a", jolteon.MaxAggregateLength/2)
	store := newStubTagStore(map[string]string{
		"left":  half,
		"right": half,
	})
	aggregator := newTestAggregator(t, store)

	_, err := aggregator.Invoke(context.Background(), 42, testRequester(), []string{"left", "right"}, nil)

	var rejection *jolteon.GuardRejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("error = %v, want guard rejection", err)
	}
	if rejection.Reason != jolteon.GuardTooLong {
		t.Fatalf("reason = %q, want %q", rejection.Reason, jolteon.GuardTooLong)
	}
}

func TestInvokeAcceptsAggregateJustUnderBound(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", jolteon.MaxAggregateLength-1)
	store := newStubTagStore(map[string]string{"big": body})
	aggregator := newTestAggregator(t, store)

	result, err := aggregator.Invoke(context.Background(), 42, testRequester(), []string{"big"}, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(result.Body) != jolteon.MaxAggregateLength-1 {
		t.Fatalf("body length = %d", len(result.Body))
	}
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}

	return true
}
