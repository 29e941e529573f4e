package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/pkg/requestcontext"
)

type captureSink struct {
	events []Event
}

func (s *captureSink) Publish(_ context.Context, event Event) {
	s.events = append(s.events, event)
}

func TestPublisherEmit(t *testing.T) {
	store := NewInMemoryStore()
	sink := &captureSink{}
	pub := NewPublisher(store, sink)

	ctx := requestcontext.WithRequestID(context.Background(), "req-42")
	err := pub.Emit(ctx, Event{
		Account: "acct-a",
		Action:  ActionCreditRetired,
		Subject: "credit/7",
		Reason:  "voluntary offset",
	})
	require.NoError(t, err)

	all := store.All()
	require.Len(t, all, 1)
	got := all[0]

	assert.Equal(t, CategoryCompliance, got.Category)
	assert.Equal(t, "req-42", got.RequestID)
	assert.False(t, got.Timestamp.IsZero())

	require.Len(t, sink.events, 1)
	assert.Equal(t, got.Subject, sink.events[0].Subject)
}

func TestPublisherPreservesExplicitFields(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	stamp := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), Event{
		Timestamp: stamp,
		Account:   "acct-a",
		Action:    ActionOrderPlaced,
		Subject:   "order/3",
		RequestID: "req-explicit",
	})
	require.NoError(t, err)

	got := store.All()[0]
	assert.Equal(t, stamp, got.Timestamp)
	assert.Equal(t, "req-explicit", got.RequestID)
	assert.Equal(t, CategoryOperations, got.Category)
}

func TestPublisherListByAccount(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)
	ctx := context.Background()

	require.NoError(t, pub.Emit(ctx, Event{Account: "acct-a", Action: ActionCreditMinted, Subject: "credit/1"}))
	require.NoError(t, pub.Emit(ctx, Event{Account: "acct-b", Action: ActionCreditMinted, Subject: "credit/2"}))
	require.NoError(t, pub.Emit(ctx, Event{Account: "acct-a", Action: ActionCreditTransferred, Subject: "credit/1"}))

	trail, err := pub.List(ctx, "acct-a")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, ActionCreditMinted, trail[0].Action)
	assert.Equal(t, ActionCreditTransferred, trail[1].Action)
}

func TestActionCategoryDefaultsToOperations(t *testing.T) {
	assert.Equal(t, CategoryOperations, Action("something_new").Category())
}
