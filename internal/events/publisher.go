package events

import (
	"context"
	"time"

	id "canopy/pkg/domain"
	"canopy/pkg/requestcontext"
)

// Publisher captures structured domain events. It is append-only and uses
// the store layer for persistence so tests can swap sinks easily. Emission
// failures are surfaced to the caller only through the error return; the
// event log is observability, not a correctness dependency, so services log
// and continue on emit errors.
type Publisher struct {
	store Store
	sinks []Sink
}

// Sink receives a copy of every emitted event in addition to the store.
// Used for the optional Kafka fan-out.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

func NewPublisher(store Store, sinks ...Sink) *Publisher {
	return &Publisher{store: store, sinks: sinks}
}

// Emit records one event. Timestamp and request id are filled from context
// when the caller leaves them zero; the category always derives from the
// action.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	event.Category = event.Action.Category()
	for _, sink := range p.sinks {
		sink.Publish(ctx, event)
	}
	return p.store.Append(ctx, event)
}

// List returns the events recorded for one account.
func (p *Publisher) List(ctx context.Context, account id.AccountID) ([]Event, error) {
	return p.store.ListByAccount(ctx, account)
}
