//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"canopy/internal/events"
	"canopy/pkg/testutil/containers"
)

func TestKafkaSinkPublishes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	const topic = "canopy.events.test"
	redpanda := containers.NewRedpandaContainer(t)
	redpanda.CreateTopic(t, topic)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink, err := events.NewKafkaSink([]string{redpanda.Broker}, topic, logger)
	require.NoError(t, err)

	ctx := context.Background()
	event := events.Event{
		Category:  events.CategoryCompliance,
		Timestamp: time.Now().UTC(),
		Account:   "acct-a",
		Action:    events.ActionTradeExecuted,
		Subject:   "trade/1",
		RequestID: "req-7",
	}
	sink.Publish(ctx, event)

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(flushCtx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	pollCtx, cancelPoll := context.WithTimeout(ctx, 15*time.Second)
	defer cancelPoll()
	fetches := consumer.PollFetches(pollCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "acct-a", string(records[0].Key))

	var got events.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, events.ActionTradeExecuted, got.Action)
	require.Equal(t, "trade/1", got.Subject)
	require.Equal(t, "req-7", got.RequestID)
}
