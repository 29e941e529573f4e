//go:build integration

package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"canopy/internal/events"
	"canopy/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *events.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	store, err := events.OpenPostgres(s.postgres.DSN)
	s.Require().NoError(err)
	s.store = store
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "domain_events"))
}

func (s *PostgresStoreSuite) TestAppendAndListByAccount() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	appends := []events.Event{
		{Timestamp: base, Account: "acct-a", Action: events.ActionCreditMinted, Subject: "credit/1", RequestID: "req-1"},
		{Timestamp: base.Add(time.Second), Account: "acct-b", Action: events.ActionOrderPlaced, Subject: "order/1"},
		{Timestamp: base.Add(2 * time.Second), Account: "acct-a", Action: events.ActionCreditRetired, Subject: "credit/1", Reason: "offset"},
	}
	for _, e := range appends {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	trail, err := s.store.ListByAccount(ctx, "acct-a")
	s.Require().NoError(err)
	s.Require().Len(trail, 2)

	s.Equal(events.ActionCreditMinted, trail[0].Action)
	s.Equal(events.CategoryCompliance, trail[0].Category)
	s.Equal("req-1", trail[0].RequestID)
	s.True(trail[0].Timestamp.Equal(base))

	s.Equal(events.ActionCreditRetired, trail[1].Action)
	s.Equal("offset", trail[1].Reason)
}

func (s *PostgresStoreSuite) TestListUnknownAccountIsEmpty() {
	trail, err := s.store.ListByAccount(context.Background(), "acct-ghost")
	s.Require().NoError(err)
	s.Empty(trail)
}

func (s *PostgresStoreSuite) TestInsertionOrderPreserved() {
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		e := events.Event{
			Timestamp: time.Now(),
			Account:   "acct-a",
			Action:    events.ActionOrderPlaced,
			Subject:   "order/" + string(rune('a'+i)),
		}
		s.Require().NoError(s.store.Append(ctx, e))
	}
	trail, err := s.store.ListByAccount(ctx, "acct-a")
	s.Require().NoError(err)
	s.Require().Len(trail, 20)
	s.Equal("order/a", trail[0].Subject)
	s.Equal("order/t", trail[19].Subject)
}
