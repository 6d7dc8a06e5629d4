//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"flowaudit/internal/audit"
	"flowaudit/internal/audit/store/postgres"
	"flowaudit/pkg/fields"
	"flowaudit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *postgres.Store
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.DB)
	s.Require().NoError(s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "audit_events"))
}

func (s *PostgresStoreSuite) event(n int, mutate func(*audit.Event)) audit.Event {
	e := audit.Event{
		ID:          uuid.New(),
		Type:        audit.EventCustomerUpdated,
		Timestamp:   time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour),
		UserID:      "user-1",
		EntityType:  "customer",
		EntityID:    "cust-1",
		Regulations: audit.EventCustomerUpdated.Regulations(),
		Severity:    audit.SeverityMedium,
		Success:     true,
	}
	if mutate != nil {
		mutate(&e)
	}
	return e
}

func (s *PostgresStoreSuite) TestInsertAndSearchRoundTrip() {
	want := s.event(1, func(e *audit.Event) {
		e.SessionID = "session-1"
		e.IPAddress = "203.0.113.9"
		e.UserAgent = "Mozilla/5.0"
		e.RequestID = "req-1"
		e.OrganizationID = "org-1"
		e.ErrorMessage = "partial update"
		e.OldValues = fields.Map{"phone": fields.String("555-0100")}
		e.NewValues = fields.Map{
			"phone": fields.String("555-0199"),
			"address": fields.Nested(fields.Map{
				"city": fields.String("Portland"),
			}),
		}
		e.Metadata = fields.Map{
			"source":  fields.String("portal"),
			"retries": fields.Number(2),
			"dry_run": fields.Bool(false),
			"note":    fields.Null(),
		}
	})
	s.Require().NoError(s.store.InsertBatch(s.ctx, []audit.Event{want}))

	got, err := s.store.Search(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(got, 1)

	e := got[0]
	s.Equal(want.ID, e.ID)
	s.Equal(want.Type, e.Type)
	s.True(want.Timestamp.Equal(e.Timestamp))
	s.Equal(want.UserID, e.UserID)
	s.Equal(want.SessionID, e.SessionID)
	s.Equal(want.IPAddress, e.IPAddress)
	s.Equal(want.UserAgent, e.UserAgent)
	s.Equal(want.RequestID, e.RequestID)
	s.Equal(want.EntityType, e.EntityType)
	s.Equal(want.EntityID, e.EntityID)
	s.Equal(want.Regulations, e.Regulations)
	s.Equal(want.Severity, e.Severity)
	s.Equal(want.Success, e.Success)
	s.Equal(want.ErrorMessage, e.ErrorMessage)
	s.Equal(want.OrganizationID, e.OrganizationID)

	phone, _ := e.NewValues["phone"].AsString()
	s.Equal("555-0199", phone)
	address, ok := e.NewValues["address"].AsMap()
	s.Require().True(ok)
	city, _ := address["city"].AsString()
	s.Equal("Portland", city)
	retries, _ := e.Metadata["retries"].AsNumber()
	s.Equal(float64(2), retries)
	s.True(e.Metadata["note"].IsNull())
}

func (s *PostgresStoreSuite) TestSearchFiltersAndOrder() {
	failed := false
	s.Require().NoError(s.store.InsertBatch(s.ctx, []audit.Event{
		s.event(1, nil),
		s.event(2, func(e *audit.Event) {
			e.Type = audit.EventPaymentFailed
			e.Regulations = audit.EventPaymentFailed.Regulations()
			e.EntityType = "payment"
			e.EntityID = "pay-1"
			e.Severity = audit.SeverityHigh
			e.Success = false
		}),
		s.event(3, func(e *audit.Event) {
			e.UserID = "user-2"
		}),
	}))

	all, err := s.store.Search(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.True(all[0].Timestamp.After(all[1].Timestamp))
	s.True(all[1].Timestamp.After(all[2].Timestamp))

	byRegulation, err := s.store.Search(s.ctx, audit.Filter{Regulation: audit.RegulationPCIDSS})
	s.Require().NoError(err)
	s.Require().Len(byRegulation, 1)
	s.Equal(audit.EventPaymentFailed, byRegulation[0].Type)

	byTypes, err := s.store.Search(s.ctx, audit.Filter{
		Types: []audit.EventType{audit.EventPaymentFailed, audit.EventLoginSuccess},
	})
	s.Require().NoError(err)
	s.Len(byTypes, 1)

	bySuccess, err := s.store.Search(s.ctx, audit.Filter{Success: &failed})
	s.Require().NoError(err)
	s.Len(bySuccess, 1)

	windowed, err := s.store.Search(s.ctx, audit.Filter{
		From: s.event(2, nil).Timestamp,
		To:   s.event(2, nil).Timestamp,
	})
	s.Require().NoError(err)
	s.Len(windowed, 1, "window bounds are inclusive")
}

func (s *PostgresStoreSuite) TestSearchPagination() {
	batch := make([]audit.Event, 0, 5)
	for i := 1; i <= 5; i++ {
		batch = append(batch, s.event(i, nil))
	}
	s.Require().NoError(s.store.InsertBatch(s.ctx, batch))

	page, err := s.store.Search(s.ctx, audit.Filter{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Equal(batch[2].ID, page[0].ID)
	s.Equal(batch[1].ID, page[1].ID)
}

func (s *PostgresStoreSuite) TestDeleteBefore() {
	cutoff := time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.InsertBatch(s.ctx, []audit.Event{
		s.event(1, nil), // older than cutoff
		s.event(2, nil), // exactly at cutoff, retained
		s.event(3, func(e *audit.Event) { e.EntityType = "payment" }),
	}))

	deleted, err := s.store.DeleteBefore(s.ctx, "customer", cutoff)
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	remaining, err := s.store.Search(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	s.Len(remaining, 2)
}

func (s *PostgresStoreSuite) TestInsertEmptyBatchIsNoOp() {
	s.Require().NoError(s.store.InsertBatch(s.ctx, nil))
}
