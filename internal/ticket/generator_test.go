package ticket

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/eventbooking-core/internal/model"
)

func TestTicketID_IsDeterministic(t *testing.T) {
	id1 := TicketID("BK-ABC123", "A1")
	id2 := TicketID("BK-ABC123", "A1")
	assert.Equal(t, id1, id2)
	assert.Equal(t, "TKT-BK-ABC123-A1", id1)
}

func TestTicketID_DiffersPerSeat(t *testing.T) {
	assert.NotEqual(t, TicketID("BK-1", "A1"), TicketID("BK-1", "A2"))
}

func TestValidateSignature_RoundTrips(t *testing.T) {
	g := New(nil, nil, nil, nil, nil, "webhook-secret")
	ticketID := TicketID("BK-1", "A1")

	sig := g.signature(ticketID, "BK-1")

	assert.True(t, g.ValidateSignature(ticketID, "BK-1", sig))
	assert.False(t, g.ValidateSignature(ticketID, "BK-1", sig+"tampered"))
	assert.False(t, g.ValidateSignature(ticketID, "BK-2", sig))
}

func TestValidateSignature_DiffersAcrossSecrets(t *testing.T) {
	ticketID := TicketID("BK-1", "A1")
	a := New(nil, nil, nil, nil, nil, "secret-a")
	b := New(nil, nil, nil, nil, nil, "secret-b")

	sig := a.signature(ticketID, "BK-1")
	assert.False(t, b.ValidateSignature(ticketID, "BK-1", sig))
}

func TestAggregateStatus_EmptyIsPending(t *testing.T) {
	assert.Equal(t, model.AggregatePending, aggregateStatus(nil))
}

func TestAggregateStatus_AllGeneratedIsReady(t *testing.T) {
	tickets := []model.Ticket{
		{Status: model.TicketGenerated},
		{Status: model.TicketGenerated},
	}
	assert.Equal(t, model.AggregateReady, aggregateStatus(tickets))
}

func TestAggregateStatus_AnyPendingIsGenerating(t *testing.T) {
	tickets := []model.Ticket{
		{Status: model.TicketGenerated},
		{Status: model.TicketPending},
	}
	assert.Equal(t, model.AggregateGenerating, aggregateStatus(tickets))
}

func TestAggregateStatus_AnyFailedIsPartial(t *testing.T) {
	tickets := []model.Ticket{
		{Status: model.TicketGenerated},
		{Status: model.TicketFailed},
	}
	assert.Equal(t, model.AggregatePartial, aggregateStatus(tickets))
}

func TestAggregateStatus_FailedBeatsPending(t *testing.T) {
	tickets := []model.Ticket{
		{Status: model.TicketPending},
		{Status: model.TicketFailed},
	}
	assert.Equal(t, model.AggregatePartial, aggregateStatus(tickets))
}
