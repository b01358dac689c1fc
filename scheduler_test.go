package tally

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tally-money/tally/database/mocks"
	"github.com/tally-money/tally/model"
)

func pendingTicket(id string, due time.Time) *model.Ticket {
	return &model.Ticket{
		TicketID:  id,
		LoanerID:  "usr_a",
		LoaneeID:  "usr_b",
		Amount:    1000,
		Method:    model.MethodCash,
		Status:    model.StatusPending,
		DueDate:   due,
		CreatedAt: time.Now(),
	}
}

func TestRecoveryReschedulesPendingTickets(t *testing.T) {
	ds := new(mocks.MockDataSource)
	queue := newFakeQueue()
	l, _ := newTestTally(ds, nil, queue)

	now := time.Now()
	pending := []*model.Ticket{
		pendingTicket("tkt_past", now.Add(-time.Hour)),
		pendingTicket("tkt_future_1", now.Add(24*time.Hour)),
		pendingTicket("tkt_future_2", now.Add(48*time.Hour)),
	}
	ds.On("GetTicketsByStatus", mock.Anything, model.StatusPending).Return(pending, nil)

	require.NoError(t, l.RecoverScheduledSettlements(context.Background()))

	assert.Equal(t, 3, queue.scheduledCount())
	assert.Equal(t, 1, queue.flushes)
	assert.Equal(t, 1, queue.activeSweepRegs)

	// Running recovery again must not duplicate jobs or sweep registrations:
	// the flush clears prior schedule state before the rebuild.
	require.NoError(t, l.RecoverScheduledSettlements(context.Background()))
	assert.Equal(t, 3, queue.scheduledCount())
	assert.Equal(t, 2, queue.flushes)
	assert.Equal(t, 1, queue.activeSweepRegs)
}

func TestRecoverySkipsTicketsWithoutDueDate(t *testing.T) {
	ds := new(mocks.MockDataSource)
	queue := newFakeQueue()
	l, _ := newTestTally(ds, nil, queue)

	broken := pendingTicket("tkt_no_due", time.Time{})
	healthy := pendingTicket("tkt_ok", time.Now().Add(time.Hour))
	ds.On("GetTicketsByStatus", mock.Anything, model.StatusPending).Return([]*model.Ticket{broken, healthy}, nil)

	require.NoError(t, l.RecoverScheduledSettlements(context.Background()))

	assert.Equal(t, 1, queue.scheduledCount())
}

func TestRecoveryContinuesPastEnqueueFailures(t *testing.T) {
	ds := new(mocks.MockDataSource)
	queue := newFakeQueue()
	queue.enqueueErrFor["tkt_bad"] = errors.New("broker unavailable")
	l, _ := newTestTally(ds, nil, queue)

	now := time.Now()
	pending := []*model.Ticket{
		pendingTicket("tkt_bad", now.Add(time.Hour)),
		pendingTicket("tkt_good", now.Add(2*time.Hour)),
	}
	ds.On("GetTicketsByStatus", mock.Anything, model.StatusPending).Return(pending, nil)

	// One bad ticket must not abort recovery of the rest.
	require.NoError(t, l.RecoverScheduledSettlements(context.Background()))
	assert.Equal(t, 1, queue.scheduledCount())
}

func TestCreateTicketSchedulesSettlement(t *testing.T) {
	ds := new(mocks.MockDataSource)
	queue := newFakeQueue()
	l, webhookCalls := newTestTally(ds, nil, queue)

	ds.On("RecordTicket", mock.Anything, mock.MatchedBy(func(ticket *model.Ticket) bool {
		return ticket.Status == model.StatusPending && ticket.TicketID != ""
	})).Return(nil, nil)

	due := time.Now().Add(72 * time.Hour)
	ticket, err := l.CreateTicket(context.Background(), &model.Ticket{
		LoanerID: "usr_a",
		LoaneeID: "usr_b",
		Amount:   2500,
		Method:   model.MethodAutoCard,
		DueDate:  due,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, ticket.Status)
	assert.Equal(t, 1, queue.scheduledCount())
	assert.EqualValues(t, 1, *webhookCalls)
}

func TestCreateTicketDefaultsDueDate(t *testing.T) {
	ds := new(mocks.MockDataSource)
	queue := newFakeQueue()
	l, _ := newTestTally(ds, nil, queue)

	ds.On("RecordTicket", mock.Anything, mock.Anything).Return(nil, nil)

	ticket, err := l.CreateTicket(context.Background(), &model.Ticket{
		LoanerID: "usr_a",
		LoaneeID: "usr_b",
		Amount:   100,
		Method:   model.MethodCash,
	})
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(model.DefaultDueIn), ticket.DueDate, time.Minute)
}

func TestCreateTicketSurvivesScheduleFailure(t *testing.T) {
	ds := new(mocks.MockDataSource)
	queue := newFakeQueue()
	l, _ := newTestTally(ds, nil, queue)

	var recordedID string
	ds.On("RecordTicket", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recordedID = args.Get(1).(*model.Ticket).TicketID
		queue.mu.Lock()
		queue.enqueueErrFor[recordedID] = errors.New("broker unavailable")
		queue.mu.Unlock()
	}).Return(nil, nil)

	// The scheduling error surfaces to the caller, but the ticket stands:
	// the overdue sweep is the backstop for the missing job.
	ticket, err := l.CreateTicket(context.Background(), &model.Ticket{
		LoanerID: "usr_a",
		LoaneeID: "usr_b",
		Amount:   100,
		Method:   model.MethodCash,
	})
	assert.Error(t, err)
	require.NotNil(t, ticket)
	assert.Equal(t, recordedID, ticket.TicketID)
	assert.Equal(t, 0, queue.scheduledCount())
	ds.AssertNumberOfCalls(t, "RecordTicket", 1)
}

func TestCreateTicketRejectsInvalidInput(t *testing.T) {
	ds := new(mocks.MockDataSource)
	l, _ := newTestTally(ds, nil, newFakeQueue())

	_, err := l.CreateTicket(context.Background(), &model.Ticket{
		LoanerID: "usr_a",
		LoaneeID: "usr_a",
		Amount:   100,
		Method:   model.MethodCash,
	})
	assert.Error(t, err)
	ds.AssertNotCalled(t, "RecordTicket", mock.Anything, mock.Anything)
}
