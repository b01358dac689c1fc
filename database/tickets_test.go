package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally-money/tally/internal/apierror"
	"github.com/tally-money/tally/model"
)

func newTestDataSource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func ticketColumns() []string {
	return []string{"ticket_id", "loaner_id", "loanee_id", "amount", "method", "status", "due_date", "payment_ref", "paid_at", "created_at", "meta_data"}
}

func TestRecordTicket(t *testing.T) {
	ds, mock := newTestDataSource(t)

	ticket := &model.Ticket{
		TicketID:  GenerateUUIDWithSuffix("tkt"),
		LoanerID:  gofakeit.UUID(),
		LoaneeID:  gofakeit.UUID(),
		Amount:    5000,
		Method:    model.MethodCash,
		Status:    model.StatusPending,
		DueDate:   time.Now().Add(7 * 24 * time.Hour),
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO tickets").
		WithArgs(ticket.TicketID, ticket.LoanerID, ticket.LoaneeID, ticket.Amount, ticket.Method, ticket.Status, ticket.DueDate, ticket.CreatedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recorded, err := ds.RecordTicket(context.Background(), ticket)
	assert.NoError(t, err)
	assert.Equal(t, ticket.TicketID, recorded.TicketID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicket(t *testing.T) {
	ds, mock := newTestDataSource(t)

	now := time.Now()
	rows := sqlmock.NewRows(ticketColumns()).
		AddRow("tkt_1", "usr_a", "usr_b", int64(5000), model.MethodAutoCard, model.StatusPending, now.Add(-time.Hour), nil, nil, now.Add(-48*time.Hour), []byte(`{"note":"lunch"}`))

	mock.ExpectQuery("SELECT .* FROM tickets WHERE ticket_id = \\$1").
		WithArgs("tkt_1").
		WillReturnRows(rows)

	ticket, err := ds.GetTicket(context.Background(), "tkt_1")
	require.NoError(t, err)
	assert.Equal(t, "tkt_1", ticket.TicketID)
	assert.Equal(t, model.StatusPending, ticket.Status)
	assert.Nil(t, ticket.PaidAt)
	assert.Equal(t, "lunch", ticket.MetaData["note"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicketNotFound(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectQuery("SELECT .* FROM tickets WHERE ticket_id = \\$1").
		WithArgs("tkt_missing").
		WillReturnRows(sqlmock.NewRows(ticketColumns()))

	_, err := ds.GetTicket(context.Background(), "tkt_missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestGetDueTickets(t *testing.T) {
	ds, mock := newTestDataSource(t)

	now := time.Now()
	rows := sqlmock.NewRows(ticketColumns()).
		AddRow("tkt_1", "usr_a", "usr_b", int64(100), model.MethodCash, model.StatusPending, now.Add(-2*time.Hour), nil, nil, now.Add(-72*time.Hour), nil).
		AddRow("tkt_2", "usr_c", "usr_d", int64(200), model.MethodAutoCard, model.StatusPending, now.Add(-time.Hour), nil, nil, now.Add(-72*time.Hour), nil)

	mock.ExpectQuery("SELECT .* FROM tickets WHERE status = \\$1 AND due_date < \\$2").
		WithArgs(model.StatusPending, sqlmock.AnyArg(), 500).
		WillReturnRows(rows)

	tickets, err := ds.GetDueTickets(context.Background(), model.StatusPending, now, 500)
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	assert.Equal(t, "tkt_1", tickets[0].TicketID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTicketIfStatus(t *testing.T) {
	ds, mock := newTestDataSource(t)

	paidAt := time.Now()
	mock.ExpectExec("UPDATE tickets SET status = \\$3").
		WithArgs("tkt_1", model.StatusPending, model.StatusPaid, "ch_abc", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateTicketIfStatus(context.Background(), "tkt_1", model.StatusPending, model.TicketUpdate{
		Status:     model.StatusPaid,
		PaymentRef: "ch_abc",
		PaidAt:     &paidAt,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTicketIfStatusGuardLost(t *testing.T) {
	ds, mock := newTestDataSource(t)

	// Another processor already resolved the ticket; the guard matches no row.
	mock.ExpectExec("UPDATE tickets SET status = \\$3").
		WithArgs("tkt_1", model.StatusPending, model.StatusOverdue, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateTicketIfStatus(context.Background(), "tkt_1", model.StatusPending, model.TicketUpdate{
		Status: model.StatusOverdue,
	})
	assert.True(t, apierror.IsConflict(err))
}

func TestUpdateTicketMetadata(t *testing.T) {
	ds, mock := newTestDataSource(t)

	mock.ExpectExec("UPDATE tickets SET meta_data").
		WithArgs("tkt_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateTicketMetadata(context.Background(), "tkt_1", map[string]interface{}{"resolved_by": "sweep"})
	assert.NoError(t, err)
}
