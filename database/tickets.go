package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	_ "github.com/lib/pq"

	"github.com/tally-money/tally/internal/apierror"
	"github.com/tally-money/tally/model"
)

func (d Datasource) RecordTicket(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	ctx, span := otel.Tracer("ticket.database").Start(ctx, "Saving ticket to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(ticket.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	_, err = d.Conn.ExecContext(ctx,
		`INSERT INTO tickets(ticket_id,loaner_id,loanee_id,amount,method,status,due_date,created_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ticket.TicketID, ticket.LoanerID, ticket.LoaneeID, ticket.Amount, ticket.Method, ticket.Status, ticket.DueDate, ticket.CreatedAt, metaDataJSON,
	)

	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record ticket", err)
	}

	return ticket, nil
}

func (d Datasource) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT ticket_id, loaner_id, loanee_id, amount, method, status, due_date, payment_ref, paid_at, created_at, meta_data
		FROM tickets
		WHERE ticket_id = $1
	`, id)

	ticket, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Ticket with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ticket", err)
	}

	return ticket, nil
}

func (d Datasource) GetTicketsByStatus(ctx context.Context, status string) ([]*model.Ticket, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT ticket_id, loaner_id, loanee_id, amount, method, status, due_date, payment_ref, paid_at, created_at, meta_data
		FROM tickets
		WHERE status = $1
		ORDER BY due_date ASC
	`, status)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve tickets by status", err)
	}
	defer rows.Close()

	return collectTickets(rows)
}

func (d Datasource) GetDueTickets(ctx context.Context, status string, before time.Time, limit int) ([]*model.Ticket, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT ticket_id, loaner_id, loanee_id, amount, method, status, due_date, payment_ref, paid_at, created_at, meta_data
		FROM tickets
		WHERE status = $1 AND due_date < $2
		ORDER BY due_date ASC
		LIMIT $3
	`, status, before, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve due tickets", err)
	}
	defer rows.Close()

	return collectTickets(rows)
}

// UpdateTicketIfStatus transitions a ticket in a single conditional write.
// The WHERE clause doubles as the optimistic-concurrency guard: when two
// processors race on the same ticket, exactly one UPDATE matches a row and
// the loser gets a CONFLICT back.
func (d Datasource) UpdateTicketIfStatus(ctx context.Context, id string, expectedStatus string, res model.TicketUpdate) error {
	ctx, span := otel.Tracer("ticket.database").Start(ctx, "Resolving ticket status in db")
	defer span.End()

	metaDataJSON, err := json.Marshal(res.MetaData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	var paymentRef sql.NullString
	if res.PaymentRef != "" {
		paymentRef = sql.NullString{String: res.PaymentRef, Valid: true}
	}
	var paidAt sql.NullTime
	if res.PaidAt != nil {
		paidAt = sql.NullTime{Time: *res.PaidAt, Valid: true}
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE tickets
		SET status = $3, payment_ref = $4, paid_at = $5, meta_data = COALESCE(meta_data, '{}'::jsonb) || $6
		WHERE ticket_id = $1 AND status = $2
	`, id, expectedStatus, res.Status, paymentRef, paidAt, metaDataJSON)

	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update ticket status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Ticket with ID '%s' is not in status '%s'", id, expectedStatus), nil)
	}

	return nil
}

func (d Datasource) UpdateTicketMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	metaDataJSON, err := json.Marshal(metadata)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE tickets
		SET meta_data = COALESCE(meta_data, '{}'::jsonb) || $2
		WHERE ticket_id = $1
	`, id, metaDataJSON)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update ticket metadata", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Ticket with ID '%s' not found", id), nil)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*model.Ticket, error) {
	ticket := &model.Ticket{}
	var paymentRef sql.NullString
	var paidAt sql.NullTime
	var metaDataJSON []byte

	err := row.Scan(&ticket.TicketID, &ticket.LoanerID, &ticket.LoaneeID, &ticket.Amount, &ticket.Method, &ticket.Status, &ticket.DueDate, &paymentRef, &paidAt, &ticket.CreatedAt, &metaDataJSON)
	if err != nil {
		return nil, err
	}

	if paymentRef.Valid {
		ticket.PaymentRef = paymentRef.String
	}
	if paidAt.Valid {
		t := paidAt.Time
		ticket.PaidAt = &t
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &ticket.MetaData); err != nil {
			return nil, err
		}
	}

	return ticket, nil
}

func collectTickets(rows *sql.Rows) ([]*model.Ticket, error) {
	var tickets []*model.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ticket", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate tickets", err)
	}
	return tickets, nil
}
