package database

import (
	"context"
	"time"

	"github.com/tally-money/tally/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	ticket // Interface for ticket-related operations
}

// ticket defines methods for handling tickets.
type ticket interface {
	RecordTicket(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error)                             // Records a new ticket
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)                                           // Retrieves a ticket by ID
	GetTicketsByStatus(ctx context.Context, status string) ([]*model.Ticket, error)                            // Retrieves all tickets in a given status
	GetDueTickets(ctx context.Context, status string, before time.Time, limit int) ([]*model.Ticket, error)    // Retrieves tickets in a status whose due date has passed
	UpdateTicketIfStatus(ctx context.Context, id string, expectedStatus string, res model.TicketUpdate) error  // Conditionally transitions a ticket, guarded on its current status
	UpdateTicketMetadata(ctx context.Context, id string, metadata map[string]interface{}) error                // Merges metadata onto a ticket
}
