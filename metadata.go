package tally

import (
	"context"
	"fmt"
	"strings"
)

// UpdateTicketMetadata merges new metadata into a ticket's existing metadata
// and persists the result. Settlement state is never touched through this
// path; only the metadata column changes.
func (l *Tally) UpdateTicketMetadata(ctx context.Context, ticketID string, newMetadata map[string]interface{}) (map[string]interface{}, error) {
	if !strings.HasPrefix(ticketID, "tkt_") {
		return nil, fmt.Errorf("invalid ticket ID format: %s", ticketID)
	}

	ticket, err := l.datasource.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	mergedMetadata := mergeMetadata(ticket.MetaData, newMetadata)
	if err := l.datasource.UpdateTicketMetadata(ctx, ticketID, mergedMetadata); err != nil {
		return nil, fmt.Errorf("failed to update metadata: %w", err)
	}

	return mergedMetadata, nil
}

// mergeMetadata merges new metadata into current, initializing the map when
// the ticket has none yet.
func mergeMetadata(current, new map[string]interface{}) map[string]interface{} {
	if current == nil {
		current = make(map[string]interface{})
	}

	for k, v := range new {
		current[k] = v
	}

	return current
}
