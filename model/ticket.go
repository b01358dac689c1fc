/*
Copyright 2025 Tally Money Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Ticket statuses. PENDING is the only non-terminal status; the settlement
// engine resolves every ticket to PAID or OVERDUE and never transitions out
// of a terminal status.
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusOverdue = "OVERDUE"
)

// Settlement methods. Only AUTO_CARD triggers an automatic charge when the
// ticket comes due; CASH and MANUAL_CARD resolve straight to OVERDUE and are
// settled out-of-band.
const (
	MethodCash       = "CASH"
	MethodManualCard = "MANUAL_CARD"
	MethodAutoCard   = "AUTO_CARD"
)

// DefaultDueIn is applied when a ticket is created without an explicit due date.
const DefaultDueIn = 7 * 24 * time.Hour

// Ticket represents a time-bound payment obligation between two parties.
// The loanee is the payer.
type Ticket struct {
	TicketID   string                 `json:"ticket_id"`
	LoanerID   string                 `json:"loaner_id"`
	LoaneeID   string                 `json:"loanee_id"`
	Amount     int64                  `json:"amount"`
	Method     string                 `json:"method"`
	Status     string                 `json:"status"`
	DueDate    time.Time              `json:"due_date"`
	PaymentRef string                 `json:"payment_ref,omitempty"`
	PaidAt     *time.Time             `json:"paid_at,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	MetaData   map[string]interface{} `json:"meta_data,omitempty"`
}

// TicketUpdate carries the fields written when a ticket transitions out of
// PENDING. The store applies it only while the ticket's current status still
// matches the caller's expectation.
type TicketUpdate struct {
	Status     string
	PaymentRef string
	PaidAt     *time.Time
	MetaData   map[string]interface{}
}

func (ticket *Ticket) ToJSON() ([]byte, error) {
	return json.Marshal(ticket)
}

// IsOverdue reports whether the ticket's due date has passed at the given
// instant. A zero due date is never overdue.
func (ticket *Ticket) IsOverdue(now time.Time) bool {
	return !ticket.DueDate.IsZero() && ticket.DueDate.Before(now)
}

// IsTerminal reports whether the ticket has been resolved by the settlement
// engine.
func (ticket *Ticket) IsTerminal() bool {
	return ticket.Status == StatusPaid || ticket.Status == StatusOverdue
}

// ValidMethod reports whether the given settlement method is known.
func ValidMethod(method string) bool {
	switch method {
	case MethodCash, MethodManualCard, MethodAutoCard:
		return true
	}
	return false
}

// Validate checks a ticket before it is persisted. Amounts are integer minor
// units and must be positive; the two parties must be distinct.
func (ticket *Ticket) Validate() error {
	if ticket.LoanerID == "" || ticket.LoaneeID == "" {
		return errors.New("ticket requires both a loaner and a loanee")
	}
	if ticket.LoanerID == ticket.LoaneeID {
		return errors.New("loaner and loanee cannot be the same party")
	}
	if ticket.Amount <= 0 {
		return errors.New("ticket amount must be positive")
	}
	if !ValidMethod(ticket.Method) {
		return fmt.Errorf("unknown settlement method %q", ticket.Method)
	}
	return nil
}
