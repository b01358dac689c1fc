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

package tally

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/tally-money/tally/config"
	"github.com/tally-money/tally/database"
	"github.com/tally-money/tally/internal/apierror"
	redlock "github.com/tally-money/tally/internal/lock"
	"github.com/tally-money/tally/model"
)

var tracer = otel.Tracer("ticket.settlement")

// settlementLockDuration bounds how long a crashed worker can hold a ticket's
// settlement lock before the sweep can claim it.
const settlementLockDuration = 5 * time.Minute

// ProcessTicketSettlement is the settlement job handler and the single
// authority that moves a ticket out of PENDING. It is idempotent under
// redelivery: a ticket that is missing, already resolved, or not yet due is
// a no-op. An error return means the handler itself failed (store
// unreachable) and the queue should redeliver; business outcomes such as a
// declined charge never surface as errors.
func (l *Tally) ProcessTicketSettlement(ctx context.Context, ticketID string) error {
	ctx, span := tracer.Start(ctx, "Processing Ticket Settlement")
	defer span.End()

	ticket, err := l.datasource.GetTicket(ctx, ticketID)
	if err != nil {
		if apierror.IsNotFound(err) {
			logrus.Warnf("settlement job references unknown ticket %s, dropping", ticketID)
			return nil
		}
		return err
	}

	if ticket.Status != model.StatusPending {
		// Duplicate delivery, an overlapping sweep, or a manual re-trigger.
		return nil
	}

	if !ticket.IsOverdue(time.Now()) {
		// Job fired early (clock skew, sweep ahead of the due instant).
		// The sweep will revisit the ticket once it is actually due.
		logrus.Infof("ticket %s is not due yet, leaving pending", ticket.TicketID)
		return nil
	}

	if l.redis != nil {
		locker := redlock.NewLocker(l.redis, "ticket-settlement:"+ticket.TicketID, database.GenerateUUIDWithSuffix("loc"))
		if err := locker.Lock(ctx, settlementLockDuration); err != nil {
			logrus.Infof("settlement for ticket %s already in progress, skipping", ticket.TicketID)
			return nil
		}
		defer func(locker *redlock.Locker, ctx context.Context) {
			if err := locker.Unlock(ctx); err != nil {
				logrus.Error("lock error", err)
			}
		}(locker, ctx)
	}

	if ticket.Method == model.MethodAutoCard {
		reference, chargeErr := l.chargeTicket(ctx, ticket)
		if chargeErr == nil {
			now := time.Now()
			return l.resolveTicket(ctx, ticket, model.TicketUpdate{
				Status:     model.StatusPaid,
				PaymentRef: reference,
				PaidAt:     &now,
			})
		}
		// Graceful degradation: a declined or timed-out charge falls through
		// to manual settlement instead of blocking the ticket.
		logrus.Warnf("automatic charge failed for ticket %s: %v", ticket.TicketID, chargeErr)
		return l.resolveTicket(ctx, ticket, model.TicketUpdate{
			Status:   model.StatusOverdue,
			MetaData: map[string]interface{}{"charge_error": chargeErr.Error()},
		})
	}

	return l.resolveTicket(ctx, ticket, model.TicketUpdate{Status: model.StatusOverdue})
}

// chargeTicket attempts an automatic charge against the loanee's default
// instrument, bounded by the configured gateway timeout.
func (l *Tally) chargeTicket(ctx context.Context, ticket *model.Ticket) (string, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return "", err
	}

	chargeCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Gateway.TimeoutSec)*time.Second)
	defer cancel()

	return l.gateway.Charge(chargeCtx, ticket.LoaneeID, ticket.Amount)
}

// resolveTicket performs the single conditional store write for a settlement
// and emits the terminal-state webhook. Losing the status guard to a
// concurrent processor is a quiet no-op; any other store failure propagates
// so the queue retries the handler.
func (l *Tally) resolveTicket(ctx context.Context, ticket *model.Ticket, update model.TicketUpdate) error {
	err := l.datasource.UpdateTicketIfStatus(ctx, ticket.TicketID, model.StatusPending, update)
	if err != nil {
		if apierror.IsConflict(err) {
			logrus.Infof("ticket %s was resolved concurrently, skipping", ticket.TicketID)
			return nil
		}
		return err
	}

	resolved := *ticket
	resolved.Status = update.Status
	resolved.PaymentRef = update.PaymentRef
	resolved.PaidAt = update.PaidAt

	event := EventTicketOverdue
	if update.Status == model.StatusPaid {
		event = EventTicketPaid
	}
	if err := l.webhook(NewWebhook{Event: event, Payload: &resolved}); err != nil {
		// Notification failures never affect the settlement outcome.
		logrus.Errorf("failed to enqueue %s webhook for ticket %s: %v", event, ticket.TicketID, err)
	}

	logrus.Infof(" [*] Ticket %s resolved to %s", ticket.TicketID, update.Status)
	return nil
}
