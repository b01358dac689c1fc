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

	"github.com/tally-money/tally/config"
	"github.com/tally-money/tally/model"
)

// ScheduleTicket enqueues the settlement job for a ticket at its due date.
// Called once, synchronously, right after a PENDING ticket is persisted.
func (l *Tally) ScheduleTicket(ctx context.Context, ticket *model.Ticket) error {
	ctx, span := tracer.Start(ctx, "Scheduling Ticket Settlement")
	defer span.End()

	return l.queue.EnqueueSettlement(ctx, ticket.TicketID, ticket.DueDate)
}

// RecoverScheduledSettlements rebuilds the delay queue from the ticket store.
// The queue is never trusted across restarts: all non-completed jobs are
// flushed, the repeating sweep is re-registered, and one settlement job is
// re-derived for every still-PENDING ticket. Safe to run repeatedly, the
// flush clears whatever a previous run scheduled.
//
// Invoke once during process initialization, before accepting new tickets.
func (l *Tally) RecoverScheduledSettlements(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Recovering Scheduled Settlements")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if err := l.queue.Flush(ctx); err != nil {
		return err
	}

	sweepInterval := time.Duration(cfg.Queue.SweepIntervalSec) * time.Second
	if err := l.queue.RegisterSweep(sweepInterval); err != nil {
		return err
	}

	tickets, err := l.datasource.GetTicketsByStatus(ctx, model.StatusPending)
	if err != nil {
		return err
	}

	scheduled := 0
	for _, ticket := range tickets {
		if ticket.DueDate.IsZero() {
			// Should not happen, creation always sets a due date. The sweep
			// cannot catch a ticket without one either, so make it loud.
			logrus.Warnf("ticket %s has no due date, skipping reschedule", ticket.TicketID)
			continue
		}
		if err := l.queue.EnqueueSettlement(ctx, ticket.TicketID, ticket.DueDate); err != nil {
			logrus.Errorf("failed to reschedule settlement for ticket %s: %v", ticket.TicketID, err)
			continue
		}
		scheduled++
	}

	logrus.Infof("Settlement recovery complete: rescheduled %d of %d pending tickets", scheduled, len(tickets))
	return nil
}

// StartupHook runs queue recovery and starts the repeating-job scheduler.
// Call once during process initialization, before workers consume tasks.
func (l *Tally) StartupHook(ctx context.Context) error {
	if err := l.RecoverScheduledSettlements(ctx); err != nil {
		return err
	}
	if q, ok := l.queue.(*Queue); ok {
		return q.StartScheduler()
	}
	return nil
}
