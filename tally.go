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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tally-money/tally/config"
	"github.com/tally-money/tally/database"
	redis_db "github.com/tally-money/tally/internal/redis-db"
	"github.com/tally-money/tally/model"
)

// Tally represents the main struct for the Tally application.
type Tally struct {
	queue      SettlementQueue
	gateway    PaymentGateway
	redis      redis.UniversalClient
	datasource database.IDataSource

	// webhook delivers terminal-state notifications. Overridable in tests;
	// delivery failures never affect a settlement outcome.
	webhook func(NewWebhook) error
}

// NewTally initializes a new instance of Tally with the provided database
// datasource. It fetches the configuration and initializes the Redis client,
// queue and payment gateway.
func NewTally(db database.IDataSource) (*Tally, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	gateway := NewStripeGateway(configuration)

	newTally := &Tally{
		datasource: db,
		queue:      newQueue,
		gateway:    gateway,
		redis:      redisClient.Client(),
		webhook:    SendWebhook,
	}
	return newTally, nil
}

// CreateTicket validates and persists a new PENDING ticket, then schedules
// its settlement job. A scheduling failure is logged and reported to the
// caller but does not undo the ticket: the overdue sweep picks the ticket up
// even when no dedicated job exists.
func (l *Tally) CreateTicket(ctx context.Context, ticket *model.Ticket) (*model.Ticket, error) {
	if ticket.DueDate.IsZero() {
		ticket.DueDate = time.Now().Add(model.DefaultDueIn)
	}
	if err := ticket.Validate(); err != nil {
		return nil, err
	}

	ticket.TicketID = database.GenerateUUIDWithSuffix("tkt")
	ticket.Status = model.StatusPending
	ticket.CreatedAt = time.Now()

	ticket, err := l.datasource.RecordTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}

	if err := l.webhook(NewWebhook{Event: EventTicketCreated, Payload: ticket}); err != nil {
		logrus.Errorf("failed to enqueue created webhook for ticket %s: %v", ticket.TicketID, err)
	}

	if err := l.ScheduleTicket(ctx, ticket); err != nil {
		logrus.Errorf("failed to schedule settlement for ticket %s: %v", ticket.TicketID, err)
		return ticket, err
	}

	return ticket, nil
}

// GetTicket retrieves a ticket by its ID.
func (l *Tally) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	return l.datasource.GetTicket(ctx, id)
}

// ListTickets retrieves all tickets in the given status.
func (l *Tally) ListTickets(ctx context.Context, status string) ([]*model.Ticket, error) {
	return l.datasource.GetTicketsByStatus(ctx, status)
}
