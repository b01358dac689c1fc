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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/tally-money/tally"
	"github.com/tally-money/tally/config"
	redis_db "github.com/tally-money/tally/internal/redis-db"
)

// processSettlement handles a settlement task fired by the delay queue at a
// ticket's due date. The processor is idempotent, so redeliveries and overlap
// with the periodic sweep are safe. An error return pushes the task back for
// retry with the configured backoff.
func (b *tallyInstance) processSettlement(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("ticket.settlement.worker").Start(ctx, "Process Settlement From Redis Queue")
	defer span.End()

	var ticketID string
	if err := json.Unmarshal(t.Payload(), &ticketID); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.tally.ProcessTicketSettlement(ctx, ticketID); err != nil {
		logrus.Infof("Settlement for ticket %s pushed back for retry due to error: %v", ticketID, err)
		return err
	}

	log.Println(" [*] Settlement Processed", ticketID)
	return nil
}

// processSweep handles the repeating overdue sweep task. A sweep walks the
// ticket store for overdue PENDING tickets whose settlement job was lost and
// settles them directly.
func (b *tallyInstance) processSweep(ctx context.Context, _ *asynq.Task) error {
	count, err := b.tally.SweepOverdueTickets(ctx)
	if err != nil {
		logrus.Errorf("overdue sweep failed: %v", err)
		return err
	}

	log.Printf(" [*] Overdue Sweep Complete, %d tickets processed", count)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.SettlementQueue] = 3
	queues[cfg.Queue.WebhookQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	retryBase := time.Duration(conf.Queue.RetryBackoffSec) * time.Second

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return retryBase * time.Duration(1<<n)
			},
		},
	), nil
}

func initializeTaskHandlers(b *tallyInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.SettlementQueue, b.processSettlement)
	mux.HandleFunc(tally.SweepTaskKind, b.processSweep)
	mux.HandleFunc(cfg.Queue.WebhookQueue, tally.ProcessWebhook)
}

// workerCommands defines the "workers" command that runs the settlement
// workers. Startup first rebuilds the delay queue from the ticket store, then
// the workers consume settlement, sweep and webhook tasks.
func workerCommands(b *tallyInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start tally workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			// The queue is rebuilt from the ticket store before any task is
			// consumed. Jobs scheduled by a previous process are discarded.
			if err := b.tally.StartupHook(ctx); err != nil {
				log.Fatalf("could not recover scheduled settlements: %v", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
