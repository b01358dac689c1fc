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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tally-money/tally/config"
	redis_db "github.com/tally-money/tally/internal/redis-db"
)

// SettlementQueue is the delayed-job contract the engine consumes. The queue
// is best-effort signaling only; the ticket store stays the source of truth,
// which is why Flush exists for startup recovery and nothing else.
type SettlementQueue interface {
	EnqueueSettlement(ctx context.Context, ticketID string, dueAt time.Time) error
	RegisterSweep(interval time.Duration) error
	Flush(ctx context.Context) error
}

// Queue wraps the asynq client, inspector and in-process scheduler behind the
// SettlementQueue contract.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	Scheduler *asynq.Scheduler

	sweepEntryID string
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	scheduler := asynq.NewScheduler(queueOptions, &asynq.SchedulerOpts{})
	return &Queue{
		Client:    client,
		Inspector: inspector,
		Scheduler: scheduler,
	}
}

// EnqueueSettlement schedules the settlement job for a ticket to fire at its
// due date. The ticket ID doubles as the task ID, so at most one outstanding
// settlement job exists per ticket; re-scheduling an already scheduled ticket
// is a no-op.
func (q *Queue) EnqueueSettlement(ctx context.Context, ticketID string, dueAt time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(ticketID)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(ticketID),
		asynq.Queue(cfg.Queue.SettlementQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	if delay := time.Until(dueAt); delay > 0 {
		taskOptions = append(taskOptions, asynq.ProcessIn(delay))
	}

	task := asynq.NewTask(cfg.Queue.SettlementQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf(" [*] Settlement already scheduled for ticket: %s", ticketID)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued settlement for ticket: %s", ticketID)
	return nil
}

// RegisterSweep registers the repeating overdue sweep with the in-process
// scheduler. Any prior registration from this process is removed first so
// repeated recovery runs cannot stack sweep entries.
func (q *Queue) RegisterSweep(interval time.Duration) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if q.sweepEntryID != "" {
		if err := q.Scheduler.Unregister(q.sweepEntryID); err != nil {
			log.Printf("Error unregistering previous sweep entry: %v", err)
		}
		q.sweepEntryID = ""
	}

	task := asynq.NewTask(SweepTaskKind, nil, asynq.Queue(cfg.Queue.SettlementQueue))
	entryID, err := q.Scheduler.Register(fmt.Sprintf("@every %s", interval), task)
	if err != nil {
		return err
	}
	q.sweepEntryID = entryID
	return nil
}

// StartScheduler starts the repeating-job scheduler. Call after sweep
// registration; Shutdown stops it.
func (q *Queue) StartScheduler() error {
	return q.Scheduler.Start()
}

// Flush removes every pending, scheduled, retrying and archived task from the
// engine's queues. Used only during startup recovery: the queue's contents
// are rebuilt from the ticket store immediately afterwards. Never call this
// in steady state, it would cancel legitimately pending settlements.
func (q *Queue) Flush(ctx context.Context) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	for _, queueName := range []string{cfg.Queue.SettlementQueue, cfg.Queue.WebhookQueue} {
		if err := q.flushQueue(queueName); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) flushQueue(queueName string) error {
	deletions := []func(string) (int, error){
		q.Inspector.DeleteAllScheduledTasks,
		q.Inspector.DeleteAllPendingTasks,
		q.Inspector.DeleteAllRetryTasks,
		q.Inspector.DeleteAllArchivedTasks,
	}

	total := 0
	for _, deleteAll := range deletions {
		n, err := deleteAll(queueName)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				return nil
			}
			return err
		}
		total += n
	}
	if total > 0 {
		log.Printf(" [*] Flushed %d stale tasks from queue %s", total, queueName)
	}
	return nil
}

// GetScheduledSettlement retrieves the scheduled settlement task for a ticket,
// or nil when no job is outstanding.
func (q *Queue) GetScheduledSettlement(ticketID string) (*asynq.TaskInfo, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	task, err := q.Inspector.GetTaskInfo(cfg.Queue.SettlementQueue, ticketID)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) || errors.Is(err, asynq.ErrTaskNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}
