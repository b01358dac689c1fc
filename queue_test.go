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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	queueOptions := asynq.RedisClientOpt{Addr: mr.Addr()}
	q := &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		Scheduler: asynq.NewScheduler(queueOptions, &asynq.SchedulerOpts{}),
	}
	t.Cleanup(func() {
		_ = q.Client.Close()
	})
	return q
}

func TestEnqueueSettlementScheduledAtDueDate(t *testing.T) {
	q := newTestQueue(t)

	err := q.EnqueueSettlement(context.Background(), "tkt_sched", time.Now().Add(time.Hour))
	require.NoError(t, err)

	task, err := q.GetScheduledSettlement("tkt_sched")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "tkt_sched", task.ID)
	assert.Equal(t, asynq.TaskStateScheduled, task.State)
}

func TestEnqueueSettlementPastDueFiresImmediately(t *testing.T) {
	q := newTestQueue(t)

	err := q.EnqueueSettlement(context.Background(), "tkt_late", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	task, err := q.GetScheduledSettlement("tkt_late")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, asynq.TaskStatePending, task.State)
}

func TestEnqueueSettlementDeduplicatesByTicketID(t *testing.T) {
	q := newTestQueue(t)

	dueAt := time.Now().Add(time.Hour)
	require.NoError(t, q.EnqueueSettlement(context.Background(), "tkt_dup", dueAt))

	// Second enqueue for the same ticket hits the task ID conflict and is
	// swallowed as a no-op.
	assert.NoError(t, q.EnqueueSettlement(context.Background(), "tkt_dup", dueAt))
}

func TestFlushRemovesOutstandingSettlements(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.EnqueueSettlement(context.Background(), "tkt_flush_a", time.Now().Add(time.Hour)))
	require.NoError(t, q.EnqueueSettlement(context.Background(), "tkt_flush_b", time.Now().Add(-time.Minute)))

	require.NoError(t, q.Flush(context.Background()))

	for _, ticketID := range []string{"tkt_flush_a", "tkt_flush_b"} {
		task, err := q.GetScheduledSettlement(ticketID)
		assert.NoError(t, err)
		assert.Nil(t, task)
	}
}

func TestFlushEmptyQueuesIsANoOp(t *testing.T) {
	q := newTestQueue(t)
	assert.NoError(t, q.Flush(context.Background()))
}

func TestRegisterSweepReplacesPreviousEntry(t *testing.T) {
	q := newTestQueue(t)

	require.NoError(t, q.RegisterSweep(time.Hour))
	first := q.sweepEntryID
	require.NotEmpty(t, first)

	require.NoError(t, q.RegisterSweep(30*time.Minute))
	assert.NotEqual(t, first, q.sweepEntryID)
}

func TestGetScheduledSettlementUnknownTicket(t *testing.T) {
	q := newTestQueue(t)

	task, err := q.GetScheduledSettlement("tkt_missing")
	assert.NoError(t, err)
	assert.Nil(t, task)
}
