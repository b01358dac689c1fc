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
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tally-money/tally/model"
)

// SweepTaskKind is the task type of the repeating overdue sweep registered
// with the delay queue scheduler.
const SweepTaskKind = "ticket_sweep"

// OverdueSweeper is the safety net under the per-ticket settlement jobs. It
// queries the ticket store directly for overdue PENDING tickets and re-invokes
// the settlement processor for each, catching obligations whose job was lost,
// never scheduled, or wiped by a restart. Every invocation goes through the
// processor's idempotence guard, so overlapping a sweep with a per-ticket job
// is harmless.
type OverdueSweeper struct {
	tally      *Tally
	batchSize  int
	maxWorkers int
	interval   time.Duration
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

func NewOverdueSweeper(tally *Tally, interval time.Duration) *OverdueSweeper {
	maxWorkers := 10
	return &OverdueSweeper{
		tally:      tally,
		batchSize:  maxWorkers * 100,
		maxWorkers: maxWorkers,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the periodic sweep loop. Used when the repeating queue job
// is not available; the loop and the queue-driven trigger are interchangeable
// because SweepOnce is idempotent per ticket.
func (s *OverdueSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	logrus.Info("Overdue ticket sweeper started")
}

func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Info("Overdue ticket sweeper stopped")
}

func (s *OverdueSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *OverdueSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Overdue ticket sweeper context cancelled")
			return
		case <-s.stopCh:
			logrus.Info("Overdue ticket sweeper stop signal received")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce walks the ticket store for overdue PENDING tickets and runs the
// settlement processor for each with a bounded worker pool. Ordering between
// tickets is not significant. Returns the number of tickets processed.
func (s *OverdueSweeper) SweepOnce(ctx context.Context) int {
	overdueTickets, err := s.tally.datasource.GetDueTickets(ctx, model.StatusPending, time.Now(), s.batchSize)
	if err != nil {
		logrus.Errorf("failed to query overdue tickets: %v", err)
		return 0
	}

	if len(overdueTickets) == 0 {
		return 0
	}

	logrus.Infof("Sweeping %d overdue tickets with %d workers", len(overdueTickets), s.maxWorkers)

	sem := make(chan struct{}, s.maxWorkers)
	var batchWg sync.WaitGroup

	for _, ticket := range overdueTickets {
		sem <- struct{}{}
		batchWg.Add(1)
		go func(ticketID string) {
			defer batchWg.Done()
			defer func() { <-sem }()
			if err := s.tally.ProcessTicketSettlement(ctx, ticketID); err != nil {
				logrus.Errorf("failed to settle overdue ticket %s: %v", ticketID, err)
			}
		}(ticket.TicketID)
	}

	batchWg.Wait()
	return len(overdueTickets)
}

// SweepOverdueTickets triggers an immediate sweep outside the periodic
// cadence. Exposed for the operator command.
func (l *Tally) SweepOverdueTickets(ctx context.Context) (int, error) {
	sweeper := NewOverdueSweeper(l, time.Hour)
	return sweeper.SweepOnce(ctx), nil
}
