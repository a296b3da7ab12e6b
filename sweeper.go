/*
Copyright 2024 Blnk Finance Authors.

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

package payrecon

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper runs fn every interval until stopped.
type Sweeper struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSweeper(name string, interval time.Duration, fn func(ctx context.Context)) *Sweeper {
	return &Sweeper{
		name:     name,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running || s.interval <= 0 {
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

	logrus.Infof("%s sweeper started (every %v)", s.name, s.interval)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Infof("%s sweeper stopped", s.name)
}

func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Infof("%s sweeper context cancelled", s.name)
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fn(ctx)
		}
	}
}

// SweepPending drops pending receipts older than the retention window and
// persists the store when anything was removed.
func (r *Recon) SweepPending(ctx context.Context) int {
	ctx, span := tracer.Start(ctx, "SweepPending")
	defer span.End()

	maxAge := time.Duration(r.cfg.Reconciliation.PendingTTLSec) * time.Second
	removed := r.pending.SweepExpired(r.now(), maxAge)
	if removed > 0 {
		logrus.Infof("expired %d pending receipts", removed)
		r.flushPending(ctx)
	}
	return removed
}

// SweepSpam releases idle spam windows.
func (r *Recon) SweepSpam(_ context.Context) int {
	removed := r.spam.Prune(r.now())
	if removed > 0 {
		logrus.Debugf("pruned %d spam windows", removed)
	}
	return removed
}

// StartSweepers launches the periodic pending and spam sweeps.
func (r *Recon) StartSweepers(ctx context.Context) {
	r.mu.Lock()
	if len(r.sweepers) == 0 {
		r.sweepers = []*Sweeper{
			NewSweeper("pending receipt",
				time.Duration(r.cfg.Reconciliation.SweepIntervalSec)*time.Second,
				func(ctx context.Context) { r.SweepPending(ctx) }),
			NewSweeper("spam window",
				time.Duration(r.cfg.Spam.SweepIntervalSec)*time.Second,
				func(ctx context.Context) { r.SweepSpam(ctx) }),
		}
	}
	sweepers := r.sweepers
	r.mu.Unlock()

	for _, s := range sweepers {
		s.Start(ctx)
	}
}

// Stop halts the sweepers, waits for webhook deliveries and flushes both
// stores.
func (r *Recon) Stop(ctx context.Context) {
	r.mu.Lock()
	sweepers := r.sweepers
	r.mu.Unlock()

	for _, s := range sweepers {
		s.Stop()
	}
	r.webhooks.wait()
	r.Flush(ctx)
}
