// Copyright 2025 Kiln Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory is the in-memory backend of the kiln engine. It owns the
// task table, the run queue, and the worker pool, and implements the
// scheduling capability cells consume: when a cell's value changes or
// disappears, the cell hands its dependents here and they are re-enqueued
// for execution.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-metrics"
	"golang.org/x/sync/errgroup"

	"github.com/kiln-build/kiln"
	"github.com/kiln-build/kiln/stats"
)

// Backend runs tasks and stores their cells in memory. It implements
// kiln.API.
type Backend struct {
	log hclog.Logger
	cfg Config

	mu      sync.Mutex
	tasks   map[kiln.TaskID]*Task
	nextID  kiln.TaskID
	queue   []kiln.TaskID
	pending map[kiln.TaskID]struct{}
	stopped bool

	// wake has one buffered token; enqueuers send without blocking, and
	// workers drain the queue completely after each receive, so no wakeup
	// is lost.
	wake   chan struct{}
	group  *errgroup.Group
	cancel context.CancelFunc

	statsMu sync.Mutex
	counts  stats.Counts
}

// New starts a backend with cfg's worker pool and, when configured, the
// background eviction pass.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		log: hclog.New(&hclog.LoggerOptions{
			Name:  "kiln.memory",
			Level: hclog.LevelFromString(cfg.LogLevel),
		}),
		cfg:     cfg,
		tasks:   make(map[kiln.TaskID]*Task),
		pending: make(map[kiln.TaskID]struct{}),
		wake:    make(chan struct{}, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		b.group.Go(func() error {
			b.worker(ctx)
			return nil
		})
	}
	if cfg.GCInterval > 0 {
		b.group.Go(func() error {
			b.gcLoop(ctx)
			return nil
		})
	}
	b.log.Debug("backend started", "workers", cfg.Workers, "gc_interval", time.Duration(cfg.GCInterval))
	return b, nil
}

// Spawn registers a task. The task does not run until it is scheduled,
// either explicitly or by a reader missing one of its cells.
func (b *Backend) Spawn(name string, compute ComputeFunc) *Task {
	b.mu.Lock()
	b.nextID++
	t := &Task{
		id:      b.nextID,
		name:    name,
		backend: b,
		compute: compute,
	}
	b.tasks[t.id] = t
	b.mu.Unlock()

	b.addCounts(func(c *stats.Counts) { c.TasksSpawned++ })
	b.log.Debug("task spawned", "task", t.id, "name", name)
	return t
}

// Task returns the registered task with the given id, or nil.
func (b *Backend) Task(id kiln.TaskID) *Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tasks[id]
}

// ScheduleNotifyTasks re-enqueues the listed tasks for execution. It never
// blocks and never runs a task inline: cells call this with their owning
// task's state lock held, and the actual executions happen on the worker
// pool. Tasks already queued, unknown, or scheduled after Stop are
// dropped.
func (b *Backend) ScheduleNotifyTasks(ids []kiln.TaskID) {
	added := b.enqueue(ids)
	if added == 0 {
		return
	}
	metrics.IncrCounter([]string{"kiln", "memory", "tasks_notified"}, float32(added))
	b.addCounts(func(c *stats.Counts) {
		c.InvalidationRounds++
		c.TasksNotified += int64(added)
	})
}

// scheduleCompute enqueues the producing task for a reader that took on
// the scheduling responsibility of a recomputing ticket.
func (b *Backend) scheduleCompute(id kiln.TaskID) {
	if b.enqueue([]kiln.TaskID{id}) > 0 {
		metrics.IncrCounter([]string{"kiln", "memory", "recomputations"}, 1)
	}
}

func (b *Backend) enqueue(ids []kiln.TaskID) int {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		b.log.Warn("dropping task notification after shutdown", "tasks", len(ids))
		return 0
	}
	added := 0
	for _, id := range ids {
		if _, ok := b.pending[id]; ok {
			continue
		}
		if _, ok := b.tasks[id]; !ok {
			continue
		}
		b.pending[id] = struct{}{}
		b.queue = append(b.queue, id)
		added++
	}
	depth := int64(len(b.queue))
	b.mu.Unlock()

	if added > 0 {
		b.addCounts(func(c *stats.Counts) {
			if depth > c.MaxQueueDepth {
				c.MaxQueueDepth = depth
			}
		})
		select {
		case b.wake <- struct{}{}:
		default:
		}
	}
	return added
}

// nextTask pops the head of the run queue. The pending mark is cleared
// before the task runs, so a notification arriving mid-run re-enqueues it.
func (b *Backend) nextTask() *Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	id := b.queue[0]
	b.queue = b.queue[1:]
	delete(b.pending, id)
	return b.tasks[id]
}

func (b *Backend) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.wake:
		}
		for {
			t := b.nextTask()
			if t == nil {
				break
			}
			b.runTask(ctx, t)
		}
	}
}

func (b *Backend) runTask(ctx context.Context, t *Task) {
	if err := t.compute(ctx, t); err != nil {
		b.addCounts(func(c *stats.Counts) { c.ComputeErrors++ })
		b.log.Error("task execution failed", "task", t.id, "name", t.name, "error", err)
	}
}

func (b *Backend) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(b.cfg.GCInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := b.EvictAll()
			if n > 0 {
				b.log.Debug("eviction pass", "contents", n)
			}
		}
	}
}

// EvictAll evicts the cell contents of every registered task, preserving
// tracking. It returns the number of contents evicted.
func (b *Backend) EvictAll() int {
	b.mu.Lock()
	tasks := make([]*Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		tasks = append(tasks, t)
	}
	b.mu.Unlock()

	n := 0
	for _, t := range tasks {
		n += t.EvictCells()
	}
	return n
}

// DropTask tears down t: its cells wake their waiters and schedule their
// dependents, and t is removed from every other task's dependent sets so
// it is never signalled again.
func (b *Backend) DropTask(t *Task) {
	b.mu.Lock()
	delete(b.tasks, t.id)
	others := make([]*Task, 0, len(b.tasks))
	for _, o := range b.tasks {
		others = append(others, o)
	}
	b.mu.Unlock()

	dropped := t.drop(b)
	for _, o := range others {
		o.RemoveDependent(t.id)
	}

	metrics.IncrCounter([]string{"kiln", "memory", "tasks_dropped"}, 1)
	b.addCounts(func(c *stats.Counts) { c.Drops += int64(dropped) })
	b.log.Debug("task dropped", "task", t.id, "name", t.name, "cells", dropped)
}

// Stop shuts the backend down: the worker pool drains, and every task is
// torn down so no waiter is left parked. Scheduling calls racing with or
// following Stop are dropped.
func (b *Backend) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	tasks := make([]*Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		tasks = append(tasks, t)
	}
	b.tasks = map[kiln.TaskID]*Task{}
	b.queue = nil
	clear(b.pending)
	b.mu.Unlock()

	b.cancel()
	err := b.group.Wait()

	dropped := 0
	for _, t := range tasks {
		dropped += t.drop(b)
	}
	b.addCounts(func(c *stats.Counts) { c.Drops += int64(dropped) })
	b.log.Debug("backend stopped", "tasks", len(tasks), "cells", dropped)
	return err
}

// Stats returns a snapshot of the backend's counters.
func (b *Backend) Stats() stats.Counts {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.counts
}

func (b *Backend) addCounts(f func(*stats.Counts)) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	f(&b.counts)
}

func (b *Backend) noteRead(miss bool) {
	metrics.IncrCounter([]string{"kiln", "memory", "cell_reads"}, 1)
	b.addCounts(func(c *stats.Counts) {
		c.CellReads++
		if miss {
			c.CellMisses++
		}
	})
}

func (b *Backend) noteWrite() {
	metrics.IncrCounter([]string{"kiln", "memory", "cell_writes"}, 1)
	b.addCounts(func(c *stats.Counts) { c.CellWrites++ })
}

func (b *Backend) noteEvictions(n int) {
	if n == 0 {
		return
	}
	metrics.IncrCounter([]string{"kiln", "memory", "evictions"}, float32(n))
	b.addCounts(func(c *stats.Counts) { c.Evictions += int64(n) })
}
