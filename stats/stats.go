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

// Package stats provides counters for key events in a kiln engine run.
package stats

import (
	"strings"
	"sync"
	"text/template"
)

// Counts holds counters for key events during an engine run.
type Counts struct {
	// Cell access counters

	// CellReads counts tracked and untracked cell reads, hits and misses
	// both.
	CellReads int64

	// CellMisses counts reads that found no value available and received a
	// recomputing ticket instead.
	CellMisses int64

	// CellWrites counts cell assignments. Writes of a value equal to the
	// stored one are included; they do not invalidate anything, but they
	// still cost an equality check.
	CellWrites int64

	// Invalidation counters

	// InvalidationRounds counts batches of dependents handed to the
	// scheduler because a value changed or its cell was torn down. A batch
	// is counted only when it enqueued at least one task; batches whose
	// tasks were all already queued, unknown, or sent after shutdown are
	// not counted.
	InvalidationRounds int64

	// TasksNotified counts the tasks re-enqueued across all invalidation
	// rounds. A task already in the queue is not counted twice.
	TasksNotified int64

	// Lifecycle counters

	// TasksSpawned counts task registrations.
	TasksSpawned int64

	// Evictions counts cell contents evicted under memory pressure.
	Evictions int64

	// Drops counts cells torn down for good.
	Drops int64

	// ComputeErrors counts task executions that returned an error.
	ComputeErrors int64

	// MaxQueueDepth is the largest number of tasks that were pending
	// execution at once.
	MaxQueueDepth int64
}

// TODO: None of the methods below protect against overflows. If the
// counters get large enough for that to matter, add checks on each of the
// operations.

func (c *Counts) Add(other Counts) {
	c.CellReads += other.CellReads
	c.CellMisses += other.CellMisses
	c.CellWrites += other.CellWrites

	c.InvalidationRounds += other.InvalidationRounds
	c.TasksNotified += other.TasksNotified

	c.TasksSpawned += other.TasksSpawned
	c.Evictions += other.Evictions
	c.Drops += other.Drops
	c.ComputeErrors += other.ComputeErrors

	if other.MaxQueueDepth > c.MaxQueueDepth {
		c.MaxQueueDepth = other.MaxQueueDepth
	}
}

func (c Counts) Since(start Counts) Counts {
	c.CellReads -= start.CellReads
	c.CellMisses -= start.CellMisses
	c.CellWrites -= start.CellWrites

	c.InvalidationRounds -= start.InvalidationRounds
	c.TasksNotified -= start.TasksNotified

	c.TasksSpawned -= start.TasksSpawned
	c.Evictions -= start.Evictions
	c.Drops -= start.Drops
	c.ComputeErrors -= start.ComputeErrors

	// MaxQueueDepth is a peak, not a total; it remains as-is.

	return c
}

var stats = sync.OnceValue(func() *template.Template {
	return template.Must(template.New("stats").Parse(`{{"" -}}

CellReads:  {{.CellReads}}
CellMisses: {{.CellMisses}}
CellWrites: {{.CellWrites}}

InvalidationRounds: {{.InvalidationRounds}}
TasksNotified:      {{.TasksNotified}}

TasksSpawned: {{.TasksSpawned}}
Evictions:    {{.Evictions}}
Drops:        {{.Drops}}{{if .ComputeErrors}}
ComputeErrors: {{.ComputeErrors}}{{end}}{{if .MaxQueueDepth}}
MaxQueueDepth: {{.MaxQueueDepth}}{{end}}`))
})

func (c Counts) String() string {
	buf := &strings.Builder{}
	err := stats().Execute(buf, c)
	if err != nil {
		panic(err)
	}
	return buf.String()
}
