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

// Package cell implements the per-slot state machine of the kiln memo
// cache.
//
// A cell stores the value produced by one execution of a task, together
// with the set of tasks that read that value. It is the only place the
// engine records reverse dependencies: a read of an available value inserts
// the reader into the cell's dependent set, and any later change to the
// value hands that set to the backend for rescheduling.
//
// A cell is always in exactly one of five states:
//
//   - empty: never assigned, or fully dropped.
//   - tracked valueless: the value was evicted under memory pressure, but
//     tracking remains so the next write still invalidates dependents.
//   - recomputing: a reader arrived while the value was unavailable and is
//     parked on a waiter event until the producing task writes again.
//   - initial value: written exactly once.
//   - updated value: written two or more times; carries an update counter.
//
// The update counter is 1 after the first write and grows by one with
// each write that replaces a stored value with a different one. It
// survives eviction: a multi-write cell stays multi-write after its
// content is evicted and rewritten, and the write into the evicted cell
// leaves the counter unchanged.
//
// Cells are not internally synchronized. The task that owns a cell guards
// all of its cells with a single lock; mutating operations need that lock
// exclusively, pure observers need it shared. No operation suspends, and
// schedule callbacks into the backend happen with the lock held, which is
// sound only because the backend never re-enters a cell synchronously.
package cell

import (
	"fmt"
	"iter"

	"github.com/kiln-build/kiln"
)

type state uint8

const (
	empty state = iota
	trackedValueless
	recomputing
	initialValue
	updatedValue
)

// Cell is one memo slot. The zero value is an empty cell.
//
// Field usage by state:
//
//	state             content  updates  deps              event
//	empty             -        -        -                 -
//	trackedValueless  -        >= 1     yes               -
//	recomputing       -        >= 1     carried over      yes
//	initialValue      yes      == 1     yes               -
//	updatedValue      yes      >= 2     yes               -
//
// A recomputing cell only carries dependents when it was entered from the
// tracked-valueless state; a first computation has no dependents yet.
type Cell struct {
	state   state
	updates uint32
	content kiln.CellContent
	deps    TaskSet
	event   *kiln.Event
}

// Recomputing is the ticket handed to a reader that arrived while the
// value was unavailable.
type Recomputing struct {
	// Listener completes when the value becomes available or the cell is
	// torn down. It must be awaited only after releasing the owning task's
	// state lock.
	Listener kiln.EventListener

	// Schedule reports whether this reader created the recomputing state
	// and is therefore responsible for scheduling the producing task.
	Schedule bool
}

// IsAvailable reports whether the cell currently holds a value.
func (c *Cell) IsAvailable() bool {
	return c.state == initialValue || c.state == updatedValue
}

// HasDependentTasks reports whether the cell tracks any dependents. A
// recomputing cell reports none; dependents it carries over from an
// evicted value are scheduled and cleared by the write that resolves the
// recomputation, so they are not reported at any point.
func (c *Cell) HasDependentTasks() bool {
	switch c.state {
	case empty, recomputing:
		return false
	default:
		return !c.deps.IsEmpty()
	}
}

// DependentTasks iterates over the tracked dependents.
func (c *Cell) DependentTasks() iter.Seq[kiln.TaskID] {
	switch c.state {
	case empty, recomputing:
		return func(func(kiln.TaskID) bool) {}
	default:
		return c.deps.All()
	}
}

// RemoveDependentTask drops task from the dependent set, if present. Used
// when a task is torn down and must no longer be signalled.
func (c *Cell) RemoveDependentTask(task kiln.TaskID) {
	c.deps.Remove(task)
}

// recompute parks the cell in the recomputing state and returns the first
// listener on the fresh event.
func (c *Cell) recompute(updates uint32, deps TaskSet, desc, note func() string) kiln.EventListener {
	event := kiln.NewEvent(func() string {
		return desc() + " -> cell recomputing"
	})
	listener := event.Listen(note)
	*c = Cell{
		state:   recomputing,
		updates: updates,
		deps:    deps,
		event:   event,
	}
	return listener
}

// Read returns the current content and records reader as a dependent, or
// returns a recomputing ticket when no value is available. desc and note
// are evaluated lazily for the waiter event's diagnostics.
//
// Exactly one of the results is meaningful: the ticket is nil on a hit,
// and the content is empty when a ticket is returned.
func (c *Cell) Read(reader kiln.TaskID, desc, note func() string) (kiln.CellContent, *Recomputing) {
	switch c.state {
	case empty:
		listener := c.recompute(1, TaskSet{}, desc, note)
		return kiln.CellContent{}, &Recomputing{Listener: listener, Schedule: true}
	case recomputing:
		return kiln.CellContent{}, &Recomputing{Listener: c.event.Listen(note)}
	case trackedValueless:
		deps := c.deps.Take()
		listener := c.recompute(c.updates, deps, desc, note)
		return kiln.CellContent{}, &Recomputing{Listener: listener, Schedule: true}
	case initialValue, updatedValue:
		c.deps.Insert(reader)
		return c.content, nil
	}
	panic(fmt.Sprintf("cell: invalid state %d", c.state))
}

// ReadUntracked is Read without recording a dependency on a hit.
//
// INVALIDATION: be careful with this. The reader will not be rescheduled
// when the value changes, so using it can break cache invalidation.
func (c *Cell) ReadUntracked(desc, note func() string) (kiln.CellContent, *Recomputing) {
	switch c.state {
	case empty:
		listener := c.recompute(1, TaskSet{}, desc, note)
		return kiln.CellContent{}, &Recomputing{Listener: listener, Schedule: true}
	case recomputing:
		return kiln.CellContent{}, &Recomputing{Listener: c.event.Listen(note)}
	case trackedValueless:
		deps := c.deps.Take()
		listener := c.recompute(c.updates, deps, desc, note)
		return kiln.CellContent{}, &Recomputing{Listener: listener, Schedule: true}
	case initialValue, updatedValue:
		return c.content, nil
	}
	panic(fmt.Sprintf("cell: invalid state %d", c.state))
}

// ReadOwnUntracked returns a snapshot of the content, or an empty content
// when none is present. It never transitions state and never records a
// dependency; it exists for introspection, diagnostics, and GC.
func (c *Cell) ReadOwnUntracked() kiln.CellContent {
	return c.content
}

// Assign writes a new value and coordinates everyone who cares:
//
//   - Readers parked on a recomputing event are woken after the new state
//     is in place.
//   - Dependents recorded against an older value are handed to
//     api.ScheduleNotifyTasks, but only when the observable content
//     actually changes. Writing a value equal to the stored one is a
//     no-op, which keeps equal recomputations from cascading.
//   - A cell whose value was evicted has no stored content to compare
//     against, so any write there counts as a change. This holds both for
//     a direct write to a tracked-valueless cell and for the write that
//     resolves a recomputation entered from one.
func (c *Cell) Assign(content kiln.CellContent, api kiln.API) {
	switch c.state {
	case empty:
		c.state = initialValue
		c.updates = 1
		c.content = content

	case recomputing:
		event := c.event
		deps := c.deps.Take()
		if !deps.IsEmpty() {
			// Dependents carried over from an evicted value read something
			// that no longer exists; the write resolving the recomputation
			// invalidates them, since there is no old content to compare
			// the new one against.
			api.ScheduleNotifyTasks(deps.Slice())
		}
		if c.updates == 1 {
			*c = Cell{state: initialValue, updates: 1, content: content}
		} else {
			*c = Cell{state: updatedValue, updates: c.updates, content: content}
		}
		event.NotifyAll()

	case trackedValueless:
		if !c.deps.IsEmpty() {
			deps := c.deps.Take()
			api.ScheduleNotifyTasks(deps.Slice())
		}
		if c.updates == 1 {
			*c = Cell{state: initialValue, updates: 1, content: content}
		} else {
			*c = Cell{state: updatedValue, updates: c.updates, content: content}
		}

	case initialValue:
		if content.Equal(c.content) {
			return
		}
		if !c.deps.IsEmpty() {
			deps := c.deps.Take()
			api.ScheduleNotifyTasks(deps.Slice())
		}
		*c = Cell{state: updatedValue, updates: 2, content: content}

	case updatedValue:
		if content.Equal(c.content) {
			return
		}
		if !c.deps.IsEmpty() {
			deps := c.deps.Take()
			api.ScheduleNotifyTasks(deps.Slice())
		}
		c.updates++
		c.content = content

	default:
		panic(fmt.Sprintf("cell: invalid state %d", c.state))
	}
}

// ShrinkToFit releases excess capacity held by the dependent set.
func (c *Cell) ShrinkToFit() {
	c.deps.ShrinkToFit()
}

// GCContent evicts the content while preserving tracking: the dependent
// set and update counter stay behind, so a later write still invalidates
// downstream tasks.
//
// The evicted content is returned to the caller and must be released
// outside the owning task's state lock; dropping a large value is not
// free, and the lock covers every cell of the task.
func (c *Cell) GCContent() (kiln.CellContent, bool) {
	switch c.state {
	case empty, recomputing, trackedValueless:
		return kiln.CellContent{}, false
	case initialValue, updatedValue:
		content := c.content
		*c = Cell{
			state:   trackedValueless,
			updates: c.updates,
			deps:    c.deps.Take(),
		}
		return content, true
	}
	panic(fmt.Sprintf("cell: invalid state %d", c.state))
}

// GCDrop tears the cell down completely, leaving it empty. Parked readers
// are woken so none are stranded, and dependents are scheduled because
// their input is gone for good.
func (c *Cell) GCDrop(api kiln.API) {
	event := c.event
	deps := c.deps.Take()
	*c = Cell{}
	if event != nil {
		event.NotifyAll()
	}
	if !deps.IsEmpty() {
		api.ScheduleNotifyTasks(deps.Slice())
	}
}
