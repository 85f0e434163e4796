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

package memory

import (
	"context"
	"sync"

	"github.com/kiln-build/kiln"
	"github.com/kiln-build/kiln/internal/core/cell"
)

// A ComputeFunc is one task's computation. It runs on a backend worker and
// writes its results into the task's cells. It may read other tasks' cells
// and is re-run whenever one of those reads is invalidated.
type ComputeFunc func(ctx context.Context, t *Task) error

// Task is the state container enclosing the cells one task owns. A single
// lock covers all of them: cells themselves are not synchronized, and
// holding one lock per task keeps multi-cell updates atomic and cheap.
//
// None of the methods below suspend while holding the lock. A read that
// misses returns a recomputing ticket; awaiting its listener is up to the
// caller, after the method has returned.
type Task struct {
	id      kiln.TaskID
	name    string
	backend *Backend
	compute ComputeFunc

	mu    sync.RWMutex
	cells []cell.Cell
}

// ID returns the task's engine-wide identifier.
func (t *Task) ID() kiln.TaskID { return t.id }

// Name returns the task's diagnostic name.
func (t *Task) Name() string { return t.name }

// NumCells returns how many cells the task has materialized.
func (t *Task) NumCells() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cells)
}

// cellAt returns the cell for id, materializing empty cells up to and
// including it. Callers hold t.mu exclusively.
func (t *Task) cellAt(id kiln.CellID) *cell.Cell {
	for len(t.cells) <= int(id) {
		t.cells = append(t.cells, cell.Cell{})
	}
	return &t.cells[id]
}

func (t *Task) cellDesc(id kiln.CellID) func() string {
	return func() string { return t.name + " " + id.String() }
}

// ReadCell reads cell id on behalf of reader, recording reader as a
// dependent on a hit. On a miss it returns a recomputing ticket; when the
// ticket carries the scheduling responsibility, the producing task has
// already been enqueued by the time ReadCell returns.
func (t *Task) ReadCell(reader kiln.TaskID, id kiln.CellID) (kiln.CellContent, *cell.Recomputing) {
	t.mu.Lock()
	content, rec := t.cellAt(id).Read(reader, t.cellDesc(id), func() string {
		return "read by " + reader.String()
	})
	t.mu.Unlock()

	t.backend.noteRead(rec != nil)
	if rec != nil && rec.Schedule {
		t.backend.scheduleCompute(t.id)
	}
	return content, rec
}

// ReadCellUntracked is ReadCell without dependency tracking.
//
// INVALIDATION: the reader will not be re-run when the value changes.
func (t *Task) ReadCellUntracked(id kiln.CellID) (kiln.CellContent, *cell.Recomputing) {
	t.mu.Lock()
	content, rec := t.cellAt(id).ReadUntracked(t.cellDesc(id), func() string {
		return "untracked read"
	})
	t.mu.Unlock()

	t.backend.noteRead(rec != nil)
	if rec != nil && rec.Schedule {
		t.backend.scheduleCompute(t.id)
	}
	return content, rec
}

// AwaitCell reads cell id, parking on the cell's waiter event until a
// value is available or ctx is done. The wait happens with no lock held.
func (t *Task) AwaitCell(ctx context.Context, reader kiln.TaskID, id kiln.CellID) (kiln.CellContent, error) {
	for {
		content, rec := t.ReadCell(reader, id)
		if rec == nil {
			return content, nil
		}
		if err := rec.Listener.Wait(ctx); err != nil {
			return kiln.CellContent{}, err
		}
	}
}

// AssignCell writes content into cell id. Dependents of a previous,
// different value are scheduled for re-execution; parked readers are
// woken.
func (t *Task) AssignCell(id kiln.CellID, content kiln.CellContent) {
	t.mu.Lock()
	t.cellAt(id).Assign(content, t.backend)
	t.mu.Unlock()

	t.backend.noteWrite()
}

// CellSnapshot returns the current content of cell id without tracking a
// dependency or transitioning state. Empty when no value is present.
func (t *Task) CellSnapshot(id kiln.CellID) kiln.CellContent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.cells) {
		return kiln.CellContent{}
	}
	return t.cells[id].ReadOwnUntracked()
}

// CellAvailable reports whether cell id currently holds a value.
func (t *Task) CellAvailable(id kiln.CellID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(id) < len(t.cells) && t.cells[id].IsAvailable()
}

// DependentTasks returns the dependents tracked by cell id.
func (t *Task) DependentTasks(id kiln.CellID) []kiln.TaskID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.cells) {
		return nil
	}
	var out []kiln.TaskID
	for dep := range t.cells[id].DependentTasks() {
		out = append(out, dep)
	}
	return out
}

// RemoveDependent removes reader from every cell's dependent set. Called
// when reader is torn down and must no longer be signalled.
func (t *Task) RemoveDependent(reader kiln.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.cells {
		t.cells[i].RemoveDependentTask(reader)
	}
}

// ShrinkCells releases excess capacity in every cell's dependent set.
func (t *Task) ShrinkCells() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.cells {
		t.cells[i].ShrinkToFit()
	}
}

// EvictCells evicts the contents of all the task's cells, keeping the
// tracking alive so later writes still invalidate dependents. It returns
// the number of contents evicted.
//
// Contents are released after the task lock is dropped; releasing a large
// value is not free, and the lock covers every cell of the task.
func (t *Task) EvictCells() int {
	var evicted []kiln.CellContent
	t.mu.Lock()
	for i := range t.cells {
		if content, ok := t.cells[i].GCContent(); ok {
			evicted = append(evicted, content)
		}
	}
	t.mu.Unlock()

	for _, content := range evicted {
		release(content)
	}
	t.backend.noteEvictions(len(evicted))
	return len(evicted)
}

// drop tears down every cell: waiters are woken and dependents scheduled
// through api.
func (t *Task) drop(api kiln.API) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.cells)
	for i := range t.cells {
		t.cells[i].GCDrop(api)
	}
	t.cells = nil
	return n
}

// release gives contents that manage resources a chance to free them.
func release(c kiln.CellContent) {
	if r, ok := c.Value.(interface{ Release() }); ok {
		r.Release()
	}
}
