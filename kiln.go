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

// Package kiln defines the shared vocabulary of the kiln incremental build
// engine: task and cell identifiers, cell content, the waiter event used to
// park readers during recomputation, and the capability the cell layer
// consumes from a scheduling backend.
//
// The engine memoizes the output of tasks in cells. A task, when executed,
// writes its results into cells it owns; other tasks read from those cells
// and thereby become dependents of the values they read. When a value
// changes or its cell is torn down, the dependents are rescheduled so the
// dependency graph converges again. Evicting a value keeps its dependents
// tracked; the next write to the cell reschedules them. The in-memory realization of this model lives in
// the memory package; the per-slot state machine lives in
// internal/core/cell.
package kiln
