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

package kiln

// API is the capability the cell layer consumes from a scheduling backend.
//
// ScheduleNotifyTasks arranges for each listed task to be re-enqueued for
// execution. Scheduling is asynchronous and idempotent per task: the call
// must not run any task inline and must not block.
//
// Cells call ScheduleNotifyTasks while the owning task's state lock is
// held. Implementations must therefore never re-enter a cell synchronously
// from this method. Calls racing with or following backend teardown are
// dropped, not faulted.
type API interface {
	ScheduleNotifyTasks(tasks []TaskID)
}
