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

import "strconv"

// TaskID identifies a task instance within a single engine. IDs are dense
// handles assigned by the backend; 0 is never a valid task.
type TaskID uint32

func (id TaskID) String() string {
	return "task " + strconv.FormatUint(uint64(id), 10)
}

// CellID is the index of a cell within its owning task. The index is
// chosen by the code that reads and writes the cell, and a cell keeps its
// index across re-executions.
type CellID uint32

func (id CellID) String() string {
	return "cell " + strconv.FormatUint(uint64(id), 10)
}
