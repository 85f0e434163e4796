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

package cell

import (
	"slices"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/kiln-build/kiln"
)

func sorted(ids []kiln.TaskID) []kiln.TaskID {
	slices.Sort(ids)
	return ids
}

func TestTaskSetZeroValue(t *testing.T) {
	var s TaskSet
	qt.Assert(t, qt.IsTrue(s.IsEmpty()))
	qt.Assert(t, qt.Equals(s.Len(), 0))
	qt.Assert(t, qt.IsFalse(s.Contains(taskA)))
	qt.Assert(t, qt.HasLen(s.Slice(), 0))

	// Removing from an empty set is fine.
	s.Remove(taskA)
	qt.Assert(t, qt.IsTrue(s.IsEmpty()))
}

func TestTaskSetSingleInline(t *testing.T) {
	var s TaskSet
	s.Insert(taskA)
	s.Insert(taskA)
	qt.Assert(t, qt.Equals(s.Len(), 1))
	qt.Assert(t, qt.IsTrue(s.Contains(taskA)))
	qt.Assert(t, qt.IsNil(s.spill))

	s.Remove(taskB)
	qt.Assert(t, qt.Equals(s.Len(), 1))
	s.Remove(taskA)
	qt.Assert(t, qt.IsTrue(s.IsEmpty()))
}

func TestTaskSetSpill(t *testing.T) {
	var s TaskSet
	s.Insert(taskA)
	s.Insert(taskB)
	s.Insert(taskC)
	qt.Assert(t, qt.Equals(s.Len(), 3))
	qt.Assert(t, qt.IsNotNil(s.spill))
	qt.Assert(t, qt.DeepEquals(sorted(s.Slice()), []kiln.TaskID{taskA, taskB, taskC}))

	s.Remove(taskB)
	qt.Assert(t, qt.Equals(s.Len(), 2))
	qt.Assert(t, qt.IsFalse(s.Contains(taskB)))
}

func TestTaskSetAll(t *testing.T) {
	var s TaskSet
	qt.Assert(t, qt.HasLen(slices.Collect(s.All()), 0))

	s.Insert(taskA)
	qt.Assert(t, qt.DeepEquals(slices.Collect(s.All()), []kiln.TaskID{taskA}))

	s.Insert(taskB)
	qt.Assert(t, qt.DeepEquals(sorted(slices.Collect(s.All())), []kiln.TaskID{taskA, taskB}))
}

func TestTaskSetTake(t *testing.T) {
	var s TaskSet
	s.Insert(taskA)
	s.Insert(taskB)

	out := s.Take()
	qt.Assert(t, qt.IsTrue(s.IsEmpty()))
	qt.Assert(t, qt.Equals(out.Len(), 2))

	// The emptied set is reusable.
	s.Insert(taskC)
	qt.Assert(t, qt.DeepEquals(s.Slice(), []kiln.TaskID{taskC}))
}

func TestTaskSetShrinkToFit(t *testing.T) {
	var s TaskSet
	s.Insert(taskA)
	s.Insert(taskB)
	s.Insert(taskC)
	s.Remove(taskA)
	s.Remove(taskB)

	s.ShrinkToFit()
	qt.Assert(t, qt.IsNil(s.spill))
	qt.Assert(t, qt.IsTrue(s.Contains(taskC)))
	qt.Assert(t, qt.Equals(s.Len(), 1))

	s.Remove(taskC)
	s.ShrinkToFit()
	qt.Assert(t, qt.IsTrue(s.IsEmpty()))

	// Shrinking a set that is still spilled keeps its members.
	s.Insert(taskA)
	s.Insert(taskB)
	s.ShrinkToFit()
	qt.Assert(t, qt.DeepEquals(sorted(s.Slice()), []kiln.TaskID{taskA, taskB}))
}
