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
	"iter"

	"github.com/hashicorp/go-set/v3"

	"github.com/kiln-build/kiln"
)

// TaskSet is a set of task identifiers tuned for the overwhelmingly common
// case of a cell with zero or one dependent. The first member is stored
// inline; inserting a second distinct member spills into a hash set.
//
// The zero value is an empty set. TaskSet is not synchronized; access is
// serialized by the same lock that guards the owning cell.
type TaskSet struct {
	one    kiln.TaskID
	hasOne bool
	spill  *set.Set[kiln.TaskID]
}

// Insert adds id to the set.
func (s *TaskSet) Insert(id kiln.TaskID) {
	if s.spill != nil {
		s.spill.Insert(id)
		return
	}
	if !s.hasOne {
		s.one = id
		s.hasOne = true
		return
	}
	if s.one == id {
		return
	}
	s.spill = set.New[kiln.TaskID](2)
	s.spill.Insert(s.one)
	s.spill.Insert(id)
	s.hasOne = false
	s.one = 0
}

// Remove deletes id from the set if present.
func (s *TaskSet) Remove(id kiln.TaskID) {
	if s.spill != nil {
		s.spill.Remove(id)
		return
	}
	if s.hasOne && s.one == id {
		s.hasOne = false
		s.one = 0
	}
}

// Contains reports whether id is a member.
func (s *TaskSet) Contains(id kiln.TaskID) bool {
	if s.spill != nil {
		return s.spill.Contains(id)
	}
	return s.hasOne && s.one == id
}

// IsEmpty reports whether the set has no members.
func (s *TaskSet) IsEmpty() bool {
	if s.spill != nil {
		return s.spill.Empty()
	}
	return !s.hasOne
}

// Len returns the number of members.
func (s *TaskSet) Len() int {
	if s.spill != nil {
		return s.spill.Size()
	}
	if s.hasOne {
		return 1
	}
	return 0
}

// All iterates over the members in unspecified order.
func (s *TaskSet) All() iter.Seq[kiln.TaskID] {
	return func(yield func(kiln.TaskID) bool) {
		if s.spill != nil {
			for id := range s.spill.Items() {
				if !yield(id) {
					return
				}
			}
			return
		}
		if s.hasOne {
			yield(s.one)
		}
	}
}

// Slice returns the members as a fresh slice in unspecified order.
func (s *TaskSet) Slice() []kiln.TaskID {
	if s.spill != nil {
		return s.spill.Slice()
	}
	if s.hasOne {
		return []kiln.TaskID{s.one}
	}
	return nil
}

// Take moves the members out of s, leaving it empty.
func (s *TaskSet) Take() TaskSet {
	out := *s
	*s = TaskSet{}
	return out
}

// ShrinkToFit releases excess capacity. A spilled set that has shrunk back
// to at most one member collapses into the inline representation.
func (s *TaskSet) ShrinkToFit() {
	if s.spill == nil {
		return
	}
	switch n := s.spill.Size(); {
	case n == 0:
		s.spill = nil
	case n == 1:
		s.one = s.spill.Slice()[0]
		s.hasOne = true
		s.spill = nil
	default:
		compact := set.New[kiln.TaskID](n)
		compact.InsertSlice(s.spill.Slice())
		s.spill = compact
	}
}
