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

import (
	"context"
	"sync"
)

// Event is a one-shot broadcast notification. Readers that arrive at a cell
// whose value is being recomputed park on an Event; the write that resolves
// the recomputation notifies all of them at once.
//
// An Event carries a lazily evaluated description, and each listener a
// lazily evaluated note. Both exist purely for diagnostics, such as dumping
// what the engine is blocked on.
//
// Listeners may be attached before or after NotifyAll; a listener attached
// after notification completes immediately. There is no ordering among
// woken listeners.
type Event struct {
	desc func() string

	mu       sync.Mutex
	done     chan struct{}
	notified bool
}

// NewEvent returns an unsignalled event. desc is evaluated only when the
// description is requested.
func NewEvent(desc func() string) *Event {
	return &Event{
		desc: desc,
		done: make(chan struct{}),
	}
}

// Listen attaches a listener to e. note is evaluated only when the
// listener's note is requested. Dropping the returned listener without
// waiting on it has no effect on e or on other listeners.
func (e *Event) Listen(note func() string) EventListener {
	return EventListener{event: e, note: note}
}

// NotifyAll releases every listener, current and future. It is idempotent.
func (e *Event) NotifyAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.notified {
		return
	}
	e.notified = true
	close(e.done)
}

// Description returns the event's diagnostic description.
func (e *Event) Description() string {
	if e.desc == nil {
		return "event"
	}
	return e.desc()
}

// An EventListener completes once its event has been notified. The zero
// value is invalid; obtain listeners through Event.Listen.
type EventListener struct {
	event *Event
	note  func() string
}

// Done returns a channel that is closed once the event has been notified.
func (l EventListener) Done() <-chan struct{} {
	return l.event.done
}

// Wait blocks until the event is notified or ctx is done. It returns
// ctx.Err if the context wins.
func (l EventListener) Wait(ctx context.Context) error {
	select {
	case <-l.event.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Note returns the listener's diagnostic note.
func (l EventListener) Note() string {
	if l.note == nil {
		return ""
	}
	return l.note()
}
