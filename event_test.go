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
	"testing"
	"time"

	"github.com/go-quicktest/qt"
)

func TestEventNotifyReleasesAllListeners(t *testing.T) {
	e := NewEvent(func() string { return "cell 0 of task 1" })

	l1 := e.Listen(func() string { return "reader a" })
	l2 := e.Listen(func() string { return "reader b" })

	select {
	case <-l1.Done():
		t.Fatal("listener completed before notification")
	default:
	}

	e.NotifyAll()

	for _, l := range []EventListener{l1, l2} {
		select {
		case <-l.Done():
		default:
			t.Fatal("listener not released by NotifyAll")
		}
	}

	// Listeners attached after notification complete immediately.
	l3 := e.Listen(nil)
	select {
	case <-l3.Done():
	default:
		t.Fatal("late listener not released")
	}
}

func TestEventNotifyIdempotent(t *testing.T) {
	e := NewEvent(nil)
	e.NotifyAll()
	e.NotifyAll()

	qt.Assert(t, qt.IsNil(e.Listen(nil).Wait(context.Background())))
}

func TestEventWaitContext(t *testing.T) {
	e := NewEvent(nil)
	l := e.Listen(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	qt.Assert(t, qt.ErrorIs(l.Wait(ctx), context.Canceled))

	// A cancelled waiter does not affect the event or other listeners.
	l2 := e.Listen(nil)
	e.NotifyAll()
	qt.Assert(t, qt.IsNil(l2.Wait(context.Background())))
}

func TestEventDiagnostics(t *testing.T) {
	e := NewEvent(func() string { return "cell 3 of task 7 -> cell recomputing" })
	l := e.Listen(func() string { return "read by task 9" })

	qt.Assert(t, qt.Equals(e.Description(), "cell 3 of task 7 -> cell recomputing"))
	qt.Assert(t, qt.Equals(l.Note(), "read by task 9"))
	qt.Assert(t, qt.Equals(NewEvent(nil).Description(), "event"))
	qt.Assert(t, qt.Equals(e.Listen(nil).Note(), ""))
}

func TestEventConcurrentListenAndNotify(t *testing.T) {
	const listeners = 64

	e := NewEvent(nil)

	var wg sync.WaitGroup
	errs := make(chan error, listeners)
	for range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := e.Listen(nil)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			errs <- l.Wait(ctx)
		}()
	}

	// Racing NotifyAll against Listen must lose no wakeups: every listener,
	// before or after the call, completes.
	e.NotifyAll()

	wg.Wait()
	close(errs)
	for err := range errs {
		qt.Assert(t, qt.IsNil(err))
	}
}
