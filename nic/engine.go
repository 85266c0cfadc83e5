// Copyright 2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/platinasystems/log"
	"github.com/rcrowley/go-metrics"
	"github.com/satori/go.uuid"
)

// Engine is the part of a driver core shared by all chips.  The embedded
// mutex serializes ring and register access between Transmit and the
// interrupt service.
//
// Interrupt only posts an event.  The service function runs either on the
// engine's goroutine or, when polled, from Poll.  Pending events coalesce.
type Engine struct {
	sync.Mutex

	Name     string
	ID       uuid.UUID
	Counters *Counters

	polled   bool
	state    uint32
	released uint32
	events   chan struct{}

	smu     sync.Mutex
	service func()
	quit    chan struct{}
	done    chan struct{}
}

// NewEngine registers the engine's counters in r as <name>.<counter>.
func NewEngine(name string, polled bool, r metrics.Registry) *Engine {
	return &Engine{
		Name:     name,
		ID:       uuid.NewV4(),
		Counters: NewCounters(name, r),
		polled:   polled,
		events:   make(chan struct{}, 1),
	}
}

func (e *Engine) State() State { return State(atomic.LoadUint32(&e.state)) }

// SetState moves the state machine; caller holds the lock.
func (e *Engine) SetState(n State) error {
	s := e.State()
	if s == n {
		return nil
	}
	if !s.ValidNext(n) {
		return fmt.Errorf("%s: %v -> %v: invalid state transition", e.Name, s, n)
	}
	atomic.StoreUint32(&e.state, uint32(n))
	log.Printf("%s: %v", e.Name, n)
	return nil
}

// Interrupt is called from interrupt context.  It never blocks.
func (e *Engine) Interrupt() {
	if atomic.LoadUint32(&e.released) != 0 {
		return
	}
	e.Counters.Inc(Interrupts)
	select {
	case e.events <- struct{}{}:
	default:
	}
}

// Pending reports whether an interrupt is waiting for service.
func (e *Engine) Pending() bool { return len(e.events) != 0 }

// Poll services one pending interrupt.  It returns false when none was
// pending.  Must not be called with the lock held.
func (e *Engine) Poll() bool {
	e.smu.Lock()
	f := e.service
	e.smu.Unlock()
	if f == nil {
		return false
	}
	select {
	case <-e.events:
		f()
		return true
	default:
		return false
	}
}

// Start installs the service function and, unless polled, starts the
// service goroutine.
func (e *Engine) Start(service func()) {
	e.smu.Lock()
	defer e.smu.Unlock()
	e.service = service
	if e.polled || e.quit != nil {
		return
	}
	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	go e.serve(e.quit, e.done, service)
}

func (e *Engine) serve(quit, done chan struct{}, f func()) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case <-e.events:
			f()
		}
	}
}

// Stop waits for the service goroutine to exit.  Must not be called
// with the lock held.
func (e *Engine) Stop() {
	e.smu.Lock()
	quit, done := e.quit, e.done
	e.quit, e.done = nil, nil
	e.service = nil
	e.smu.Unlock()
	if quit != nil {
		close(quit)
		<-done
	}
}

// Close stops the engine for good: later interrupts are dropped.
func (e *Engine) Close() {
	atomic.StoreUint32(&e.released, 1)
	e.Stop()
	select {
	case <-e.events:
	default:
	}
}

func (e *Engine) Polled() bool { return e.polled }

func (e *Engine) String() string { return fmt.Sprintf("%s %v %v", e.Name, e.ID, e.State()) }

// WaitFor polls cond with exponential backoff until it holds or the
// timeout passes.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	b := &backoff.Backoff{
		Min:    10 * time.Microsecond,
		Max:    5 * time.Millisecond,
		Factor: 2,
	}
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(b.Duration())
	}
}
