// Copyright 2025 The r2000link Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exchange implements the single-writer/many-reader handoff of
// the most recently completed scan (§4.5). Publish is wait-free; Latest
// is a wait-free read; WaitForNext blocks a reader until a new scan
// arrives, the deadline elapses, or the exchange is closed.
package exchange

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/b2atech/r2000link/scanfactory"
)

// Exchange hands the latest scan from one producer (the transport's
// receive loop) to any number of reader goroutines.
type Exchange struct {
	cell    atomic.Pointer[scanfactory.Scan]
	counter atomic.Uint64

	mu     sync.Mutex
	cond   *sync.Cond
	closed atomic.Bool
}

// New returns an empty Exchange with nothing published yet.
func New() *Exchange {
	e := &Exchange{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Publish stores scan as the latest and wakes every blocked reader.
// Producer-only; must not be called concurrently from more than one
// goroutine. The counter is incremented before readers can observe it,
// giving release semantics to the publish; Latest/WaitForNext read it
// with acquire semantics via the same atomic.
func (e *Exchange) Publish(scan scanfactory.Scan) {
	e.cell.Store(&scan)
	e.counter.Add(1)

	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Latest returns the most recently published scan without blocking. ok
// is false if Publish has never been called.
func (e *Exchange) Latest() (scanfactory.Scan, bool) {
	p := e.cell.Load()
	if p == nil {
		return scanfactory.Scan{}, false
	}
	return *p, true
}

// WaitForNext blocks until a scan newer than the one current when the
// call is made is published, timeout elapses, or the exchange is closed.
// A zero or negative timeout blocks with no deadline. ok is false on
// timeout or close; true with the new scan otherwise.
func (e *Exchange) WaitForNext(timeout time.Duration) (scanfactory.Scan, bool) {
	baseline := e.counter.Load()

	if timeout <= 0 {
		return e.waitUntil(baseline, nil)
	}

	deadline := time.Now().Add(timeout)
	return e.waitUntil(baseline, &deadline)
}

func (e *Exchange) waitUntil(baseline uint64, deadline *time.Time) (scanfactory.Scan, bool) {
	// A bounded sleeper goroutine is used instead of a context-carrying
	// cond.Wait because sync.Cond has no cancellable wait primitive; the
	// goroutine just nudges the broadcast once the deadline passes.
	var timer *time.Timer
	if deadline != nil {
		d := time.Until(*deadline)
		if d < 0 {
			d = 0
		}
		timer = time.AfterFunc(d, func() {
			e.mu.Lock()
			e.cond.Broadcast()
			e.mu.Unlock()
		})
		defer timer.Stop()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		if e.closed.Load() {
			return scanfactory.Scan{}, false
		}
		if e.counter.Load() != baseline {
			break
		}
		if deadline != nil && !time.Now().Before(*deadline) {
			return scanfactory.Scan{}, false
		}
		e.cond.Wait()
	}

	scan, ok := e.Latest()
	return scan, ok
}

// Close wakes every blocked reader and causes all future WaitForNext
// calls to return immediately with ok=false.
func (e *Exchange) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.mu.Lock()
	e.cond.Broadcast()
	e.mu.Unlock()
}

// Count reports the number of scans published so far.
func (e *Exchange) Count() uint64 {
	return e.counter.Load()
}
