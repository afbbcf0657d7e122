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

// Package watchdog implements the single periodic worker (C4) that
// keeps a device handle alive by issuing "feed watchdog" commands and
// records the outcome as a liveness signal the rest of the DataLink can
// observe without blocking.
package watchdog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/b2atech/r2000link/common"
	"github.com/b2atech/r2000link/control"
	"github.com/b2atech/r2000link/internal/fasttime"
	"github.com/b2atech/r2000link/internal/rescue"
	"github.com/b2atech/r2000link/logger"
)

// failureThreshold is how many consecutive feed failures are tolerated
// before is_connected flips to false (spec §8 scenario 6).
const failureThreshold = 3

var feedFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: common.App,
		Name:      "watchdog_feed_failures_total",
		Help:      "feed watchdog commands that returned an error",
	},
)

var lastFeedUnixSeconds = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: common.App,
		Name:      "watchdog_last_successful_feed_unix_seconds",
		Help:      "unix time of the last successful feed watchdog command",
	},
)

// Watchdog periodically feeds a device handle's watchdog timer on its
// own dedicated goroutine. It never touches receive or factory state;
// it only signals liveness (§4.4).
type Watchdog struct {
	client control.Client
	handle control.Handle
	period time.Duration

	connected atomic.Bool
	failures  atomic.Int32

	stop chan struct{}
	done chan struct{}
}

// New returns a Watchdog that will feed handle's watchdog every period
// once Run is called. connected starts optimistic (true) until the
// first tick proves otherwise.
func New(client control.Client, handle control.Handle, period time.Duration) *Watchdog {
	w := &Watchdog{
		client: client,
		handle: handle,
		period: period,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	w.connected.Store(true)
	return w
}

// Run executes the watchdog loop until Stop is called or ctx is
// cancelled. It is meant to run on its own goroutine for the lifetime
// of a DataLink.
func (w *Watchdog) Run(ctx context.Context) {
	defer rescue.HandleCrash()
	defer close(w.done)

	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, w.period)
	defer cancel()

	if err := w.client.FeedWatchdog(reqCtx, w.handle); err != nil {
		feedFailuresTotal.Inc()
		logger.Warnf("watchdog: feed watchdog failed for handle %s: %v", w.handle.ID, err)
		if w.failures.Add(1) >= failureThreshold {
			w.connected.Store(false)
		}
		return
	}

	w.failures.Store(0)
	w.connected.Store(true)
	lastFeedUnixSeconds.Set(float64(fasttime.UnixTimestamp()))
}

// IsConnected reports the last-recorded liveness outcome. Safe to call
// from any goroutine; never blocks.
func (w *Watchdog) IsConnected() bool {
	return w.connected.Load()
}

// Stop signals the loop to exit and blocks until it has, so that Run's
// goroutine is guaranteed to have returned when Stop returns.
func (w *Watchdog) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}
