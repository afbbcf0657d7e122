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

package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2atech/r2000link/control"
)

type fakeClient struct {
	control.Client
	feedErr atomic.Pointer[error]
	feeds   atomic.Int32
}

func (f *fakeClient) FeedWatchdog(_ context.Context, _ control.Handle) error {
	f.feeds.Add(1)
	if p := f.feedErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (f *fakeClient) setErr(err error) {
	if err == nil {
		f.feedErr.Store(nil)
		return
	}
	f.feedErr.Store(&err)
}

func TestWatchdogStaysConnectedOnSuccess(t *testing.T) {
	client := &fakeClient{}
	w := New(client, control.Handle{ID: "h1"}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	assert.True(t, w.IsConnected())
	cancel()
	w.Stop()
}

func TestWatchdogFlipsAfterConsecutiveFailures(t *testing.T) {
	client := &fakeClient{}
	client.setErr(assertableErr{})
	w := New(client, control.Handle{ID: "h1"}, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		return !w.IsConnected()
	}, time.Second, 5*time.Millisecond)

	w.Stop()
}

type assertableErr struct{}

func (assertableErr) Error() string { return "feed failed" }
