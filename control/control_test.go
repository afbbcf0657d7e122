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

package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2atech/r2000link/common"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := NewHTTPClient(u.Hostname(), uint16(port), time.Second)
	return client, srv.Close
}

func TestRequestStreamHandleSuccess(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cmd/request_handle_tcp", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error_code":0,"error_text":"success","handle":"abc123","port":5555}`))
	})
	defer closeFn()

	h, err := client.RequestStreamHandle(context.Background(), StreamParams{
		PacketType: common.PacketTypeC,
		Watchdog:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", h.ID)
	assert.Equal(t, uint16(5555), h.Port)
	assert.True(t, h.WatchdogEnabled)
}

func TestRequestStreamHandleBusy(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error_code":1,"error_text":"busy"}`))
	})
	defer closeFn()

	_, err := client.RequestStreamHandle(context.Background(), StreamParams{})
	assert.ErrorIs(t, err, ErrBusy)
}

func TestRequestStreamHandleFailure(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error_code":7,"error_text":"device not ready"}`))
	})
	defer closeFn()

	_, err := client.RequestStreamHandle(context.Background(), StreamParams{})
	assert.ErrorIs(t, err, ErrHandleRequestFailed)
}

func TestFeedWatchdogSuccess(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cmd/feed_watchdog", r.URL.Path)
		_, _ = w.Write([]byte(`{"error_code":0,"error_text":"success"}`))
	})
	defer closeFn()

	err := client.FeedWatchdog(context.Background(), Handle{ID: "abc123"})
	assert.NoError(t, err)
}

func TestReleaseHandleToleratesDeadConnection(t *testing.T) {
	client, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error_code":3,"error_text":"unknown handle"}`))
	})
	defer closeFn()

	err := client.ReleaseHandle(context.Background(), Handle{ID: "stale"})
	assert.Error(t, err)
}
