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

package exchange

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2atech/r2000link/scanfactory"
)

func TestLatestBeforePublishIsAbsent(t *testing.T) {
	e := New()
	_, ok := e.Latest()
	assert.False(t, ok)
}

func TestPublishThenLatest(t *testing.T) {
	e := New()
	e.Publish(scanfactory.Scan{Distances: []float64{1, 2, 3}})

	s, ok := e.Latest()
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, s.Distances)
}

func TestCounterStrictlyIncreasesAcrossPublishes(t *testing.T) {
	e := New()
	e.Publish(scanfactory.Scan{Distances: []float64{1}})
	c1 := e.Count()
	e.Publish(scanfactory.Scan{Distances: []float64{2}})
	c2 := e.Count()

	assert.Greater(t, c2, c1)
}

func TestWaitForNextUnblocksOnPublish(t *testing.T) {
	e := New()
	done := make(chan scanfactory.Scan, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s, ok := e.WaitForNext(time.Second)
		if ok {
			done <- s
		}
	}()

	time.Sleep(20 * time.Millisecond)
	e.Publish(scanfactory.Scan{Distances: []float64{7, 8, 9}})
	wg.Wait()

	select {
	case s := <-done:
		assert.Equal(t, []float64{7, 8, 9}, s.Distances)
	default:
		t.Fatal("expected a scan to have been delivered")
	}
}

func TestWaitForNextHonoursTimeout(t *testing.T) {
	e := New()
	start := time.Now()
	_, ok := e.WaitForNext(30 * time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestWaitForNextUnblocksOnClose(t *testing.T) {
	e := New()
	done := make(chan struct{})
	go func() {
		_, ok := e.WaitForNext(time.Minute)
		assert.False(t, ok)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	e.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForNext did not unblock on Close")
	}
}
