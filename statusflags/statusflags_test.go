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

package statusflags

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2atech/r2000link/internal/pubsub"
)

func TestDecodeIndividualBits(t *testing.T) {
	f := Decode(1 << bitLensWarning)
	assert.True(t, f.LensContaminationWarn)
	assert.False(t, f.LensContaminationErr)
	assert.False(t, f.Initializing)

	f = Decode(1<<bitErrorActive | 1<<bitUnrecoverableDefect)
	assert.True(t, f.ErrorActive)
	assert.True(t, f.UnrecoverableDefect)
	assert.False(t, f.WarningActive)
}

func TestDecodeAllZeroIsAllClear(t *testing.T) {
	f := Decode(0)
	assert.Equal(t, Flags{}, f)
}

func TestTrackerFirstObserveDoesNotPublish(t *testing.T) {
	bus := pubsub.New()
	q := bus.Subscribe(4)
	defer bus.Unsubscribe(q)

	tr := NewTracker(bus)
	tr.Observe(1 << bitWarningActive)

	_, ok := q.PopTimeout(20 * time.Millisecond)
	assert.False(t, ok, "no prior packet to compare against, so nothing should publish")
}

func TestTrackerPublishesOnFlip(t *testing.T) {
	bus := pubsub.New()
	q := bus.Subscribe(4)
	defer bus.Unsubscribe(q)

	tr := NewTracker(bus)
	tr.Observe(0)
	tr.Observe(1 << bitLensWarning)

	msg, ok := q.PopTimeout(time.Second)
	require.True(t, ok)
	transition, ok := msg.(Transition)
	require.True(t, ok)
	assert.Equal(t, "lens_contamination_warning", transition.Name)
	assert.True(t, transition.Set)
}

func TestTrackerPublishesClearedTransition(t *testing.T) {
	bus := pubsub.New()
	q := bus.Subscribe(4)
	defer bus.Unsubscribe(q)

	tr := NewTracker(bus)
	tr.Observe(1 << bitLensWarning)
	tr.Observe(0)

	msg, ok := q.PopTimeout(time.Second)
	require.True(t, ok)
	transition := msg.(Transition)
	assert.Equal(t, "lens_contamination_warning", transition.Name)
	assert.False(t, transition.Set)
}

func TestTrackerPublishesOneTransitionPerChangedBit(t *testing.T) {
	bus := pubsub.New()
	q := bus.Subscribe(4)
	defer bus.Unsubscribe(q)

	tr := NewTracker(bus)
	tr.Observe(0)
	tr.Observe(1<<bitLensWarning | 1<<bitHighTemperatureWarning)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg, ok := q.PopTimeout(time.Second)
		require.True(t, ok)
		transition := msg.(Transition)
		seen[transition.Name] = true
	}
	assert.True(t, seen["lens_contamination_warning"])
	assert.True(t, seen["high_temperature_warning"])

	_, ok := q.PopTimeout(20 * time.Millisecond)
	assert.False(t, ok, "unchanged bits must not produce a transition")
}

func TestTrackerSteadyStateEmitsNothing(t *testing.T) {
	bus := pubsub.New()
	q := bus.Subscribe(4)
	defer bus.Unsubscribe(q)

	tr := NewTracker(bus)
	tr.Observe(1 << bitWarningActive)
	tr.Observe(1 << bitWarningActive)
	tr.Observe(1 << bitWarningActive)

	_, ok := q.PopTimeout(20 * time.Millisecond)
	assert.False(t, ok)
}
