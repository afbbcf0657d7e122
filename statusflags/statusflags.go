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

// Package statusflags decodes a packet header's status_flags bitfield
// into named booleans (§4.7) and publishes transition events when those
// booleans change from one packet to the next.
package statusflags

import (
	"sync"

	"github.com/b2atech/r2000link/internal/pubsub"
)

const (
	bitInitializing           = 0
	bitOutputMuted            = 3
	bitHeadRotationUnstable   = 4
	bitWarningActive          = 9
	bitLensWarning            = 10
	bitLowTemperatureWarning  = 11
	bitHighTemperatureWarning = 12
	bitOverloadWarning        = 13
	bitErrorActive            = 17
	bitLensError              = 18
	bitLowTemperatureError    = 19
	bitHighTemperatureError   = 20
	bitOverloadError          = 21
	bitUnrecoverableDefect    = 31
)

// Flags is the fixed set of named bits exposed from status_flags.
type Flags struct {
	Initializing          bool
	OutputMuted           bool
	HeadRotationUnstable  bool
	WarningActive         bool
	LensContaminationWarn bool
	LensContaminationErr  bool
	LowTemperatureWarn    bool
	LowTemperatureErr     bool
	HighTemperatureWarn   bool
	HighTemperatureErr    bool
	OverloadWarn          bool
	OverloadErr           bool
	ErrorActive           bool
	UnrecoverableDefect   bool
}

func bit(v uint32, n uint) bool {
	return v&(1<<n) != 0
}

// Decode interprets the raw status_flags bitfield.
func Decode(raw uint32) Flags {
	return Flags{
		Initializing:          bit(raw, bitInitializing),
		OutputMuted:           bit(raw, bitOutputMuted),
		HeadRotationUnstable:  bit(raw, bitHeadRotationUnstable),
		WarningActive:         bit(raw, bitWarningActive),
		LensContaminationWarn: bit(raw, bitLensWarning),
		LensContaminationErr:  bit(raw, bitLensError),
		LowTemperatureWarn:    bit(raw, bitLowTemperatureWarning),
		LowTemperatureErr:     bit(raw, bitLowTemperatureError),
		HighTemperatureWarn:   bit(raw, bitHighTemperatureWarning),
		HighTemperatureErr:    bit(raw, bitHighTemperatureError),
		OverloadWarn:          bit(raw, bitOverloadWarning),
		OverloadErr:           bit(raw, bitOverloadError),
		ErrorActive:           bit(raw, bitErrorActive),
		UnrecoverableDefect:   bit(raw, bitUnrecoverableDefect),
	}
}

// namedBit pairs a flag's reporting name with its accessor, so diffing
// two Flags values can be driven by a table instead of 14 near-identical
// if-statements.
type namedBit struct {
	name string
	get  func(Flags) bool
}

var namedBits = []namedBit{
	{"initializing", func(f Flags) bool { return f.Initializing }},
	{"output_muted", func(f Flags) bool { return f.OutputMuted }},
	{"head_rotation_unstable", func(f Flags) bool { return f.HeadRotationUnstable }},
	{"warning_active", func(f Flags) bool { return f.WarningActive }},
	{"lens_contamination_warning", func(f Flags) bool { return f.LensContaminationWarn }},
	{"lens_contamination_error", func(f Flags) bool { return f.LensContaminationErr }},
	{"low_temperature_warning", func(f Flags) bool { return f.LowTemperatureWarn }},
	{"low_temperature_error", func(f Flags) bool { return f.LowTemperatureErr }},
	{"high_temperature_warning", func(f Flags) bool { return f.HighTemperatureWarn }},
	{"high_temperature_error", func(f Flags) bool { return f.HighTemperatureErr }},
	{"overload_warning", func(f Flags) bool { return f.OverloadWarn }},
	{"overload_error", func(f Flags) bool { return f.OverloadErr }},
	{"error_active", func(f Flags) bool { return f.ErrorActive }},
	{"unrecoverable_defect", func(f Flags) bool { return f.UnrecoverableDefect }},
}

// Transition reports one named flag flipping between consecutive
// packets' status_flags.
type Transition struct {
	Name     string
	Set      bool
	Flags    Flags
	Previous Flags
}

// diff returns one Transition per bit that differs between prev and next.
func diff(prev, next Flags) []Transition {
	var out []Transition
	for _, nb := range namedBits {
		if before, after := nb.get(prev), nb.get(next); before != after {
			out = append(out, Transition{Name: nb.name, Set: after, Flags: next, Previous: prev})
		}
	}
	return out
}

// Tracker decodes successive status_flags values and publishes a
// Transition on bus for every named bit that flips from one packet to
// the next. It supplements the wire protocol, which carries only the
// current flags and leaves noticing a change to the consumer.
type Tracker struct {
	bus *pubsub.PubSub

	mu   sync.Mutex
	last Flags
	seen bool
}

// NewTracker returns a Tracker that fans transitions out through bus.
func NewTracker(bus *pubsub.PubSub) *Tracker {
	return &Tracker{bus: bus}
}

// Observe decodes raw and publishes a Transition for every named bit
// that differs from the previously observed value. The first call after
// construction only seeds the baseline; it never publishes, since there
// is no prior packet to compare against.
func (t *Tracker) Observe(raw uint32) Flags {
	next := Decode(raw)

	t.mu.Lock()
	prev, seen := t.last, t.seen
	t.last, t.seen = next, true
	t.mu.Unlock()

	if !seen {
		return next
	}

	for _, tr := range diff(prev, next) {
		t.bus.Publish(tr)
	}
	return next
}
