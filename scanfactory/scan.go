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

// Package scanfactory assembles decoded packets into complete scans,
// detecting scan boundaries and, for the datagram transport, tolerating
// out-of-order delivery.
package scanfactory

import (
	"time"

	"github.com/b2atech/r2000link/decode"
)

// Scan is the published unit: one full rotation's worth of points plus
// every packet header that composed it and the host-monotonic time the
// scan was completed at.
type Scan struct {
	Distances   []float64
	Amplitudes  []float64
	Headers     []decode.Header
	CompletedAt time.Time
}

// Factory incorporates decoded packets into a Scan, tracking when the
// scan is complete and ready to be taken. Both concrete variants share
// this contract; the receive loop is generic over it.
type Factory interface {
	// AddPacket incorporates one decoded packet, applying the boundary
	// policy (§4.2) before appending.
	AddPacket(h decode.Header, distances, amplitudes []float64)

	// IsEmpty reports whether the factory holds no packets.
	IsEmpty() bool

	// IsComplete reports whether enough points have been accumulated to
	// satisfy the scan's num_points_scan (taken from the first header by
	// StreamFactory and from the most recently accepted header by
	// DatagramFactory).
	IsComplete() bool

	// Take yields the assembled Scan and clears internal state.
	Take() Scan

	// IsDifferentScan reports whether h belongs to a different scan than
	// the one currently being assembled.
	IsDifferentScan(h decode.Header) bool

	// IsNewScan reports whether h is the first packet of a new scan,
	// independent of scan_number (packet_number == 1, §9). Only the
	// stream factory uses this for its reset boundary; the datagram
	// factory cannot, since out-of-order delivery means packet 1 often
	// arrives after other packets of the same scan are already
	// buffered (see DatagramFactory.AddPacket).
	IsNewScan(h decode.Header) bool
}

// isNewScan is shared by both variants' IsNewScan accessor, but only
// StreamFactory uses it to decide a reset: ordered delivery guarantees
// packet_number == 1 only occurs when a new scan has genuinely begun.
// scan_number == 1 (what the original's concrete TCP/UDP factories
// both actually test) only catches a rollover to exactly 1 and misses
// every other scan boundary.
func isNewScan(h decode.Header) bool {
	return h.PacketNumber == 1
}
