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

// Package transport owns the socket and the receive loop for the two
// supported lower-layer delivery modes (C3): an ordered, byte-framed
// stream and an unordered, message-framed datagram channel. Both feed
// the same decode+scanfactory pipeline and publish completed scans
// through the same exchange.
package transport

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/b2atech/r2000link/common"
	"github.com/b2atech/r2000link/internal/pubsub"
)

func newError(format string, args ...any) error {
	return errors.Errorf("transport: "+format, args...)
}

// ErrNetworkDisconnect is surfaced when a socket read fails outright
// (§7 "network-disconnect").
var ErrNetworkDisconnect = errors.New("transport: network disconnect")

// Receiver is the common capability both transport variants expose:
// connect (done at construction, see NewStream and NewDatagram), run the receive loop,
// stop it, and report liveness. The receive loop owning goroutine calls
// Run; any goroutine may call Stop or IsAlive.
type Receiver interface {
	// Run blocks, decoding packets and publishing completed scans until
	// the socket fails or Stop is called. It returns the terminal read
	// error wrapped in ErrNetworkDisconnect; a return caused by Stop
	// closing the socket is reported the same way.
	Run() error

	// Stop closes the underlying socket, unblocking a pending Run.
	Stop() error

	// IsAlive reports whether the last socket operation succeeded.
	IsAlive() bool

	// StatusTransitions returns the bus status-flag transitions
	// (SUPPLEMENTS §1) are published on, one statusflags.Transition per
	// named bit that flips between consecutive packet headers.
	StatusTransitions() *pubsub.PubSub
}

var (
	scansPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "scans_published_total",
			Help:      "scans published through the exchange, by transport",
		},
		[]string{"transport"},
	)
	badMagicDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "bad_magic_dropped_bytes_total",
			Help:      "bytes dropped while searching for the next packet magic, by transport",
		},
		[]string{"transport"},
	)
	badPacketTypeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "bad_packet_type_total",
			Help:      "packets dropped for carrying an unrecognised packet_type, by transport",
		},
		[]string{"transport"},
	)
	recvBufferBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "recv_buffer_bytes",
			Help:      "current receive buffer capacity, stream transport only",
		},
		[]string{"transport"},
	)
)
