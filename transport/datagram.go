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

package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/b2atech/r2000link/common"
	"github.com/b2atech/r2000link/decode"
	"github.com/b2atech/r2000link/exchange"
	"github.com/b2atech/r2000link/internal/pubsub"
	"github.com/b2atech/r2000link/internal/rescue"
	"github.com/b2atech/r2000link/logger"
	"github.com/b2atech/r2000link/scanfactory"
	"github.com/b2atech/r2000link/statusflags"
)

const datagramLabel = "datagram"

// DatagramReceiver is the datagram (UDP-like) transport variant
// (§4.3.2). Each datagram carries exactly one scan packet; no
// extraction buffer is needed, and reordering within a scan is handled
// entirely by the DatagramFactory.
type DatagramReceiver struct {
	conn        net.PacketConn
	factory     *scanfactory.DatagramFactory
	exchange    *exchange.Exchange
	statusBus   *pubsub.PubSub
	statusTrack *statusflags.Tracker

	alive     atomic.Bool
	closeOnce sync.Once
}

// NewDatagram constructs a DatagramReceiver over an already-bound conn.
// As with NewStream, the caller is responsible for having issued "start
// stream" for the handle (§4.3.3 step 1) before calling Run.
func NewDatagram(conn net.PacketConn, ex *exchange.Exchange) *DatagramReceiver {
	bus := pubsub.New()
	r := &DatagramReceiver{
		conn:        conn,
		factory:     scanfactory.NewDatagram(),
		exchange:    ex,
		statusBus:   bus,
		statusTrack: statusflags.NewTracker(bus),
	}
	r.alive.Store(true)
	return r
}

// StatusTransitions returns the bus status-flag transitions (SUPPLEMENTS
// §1) are published on.
func (r *DatagramReceiver) StatusTransitions() *pubsub.PubSub {
	return r.statusBus
}

func (r *DatagramReceiver) Run() error {
	defer rescue.HandleCrash()

	buf := make([]byte, common.DatagramSize)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			r.alive.Store(false)
			return errors.Wrapf(ErrNetworkDisconnect, "datagram read: %v", err)
		}
		r.handleDatagram(buf[:n])
	}
}

func (r *DatagramReceiver) handleDatagram(data []byte) {
	start, header, ok := decode.ParseHeader(data)
	if !ok {
		badMagicDroppedTotal.WithLabelValues(datagramLabel).Add(float64(len(data)))
		logger.Warnf("transport/datagram: discarding %d-byte datagram with no usable header", len(data))
		return
	}
	packet := data[start:]

	payloadOffset := header.PayloadOffset()
	payloadSize := header.PayloadSize()
	if payloadOffset+payloadSize > len(packet) {
		// short UDP datagram relative to packet_size: discard, no
		// reassembly is possible across datagrams (§7 short-read, datagram case)
		logger.Warnf("transport/datagram: discarding truncated datagram (scan=%d packet=%d)", header.ScanNumber, header.PacketNumber)
		return
	}
	payload := packet[payloadOffset : payloadOffset+payloadSize]

	r.statusTrack.Observe(header.StatusFlags)

	if !header.PacketType.Valid() {
		badPacketTypeTotal.WithLabelValues(datagramLabel).Inc()
		logger.Warnf("transport/datagram: dropping packet with unrecognised packet_type 0x%04x", uint16(header.PacketType))
		return
	}

	distances, amplitudes, _, err := decode.Payload(header.PacketType, payload, int(header.NumPointsPacket))
	if err != nil {
		badPacketTypeTotal.WithLabelValues(datagramLabel).Inc()
		logger.Warnf("transport/datagram: %v", err)
		return
	}

	r.factory.AddPacket(header, distances, amplitudes)
	if r.factory.IsComplete() {
		scan := r.factory.Take()
		scan.CompletedAt = time.Now()
		r.exchange.Publish(scan)
		scansPublishedTotal.WithLabelValues(datagramLabel).Inc()
	}
}

func (r *DatagramReceiver) Stop() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
		r.alive.Store(false)
	})
	return err
}

func (r *DatagramReceiver) IsAlive() bool {
	return r.alive.Load()
}
