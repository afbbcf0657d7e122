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
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/b2atech/r2000link/common"
	"github.com/b2atech/r2000link/decode"
	"github.com/b2atech/r2000link/exchange"
	"github.com/b2atech/r2000link/internal/bufbytes"
	"github.com/b2atech/r2000link/internal/pubsub"
	"github.com/b2atech/r2000link/internal/rescue"
	"github.com/b2atech/r2000link/logger"
	"github.com/b2atech/r2000link/scanfactory"
	"github.com/b2atech/r2000link/statusflags"
)

const streamLabel = "stream"

// StreamReceiver is the stream (TCP-like) transport variant (§4.3.1).
// It owns conn exclusively, reads into a resizable receive buffer,
// accumulates leftover bytes in a growable extraction buffer, and feeds
// a StreamFactory that assumes in-order delivery.
type StreamReceiver struct {
	conn         net.Conn
	factory      *scanfactory.StreamFactory
	exchange     *exchange.Exchange
	extraction   *bufbytes.Bytes
	recvCapacity int
	statusBus    *pubsub.PubSub
	statusTrack  *statusflags.Tracker

	alive     atomic.Bool
	closeOnce sync.Once
}

// NewStream constructs a StreamReceiver over an already-connected conn.
// The caller is responsible for having already issued "start stream"
// for the handle (§4.3.3 step 1) before calling Run.
func NewStream(conn net.Conn, ex *exchange.Exchange) *StreamReceiver {
	bus := pubsub.New()
	r := &StreamReceiver{
		conn:         conn,
		factory:      scanfactory.NewStream(),
		exchange:     ex,
		recvCapacity: common.DefaultRecvBufferSize,
		statusBus:    bus,
		statusTrack:  statusflags.NewTracker(bus),
	}
	r.extraction = bufbytes.New(extractionReserve(r.recvCapacity))
	r.alive.Store(true)
	recvBufferBytes.WithLabelValues(streamLabel).Set(float64(r.recvCapacity))
	return r
}

// StatusTransitions returns the bus status-flag transitions (SUPPLEMENTS
// §1) are published on, one statusflags.Transition per named bit that
// flips between consecutive packet headers.
func (r *StreamReceiver) StatusTransitions() *pubsub.PubSub {
	return r.statusBus
}

// extractionReserve is ceil(1.5 x recvCapacity), the extraction buffer's
// reserved capacity per §4.3.1.
func extractionReserve(recvCapacity int) int {
	return int(math.Ceil(1.5 * float64(recvCapacity)))
}

func (r *StreamReceiver) Run() error {
	defer rescue.HandleCrash()

	readBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(readBuf)

	nextRead := r.recvCapacity
	for {
		if cap(readBuf.B) < nextRead {
			readBuf.B = make([]byte, nextRead)
		}
		readBuf.B = readBuf.B[:nextRead]

		n, err := r.conn.Read(readBuf.B)
		if err != nil {
			r.alive.Store(false)
			return errors.Wrapf(ErrNetworkDisconnect, "stream read: %v", err)
		}

		r.extraction.Write(readBuf.B[:n])
		consumed, missing := r.extractPackets()
		r.extraction.Erase(consumed)

		if missing > 0 {
			nextRead = missing
			if nextRead > r.recvCapacity {
				nextRead = r.recvCapacity
			}
		} else {
			nextRead = r.recvCapacity
		}
	}
}

// extractPackets tries to decode as many complete packets as are
// available in the extraction buffer, feeding the factory and
// publishing a scan whenever the factory reports completion. It returns
// the number of bytes that can now be erased from the front of the
// extraction buffer, and, if the loop stopped because a packet's
// payload was only partially present, how many more bytes are needed to
// finish it (0 otherwise).
func (r *StreamReceiver) extractPackets() (consumed int, missing int) {
	data := r.extraction.Bytes()
	cursor := 0

	for {
		remaining := data[cursor:]
		magicOffset, found := decode.FindMagic(remaining)
		if !found {
			dropped := len(remaining)
			// the final byte might be the low half of a magic split
			// across two reads; keep it rather than discard it.
			if dropped > 0 && remaining[dropped-1] == byte(common.PacketMagic&0xFF) {
				dropped--
			}
			if dropped > 0 {
				badMagicDroppedTotal.WithLabelValues(streamLabel).Add(float64(dropped))
			}
			cursor += dropped
			return cursor, 0
		}
		if magicOffset > 0 {
			badMagicDroppedTotal.WithLabelValues(streamLabel).Add(float64(magicOffset))
			cursor += magicOffset
			remaining = data[cursor:]
		}

		_, header, ok := decode.ParseHeader(remaining)
		if !ok {
			// magic found but not enough bytes yet for a full header
			return cursor, 0
		}

		payloadOffset := header.PayloadOffset()
		payloadSize := header.PayloadSize()
		available := len(remaining) - payloadOffset
		if available < payloadSize {
			return cursor, payloadSize - available
		}

		payload := remaining[payloadOffset : payloadOffset+payloadSize]
		r.statusTrack.Observe(header.StatusFlags)
		if !header.PacketType.Valid() {
			badPacketTypeTotal.WithLabelValues(streamLabel).Inc()
			logger.Warnf("transport/stream: dropping packet with unrecognised packet_type 0x%04x", uint16(header.PacketType))
			cursor += payloadOffset + payloadSize
			continue
		}

		distances, amplitudes, _, err := decode.Payload(header.PacketType, payload, int(header.NumPointsPacket))
		if err != nil {
			badPacketTypeTotal.WithLabelValues(streamLabel).Inc()
			logger.Warnf("transport/stream: %v", err)
			cursor += payloadOffset + payloadSize
			continue
		}

		r.factory.AddPacket(header, distances, amplitudes)
		cursor += payloadOffset + payloadSize

		if r.factory.IsComplete() {
			r.publishAndResize()
		}
	}
}

func (r *StreamReceiver) publishAndResize() {
	scan := r.factory.Take()
	scan.CompletedAt = time.Now()

	needed := 0
	for _, h := range scan.Headers {
		needed += int(h.PacketSize)
	}
	r.resizeRecvBuffer(needed)

	r.exchange.Publish(scan)
	scansPublishedTotal.WithLabelValues(streamLabel).Inc()
}

func (r *StreamReceiver) resizeRecvBuffer(needed int) {
	newCapacity := clamp(needed, common.DefaultRecvBufferSize, common.MaxRecvBufferSize)
	if newCapacity == r.recvCapacity {
		return
	}
	r.recvCapacity = newCapacity
	r.extraction.Grow(extractionReserve(newCapacity))
	recvBufferBytes.WithLabelValues(streamLabel).Set(float64(newCapacity))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (r *StreamReceiver) Stop() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.conn.Close()
		r.alive.Store(false)
	})
	return err
}

func (r *StreamReceiver) IsAlive() bool {
	return r.alive.Load()
}
