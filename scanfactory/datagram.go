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

package scanfactory

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/b2atech/r2000link/decode"
)

// datagramPacket is one buffered, not-yet-ordered packet.
type datagramPacket struct {
	header     decode.Header
	distances  []float64
	amplitudes []float64
}

// DatagramFactory assembles packets delivered by an unordered, message-
// boundary-preserving transport. Packets are buffered as they arrive and
// only sorted by packet_number on Take.
type DatagramFactory struct {
	packets        []datagramPacket
	numPoints      int
	seenDuplicates map[uint64]struct{}
}

// NewDatagram returns an empty DatagramFactory.
func NewDatagram() *DatagramFactory {
	return &DatagramFactory{
		seenDuplicates: make(map[uint64]struct{}),
	}
}

func (f *DatagramFactory) IsEmpty() bool {
	return len(f.packets) == 0
}

func (f *DatagramFactory) IsDifferentScan(h decode.Header) bool {
	if f.IsEmpty() {
		return false
	}
	return h.ScanNumber != f.packets[len(f.packets)-1].header.ScanNumber
}

func (f *DatagramFactory) IsNewScan(h decode.Header) bool {
	return isNewScan(h)
}

// dedupKey hashes (scan_number, packet_number) cheaply so a duplicated
// UDP delivery of the same packet doesn't double-count toward
// completion or appear twice in the assembled scan.
func dedupKey(h decode.Header) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[0:2], h.ScanNumber)
	binary.LittleEndian.PutUint16(buf[2:4], h.PacketNumber)
	return xxhash.Sum64(buf[:])
}

func (f *DatagramFactory) AddPacket(h decode.Header, distances, amplitudes []float64) {
	// Unlike the stream variant, packet_number == 1 must NOT trigger a
	// reset here: datagrams can arrive out of order, so packet 1 often
	// shows up after packets already buffered for the same scan. Only a
	// scan_number change legitimately starts a new scan.
	if !f.IsEmpty() && f.IsDifferentScan(h) {
		f.clear()
	}

	key := dedupKey(h)
	if _, dup := f.seenDuplicates[key]; dup {
		return
	}
	f.seenDuplicates[key] = struct{}{}

	f.packets = append(f.packets, datagramPacket{header: h, distances: distances, amplitudes: amplitudes})
	f.numPoints += int(h.NumPointsPacket)
}

func (f *DatagramFactory) IsComplete() bool {
	if f.IsEmpty() {
		return false
	}
	latest := f.packets[len(f.packets)-1].header
	return f.numPoints >= int(latest.NumPointsScan)
}

func (f *DatagramFactory) Take() Scan {
	ordered := make([]datagramPacket, len(f.packets))
	copy(ordered, f.packets)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].header.PacketNumber < ordered[j].header.PacketNumber
	})

	s := Scan{
		Headers: make([]decode.Header, 0, len(ordered)),
	}
	for _, p := range ordered {
		s.Headers = append(s.Headers, p.header)
		s.Distances = append(s.Distances, p.distances...)
		s.Amplitudes = append(s.Amplitudes, p.amplitudes...)
	}

	f.clear()
	return s
}

func (f *DatagramFactory) clear() {
	f.packets = nil
	f.numPoints = 0
	f.seenDuplicates = make(map[uint64]struct{})
}
