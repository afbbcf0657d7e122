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

// Package decode implements the byte-level reads for the data-plane wire
// format: locating the packet magic, parsing the fixed header, and
// extracting the type-dependent point payload that follows it.
package decode

import (
	"encoding/binary"

	"github.com/b2atech/r2000link/common"
)

// coreHeaderSize is the number of bytes always present from the magic up
// to and including iqOverload. header_size on the wire may report more
// than this (the two iq timestamp fields were added in a later device
// revision); it must never report less.
const coreHeaderSize = common.HeaderSize

// extendedHeaderSize is coreHeaderSize plus the two 64-bit iq timestamps,
// present when the device reports a header_size of at least this much.
const extendedHeaderSize = coreHeaderSize + 16

// Header mirrors the 60+-byte packed, little-endian prefix carried by
// every data-plane packet (§3).
type Header struct {
	Magic            uint16
	PacketType       common.PacketType
	PacketSize       uint32
	HeaderSize       uint16
	ScanNumber       uint16
	PacketNumber     uint16
	TimestampRaw     uint64
	TimestampSync    uint64
	StatusFlags      uint32
	ScanFrequency    uint32
	NumPointsScan    uint16
	NumPointsPacket  uint16
	FirstIndex       uint16
	FirstAngle       int32
	AngularIncrement int32
	IQInput          uint32
	IQOverload       uint32
	IQTimestampRaw   uint64
	IQTimestampSync  uint64
}

// FindMagic linear-scans data for the first little-endian occurrence of
// common.PacketMagic, returning its offset. ok is false if fewer than two
// bytes remain anywhere in data or no magic is found.
func FindMagic(data []byte) (offset int, ok bool) {
	for i := 0; i+1 < len(data); i++ {
		if binary.LittleEndian.Uint16(data[i:i+2]) == uint16(common.PacketMagic) {
			return i, true
		}
	}
	return 0, false
}

// ParseHeader locates the magic in data via FindMagic and, if at least
// coreHeaderSize bytes are available from that point, decodes the fixed
// header fields. start is the offset of the magic byte within data. ok is
// false when no magic is found or the bytes from the magic are too few
// to hold a complete header — callers should wait for more data.
func ParseHeader(data []byte) (start int, header Header, ok bool) {
	start, found := FindMagic(data)
	if !found {
		return 0, Header{}, false
	}
	buf := data[start:]
	if len(buf) < coreHeaderSize {
		return start, Header{}, false
	}

	h := Header{
		Magic:            binary.LittleEndian.Uint16(buf[0:2]),
		PacketType:       common.PacketType(binary.LittleEndian.Uint16(buf[2:4])),
		PacketSize:       binary.LittleEndian.Uint32(buf[4:8]),
		HeaderSize:       binary.LittleEndian.Uint16(buf[8:10]),
		ScanNumber:       binary.LittleEndian.Uint16(buf[10:12]),
		PacketNumber:     binary.LittleEndian.Uint16(buf[12:14]),
		TimestampRaw:     binary.LittleEndian.Uint64(buf[14:22]),
		TimestampSync:    binary.LittleEndian.Uint64(buf[22:30]),
		StatusFlags:      binary.LittleEndian.Uint32(buf[30:34]),
		ScanFrequency:    binary.LittleEndian.Uint32(buf[34:38]),
		NumPointsScan:    binary.LittleEndian.Uint16(buf[38:40]),
		NumPointsPacket:  binary.LittleEndian.Uint16(buf[40:42]),
		FirstIndex:       binary.LittleEndian.Uint16(buf[42:44]),
		FirstAngle:       int32(binary.LittleEndian.Uint32(buf[44:48])),
		AngularIncrement: int32(binary.LittleEndian.Uint32(buf[48:52])),
		IQInput:          binary.LittleEndian.Uint32(buf[52:56]),
		IQOverload:       binary.LittleEndian.Uint32(buf[56:60]),
	}

	if int(h.HeaderSize) >= extendedHeaderSize && len(buf) >= extendedHeaderSize {
		h.IQTimestampRaw = binary.LittleEndian.Uint64(buf[60:68])
		h.IQTimestampSync = binary.LittleEndian.Uint64(buf[68:76])
	}

	return start, h, true
}

// PayloadOffset is the byte offset, relative to the packet's magic, at
// which the point payload begins. It always honours the wire's stated
// header_size rather than assuming a fixed 60 (§6: "implementations must
// honour it").
func (h Header) PayloadOffset() int {
	return int(h.HeaderSize)
}

// PayloadSize is the number of payload bytes the header claims to carry.
func (h Header) PayloadSize() int {
	return int(h.PacketSize) - int(h.HeaderSize)
}
