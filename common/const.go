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

package common

const (
	// App is the Prometheus namespace shared by every component's metrics.
	App = "r2000link"

	// Version is the module's release version. GetBuildInfo does not
	// report it; it reports the values set at link time.
	Version = "v0.0.1"
)

const (
	// PacketMagic marks the start of every data-plane packet, little-endian on the wire (0x5C 0xA2).
	PacketMagic = 0xA25C

	// HeaderSize is the byte length of a packet header's core fields (§3);
	// a packet's own header_size may be larger.
	HeaderSize = 60

	// DefaultRecvBufferSize is the starting capacity of a stream receiver's socket-read buffer.
	DefaultRecvBufferSize = 4096

	// MaxRecvBufferSize bounds how large the stream receiver will ever grow its read buffer.
	MaxRecvBufferSize = 32768

	// DatagramSize bounds a single UDP read; one datagram always carries exactly one packet.
	DatagramSize = 65535
)

// PacketType identifies the point-payload encoding carried by a packet.
type PacketType uint16

const (
	PacketTypeA PacketType = 0x0041
	PacketTypeB PacketType = 0x0042
	PacketTypeC PacketType = 0x0043
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeA:
		return "A"
	case PacketTypeB:
		return "B"
	case PacketTypeC:
		return "C"
	default:
		return "unknown"
	}
}

func (t PacketType) Valid() bool {
	switch t {
	case PacketTypeA, PacketTypeB, PacketTypeC:
		return true
	default:
		return false
	}
}
