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

package decode

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/b2atech/r2000link/common"
)

// ErrBadPacketType is returned by Payload when the header carries a
// packet_type other than A, B or C (§7 bad-packet-type).
var ErrBadPacketType = errors.New("decode: bad packet type")

func newError(format string, args ...any) error {
	return errors.Errorf("decode: "+format, args...)
}

const (
	invalidDistance32 = 0xFFFFFFFF
	invalidDistance20 = 0xFFFFF
)

// Payload dispatches to the decoder matching packetType, extracting up
// to nPoints points from data. It returns the decoded distances (mm, NaN
// for the type's invalid sentinel) and amplitudes, plus the number of
// payload bytes actually consumed. Fewer than nPoints points are
// returned when data runs out early. The transports only call Payload
// once the header's full payload is present, and use whatever points
// it returns.
func Payload(packetType common.PacketType, data []byte, nPoints int) (distances, amplitudes []float64, consumed int, err error) {
	switch packetType {
	case common.PacketTypeA:
		d, a, n := decodePayloadA(data, nPoints)
		return d, a, n, nil
	case common.PacketTypeB:
		d, a, n := decodePayloadB(data, nPoints)
		return d, a, n, nil
	case common.PacketTypeC:
		d, a, n := decodePayloadC(data, nPoints)
		return d, a, n, nil
	default:
		return nil, nil, 0, errors.Wrapf(ErrBadPacketType, "packet_type=0x%04x", uint16(packetType))
	}
}

// decodePayloadA reads nPoints u32 distances; amplitude is synthesised
// as 0 for every point (§3).
func decodePayloadA(data []byte, nPoints int) (distances, amplitudes []float64, consumed int) {
	distances = make([]float64, 0, nPoints)
	amplitudes = make([]float64, 0, nPoints)
	for i := 0; i < nPoints; i++ {
		if consumed+4 > len(data) {
			break
		}
		raw := binary.LittleEndian.Uint32(data[consumed : consumed+4])
		distances = append(distances, distanceOrInvalid32(raw))
		amplitudes = append(amplitudes, 0)
		consumed += 4
	}
	return distances, amplitudes, consumed
}

// decodePayloadB reads nPoints {u32 distance, u16 amplitude} pairs.
func decodePayloadB(data []byte, nPoints int) (distances, amplitudes []float64, consumed int) {
	distances = make([]float64, 0, nPoints)
	amplitudes = make([]float64, 0, nPoints)
	for i := 0; i < nPoints; i++ {
		if consumed+6 > len(data) {
			break
		}
		rawDist := binary.LittleEndian.Uint32(data[consumed : consumed+4])
		rawAmpl := binary.LittleEndian.Uint16(data[consumed+4 : consumed+6])
		distances = append(distances, distanceOrInvalid32(rawDist))
		amplitudes = append(amplitudes, float64(rawAmpl))
		consumed += 6
	}
	return distances, amplitudes, consumed
}

// decodePayloadC reads nPoints packed u32 values: low 20 bits distance,
// high 12 bits amplitude; invalid if the distance field equals 0xFFFFF.
func decodePayloadC(data []byte, nPoints int) (distances, amplitudes []float64, consumed int) {
	distances = make([]float64, 0, nPoints)
	amplitudes = make([]float64, 0, nPoints)
	for i := 0; i < nPoints; i++ {
		if consumed+4 > len(data) {
			break
		}
		raw := binary.LittleEndian.Uint32(data[consumed : consumed+4])
		dist := raw & 0x000FFFFF
		ampl := (raw & 0xFFFFF000) >> 20
		if dist == invalidDistance20 {
			distances = append(distances, math.NaN())
		} else {
			distances = append(distances, float64(dist))
		}
		amplitudes = append(amplitudes, float64(ampl))
		consumed += 4
	}
	return distances, amplitudes, consumed
}

func distanceOrInvalid32(raw uint32) float64 {
	if raw == invalidDistance32 {
		return math.NaN()
	}
	return float64(raw)
}
