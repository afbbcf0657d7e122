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
	"github.com/b2atech/r2000link/decode"
)

// StreamFactory assembles packets delivered in order by a byte-stream
// transport. Because ordering is guaranteed by the transport, appending
// is sufficient: no sort is needed on Take.
type StreamFactory struct {
	headers    []decode.Header
	distances  []float64
	amplitudes []float64
}

// NewStream returns an empty StreamFactory.
func NewStream() *StreamFactory {
	return &StreamFactory{}
}

func (f *StreamFactory) IsEmpty() bool {
	return len(f.headers) == 0
}

func (f *StreamFactory) IsDifferentScan(h decode.Header) bool {
	if f.IsEmpty() {
		return false
	}
	return h.ScanNumber != f.headers[len(f.headers)-1].ScanNumber
}

func (f *StreamFactory) IsNewScan(h decode.Header) bool {
	return isNewScan(h)
}

func (f *StreamFactory) AddPacket(h decode.Header, distances, amplitudes []float64) {
	if !f.IsEmpty() && (f.IsDifferentScan(h) || f.IsNewScan(h)) {
		f.clear()
	}
	f.headers = append(f.headers, h)
	f.distances = append(f.distances, distances...)
	f.amplitudes = append(f.amplitudes, amplitudes...)
}

func (f *StreamFactory) IsComplete() bool {
	if f.IsEmpty() {
		return false
	}
	return len(f.distances) >= int(f.headers[0].NumPointsScan)
}

func (f *StreamFactory) Take() Scan {
	s := Scan{
		Distances:  f.distances,
		Amplitudes: f.amplitudes,
		Headers:    f.headers,
	}
	f.clear()
	return s
}

func (f *StreamFactory) clear() {
	f.headers = nil
	f.distances = nil
	f.amplitudes = nil
}
