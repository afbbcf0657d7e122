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
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b2atech/r2000link/common"
	"github.com/b2atech/r2000link/exchange"
	"github.com/b2atech/r2000link/scanfactory"
	"github.com/b2atech/r2000link/statusflags"
)

// rawPacketA builds a full on-wire type-A packet: 60-byte header with
// header_size=60, followed by nPoints u32 distances.
func rawPacketA(scanNumber, packetNumber, numPointsScan uint16, distances []uint32) []byte {
	payload := make([]byte, len(distances)*4)
	for i, d := range distances {
		binary.LittleEndian.PutUint32(payload[i*4:i*4+4], d)
	}
	return rawPacket(common.PacketTypeA, scanNumber, packetNumber, numPointsScan, uint16(len(distances)), payload)
}

func rawPacket(packetType common.PacketType, scanNumber, packetNumber, numPointsScan, numPointsPacket uint16, payload []byte) []byte {
	return rawPacketWithStatus(packetType, scanNumber, packetNumber, numPointsScan, numPointsPacket, 0, payload)
}

func rawPacketWithStatus(packetType common.PacketType, scanNumber, packetNumber, numPointsScan, numPointsPacket uint16, statusFlags uint32, payload []byte) []byte {
	header := make([]byte, 60)
	binary.LittleEndian.PutUint16(header[0:2], uint16(common.PacketMagic))
	binary.LittleEndian.PutUint16(header[2:4], uint16(packetType))
	binary.LittleEndian.PutUint32(header[4:8], uint32(60+len(payload)))
	binary.LittleEndian.PutUint16(header[8:10], 60)
	binary.LittleEndian.PutUint16(header[10:12], scanNumber)
	binary.LittleEndian.PutUint16(header[12:14], packetNumber)
	binary.LittleEndian.PutUint32(header[30:34], statusFlags)
	binary.LittleEndian.PutUint16(header[38:40], numPointsScan)
	binary.LittleEndian.PutUint16(header[40:42], numPointsPacket)
	return append(header, payload...)
}

// awaitNextScan arms a WaitForNext call before trigger runs, so a
// publish that lands fast can never be missed between reading the
// exchange's baseline counter and trigger's writes reaching the socket.
func awaitNextScan(t *testing.T, ex *exchange.Exchange, trigger func()) scanfactory.Scan {
	t.Helper()
	resultCh := make(chan scanfactory.Scan, 1)
	armed := make(chan struct{})
	go func() {
		close(armed)
		if s, ok := ex.WaitForNext(3 * time.Second); ok {
			resultCh <- s
		}
	}()
	<-armed
	time.Sleep(10 * time.Millisecond)
	trigger()

	select {
	case s := <-resultCh:
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a published scan")
		return scanfactory.Scan{}
	}
}

func TestStreamReceiverTwoPacketScan(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	ex := exchange.New()
	r := NewStream(serverConn, ex)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	scan := awaitNextScan(t, ex, func() {
		_, _ = clientConn.Write(rawPacketA(42, 1, 8, []uint32{100, 200, 300, 0xFFFFFFFF}))
		_, _ = clientConn.Write(rawPacketA(42, 2, 8, []uint32{400, 500, 600, 700}))
	})

	require.Len(t, scan.Distances, 8)
	assert.Equal(t, float64(100), scan.Distances[0])
	assert.True(t, math.IsNaN(scan.Distances[3]))
	assert.Equal(t, float64(700), scan.Distances[7])
	assert.Len(t, scan.Headers, 2)

	_ = r.Stop()
	<-done
}

func TestStreamReceiverSplitByteBoundaries(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	ex := exchange.New()
	r := NewStream(serverConn, ex)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	full := append(rawPacketA(1, 1, 4, []uint32{10, 20}), rawPacketA(1, 2, 4, []uint32{30, 40})...)
	scan := awaitNextScan(t, ex, func() {
		for _, b := range full {
			_, _ = clientConn.Write([]byte{b})
		}
	})

	assert.Equal(t, []float64{10, 20, 30, 40}, scan.Distances)

	_ = r.Stop()
	<-done
}

func TestStreamReceiverSkipsBadMagicGarbage(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	ex := exchange.New()
	r := NewStream(serverConn, ex)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	garbage := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	scan := awaitNextScan(t, ex, func() {
		_, _ = clientConn.Write(append(garbage, rawPacketA(5, 1, 2, []uint32{1, 2})...))
	})

	assert.Equal(t, []float64{1, 2}, scan.Distances)

	_ = r.Stop()
	<-done
}

func TestStreamReceiverShortReadWaitsForRemainingBytes(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	ex := exchange.New()
	r := NewStream(serverConn, ex)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	full := rawPacketA(9, 1, 4, []uint32{1, 2, 3, 4})
	scan := awaitNextScan(t, ex, func() {
		_, _ = clientConn.Write(full[:len(full)-3])
		time.Sleep(50 * time.Millisecond)
		_, _ = clientConn.Write(full[len(full)-3:])
	})

	assert.Equal(t, []float64{1, 2, 3, 4}, scan.Distances)

	_ = r.Stop()
	<-done
}

func TestStreamReceiverPublishesStatusTransition(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	ex := exchange.New()
	r := NewStream(serverConn, ex)
	queue := r.StatusTransitions().Subscribe(8)
	defer r.StatusTransitions().Unsubscribe(queue)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	first := rawPacketWithStatus(common.PacketTypeA, 1, 1, 2, 2, 0, make([]byte, 8))
	_, _ = clientConn.Write(first)

	second := rawPacketWithStatus(common.PacketTypeA, 2, 1, 2, 2, 0x200, make([]byte, 8))
	awaitNextScan(t, ex, func() {
		_, _ = clientConn.Write(second)
	})

	msg, ok := queue.PopTimeout(2 * time.Second)
	require.True(t, ok, "expected a status transition to be published")
	transition, ok := msg.(statusflags.Transition)
	require.True(t, ok)
	assert.Equal(t, "warning_active", transition.Name)
	assert.True(t, transition.Set)

	_ = r.Stop()
	<-done
}

func TestDatagramReceiverReorder(t *testing.T) {
	serverAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	serverConn, err := net.ListenUDP("udp", serverAddr)
	require.NoError(t, err)
	defer serverConn.Close()

	clientConn, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer clientConn.Close()

	ex := exchange.New()
	r := NewDatagram(serverConn, ex)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	scan := awaitNextScan(t, ex, func() {
		_, _ = clientConn.Write(rawPacketA(42, 2, 8, []uint32{400, 500, 600, 700}))
		time.Sleep(10 * time.Millisecond)
		_, _ = clientConn.Write(rawPacketA(42, 1, 8, []uint32{100, 200, 300, 0xFFFFFFFF}))
	})

	require.Len(t, scan.Distances, 8)
	assert.Equal(t, float64(100), scan.Distances[0])
	assert.True(t, math.IsNaN(scan.Distances[3]))
	assert.Equal(t, float64(700), scan.Distances[7])

	_ = r.Stop()
	<-done
}
