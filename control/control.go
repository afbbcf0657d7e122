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

// Package control is the external collaborator (§1, §6): the HTTP/JSON
// command interface the core uses to obtain and release stream handles
// and to keep them alive, and nothing more. Parameter-builder surfaces,
// device-status polling and every other HTTP command the device exposes
// live outside the core and are not modelled here.
package control

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/b2atech/r2000link/common"
)

func newError(format string, args ...any) error {
	return errors.Errorf("control: "+format, args...)
}

// ErrBusy is surfaced when the device reports it is already executing a
// command (§7 "busy").
var ErrBusy = errors.New("control: device busy")

// ErrHandleRequestFailed is surfaced when a handle request is refused or
// the HTTP layer itself fails (§7 "handle-request-failed").
var ErrHandleRequestFailed = errors.New("control: handle request failed")

// deviceBusyErrorCode and deviceSuccessErrorCode are the error_code
// values the device is documented to return for those two outcomes;
// every other nonzero code is surfaced as ErrHandleRequestFailed.
const (
	deviceSuccessErrorCode = 0
	deviceBusyErrorCode    = 1
)

// Handle is the opaque token issued by the device that authorises one
// data-plane stream (§3 "Device handle").
type Handle struct {
	ID              string
	WatchdogEnabled bool
	WatchdogTimeout time.Duration
	Port            uint16
	Address         string
}

// StreamParams shapes a "request handle" command for the stream
// (TCP-like) transport.
type StreamParams struct {
	PacketType       common.PacketType
	StartAngle       int32
	Watchdog         bool
	WatchdogTimeout  time.Duration
	PacketCRC        bool
	MaxNumPointsScan uint16
	SkipScans        uint16
}

// DatagramParams shapes a "request handle" command for the datagram
// (UDP-like) transport: StreamParams plus the destination the device
// should send packets to.
type DatagramParams struct {
	StreamParams
	Address string
	Port    uint16
}

// Client is the full surface of §6's control-plane table. DataLink and
// the transport/watchdog packages depend only on this interface, never
// on a concrete HTTP implementation.
type Client interface {
	RequestStreamHandle(ctx context.Context, params StreamParams) (Handle, error)
	RequestDatagramHandle(ctx context.Context, params DatagramParams) (Handle, error)
	StartStream(ctx context.Context, h Handle) error
	StopStream(ctx context.Context, h Handle) error
	FeedWatchdog(ctx context.Context, h Handle) error
	ReleaseHandle(ctx context.Context, h Handle) error
}

// response is every HTTP command reply's common envelope (§6: "All HTTP
// replies carry error_code ... and error_text").
type response struct {
	params common.ParametersMap
}

func (r response) errorCode() (int, error) {
	return r.params.GetInt("error_code")
}

func (r response) errorText() string {
	return r.params.GetString("error_text")
}

// checkErrorCode translates the device's error_code/error_text pair into
// a Go error, or nil on success.
func checkErrorCode(r response) error {
	code, err := r.errorCode()
	if err != nil {
		return newError("malformed error_code: %v", err)
	}
	switch code {
	case deviceSuccessErrorCode:
		return nil
	case deviceBusyErrorCode:
		return ErrBusy
	default:
		return errors.Wrapf(ErrHandleRequestFailed, "error_code=%d error_text=%q", code, r.errorText())
	}
}
