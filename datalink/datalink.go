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

// Package datalink is the composite (C6) that hides the stream and
// datagram transport variants behind one contract: acquire a handle,
// open the connection, start the receive loop and (if enabled) the
// watchdog, and hand back the one thing a consumer needs — the latest
// published scan.
package datalink

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/b2atech/r2000link/control"
	"github.com/b2atech/r2000link/exchange"
	"github.com/b2atech/r2000link/internal/pubsub"
	"github.com/b2atech/r2000link/logger"
	"github.com/b2atech/r2000link/scanfactory"
	"github.com/b2atech/r2000link/transport"
)

// teardownTimeout bounds the best-effort "stop stream"/"release handle"
// calls issued during Close, so a dead device never hangs teardown.
const teardownTimeout = 2 * time.Second

// Construction failure kinds (§4.6). A returned error matches one of
// these with errors.Is; the underlying cause from control or net is
// carried only as text in the error message, not as a wrapped error.
var (
	ErrHandleAcquisitionFailed = errors.New("datalink: handle acquisition failed")
	ErrAlreadyBusy             = errors.New("datalink: device busy")
	ErrNetworkError            = errors.New("datalink: network error")
)

// DataLink ties a device handle to its receiver, factory (owned by the
// receiver), exchange and watchdog, and orchestrates orderly shutdown.
type DataLink struct {
	client   control.Client
	handle   control.Handle
	receiver transport.Receiver
	exchange *exchange.Exchange
	watchdog watchdogHandle

	runDone chan error
}

// watchdogHandle is the narrow surface DataLink needs from a
// *watchdog.Watchdog; declared locally so this file doesn't need to
// import watchdog just to spell out one struct's worth of fields.
type watchdogHandle interface {
	Run(ctx context.Context)
	Stop()
	IsConnected() bool
}

// StreamOptions configures BuildStream.
type StreamOptions struct {
	Client        control.Client
	DeviceAddress string // host the stream socket dials; the port comes back on the handle
	Params        control.StreamParams
	DialTimeout   time.Duration
}

// DatagramOptions configures BuildDatagram. LocalAddress/LocalPort are
// where the device is told to send scan datagrams; an empty
// LocalAddress or zero LocalPort lets the OS pick.
type DatagramOptions struct {
	Client       control.Client
	LocalAddress string
	LocalPort    uint16
	Params       control.StreamParams
}

func newWatchdog(client control.Client, handle control.Handle) watchdogHandle {
	return newWatchdogImpl(client, handle)
}

// BuildStream performs the full startup protocol (§4.3.3) for the
// stream (TCP-like) transport: acquire a handle, dial the device's
// stream port, issue "start stream", then spawn the receive loop and,
// if enabled, the watchdog.
func BuildStream(ctx context.Context, opt StreamOptions) (*DataLink, error) {
	handle, err := opt.Client.RequestStreamHandle(ctx, opt.Params)
	if err != nil {
		return nil, translateHandleErr(err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeoutOrDefault(opt.DialTimeout))
	defer cancel()
	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(opt.DeviceAddress, strconv.Itoa(int(handle.Port))))
	if err != nil {
		releaseBestEffort(opt.Client, handle)
		return nil, errors.Wrapf(ErrNetworkError, "dial stream port: %v", err)
	}

	ex := exchange.New()
	receiver := transport.NewStream(conn, ex)
	return startReceiver(ctx, opt.Client, handle, receiver, ex)
}

// BuildStreamTimeout is BuildStream with an overall deadline, the async
// variant §4.3.3 names alongside the plain build call.
func BuildStreamTimeout(timeout time.Duration, opt StreamOptions) (*DataLink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return BuildStream(ctx, opt)
}

// BuildDatagram performs the startup protocol for the datagram
// (UDP-like) transport: acquire a handle telling the device where to
// send datagrams, bind that local socket, issue "start stream", then
// spawn the receive loop and, if enabled, the watchdog.
func BuildDatagram(ctx context.Context, opt DatagramOptions) (*DataLink, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(opt.LocalAddress, strconv.Itoa(int(opt.LocalPort))))
	if err != nil {
		return nil, errors.Wrapf(ErrNetworkError, "resolve local udp address: %v", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrNetworkError, "bind local udp socket: %v", err)
	}

	localPort := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	handle, err := opt.Client.RequestDatagramHandle(ctx, control.DatagramParams{
		StreamParams: opt.Params,
		Address:      opt.LocalAddress,
		Port:         localPort,
	})
	if err != nil {
		_ = conn.Close()
		return nil, translateHandleErr(err)
	}

	ex := exchange.New()
	receiver := transport.NewDatagram(conn, ex)
	return startReceiver(ctx, opt.Client, handle, receiver, ex)
}

// BuildDatagramTimeout is BuildDatagram with an overall deadline.
func BuildDatagramTimeout(timeout time.Duration, opt DatagramOptions) (*DataLink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return BuildDatagram(ctx, opt)
}

// startReceiver finishes the §4.3.3 protocol once a handle and a
// connected transport are both in hand: issue "start stream" (failure
// here fails construction per spec), spawn the receive loop, and spawn
// the watchdog if the handle asked for one.
func startReceiver(ctx context.Context, client control.Client, handle control.Handle, receiver transport.Receiver, ex *exchange.Exchange) (*DataLink, error) {
	if err := client.StartStream(ctx, handle); err != nil {
		_ = receiver.Stop()
		releaseBestEffort(client, handle)
		return nil, errors.Wrapf(ErrNetworkError, "start stream: %v", err)
	}

	dl := &DataLink{
		client:   client,
		handle:   handle,
		receiver: receiver,
		exchange: ex,
		runDone:  make(chan error, 1),
	}

	go func() {
		dl.runDone <- receiver.Run()
	}()

	if handle.WatchdogEnabled {
		dl.watchdog = newWatchdog(client, handle)
		go dl.watchdog.Run(context.Background())
	}

	return dl, nil
}

// Latest returns the most recently published scan without blocking.
func (dl *DataLink) Latest() (scanfactory.Scan, bool) {
	return dl.exchange.Latest()
}

// WaitForNext blocks until a new scan is published, timeout elapses, or
// the DataLink is closed.
func (dl *DataLink) WaitForNext(timeout time.Duration) (scanfactory.Scan, bool) {
	return dl.exchange.WaitForNext(timeout)
}

// StatusTransitions returns the bus status-flag transitions
// (SUPPLEMENTS §1) are published on for the underlying transport.
func (dl *DataLink) StatusTransitions() *pubsub.PubSub {
	return dl.receiver.StatusTransitions()
}

// IsAlive reports whether the receive loop's last socket operation
// succeeded and, if a watchdog is running, whether it still reports the
// device connected, which it stops doing only after several consecutive
// failed feeds (§4.4: a consumer may still retrieve the last published
// scan even when false).
func (dl *DataLink) IsAlive() bool {
	if !dl.receiver.IsAlive() {
		return false
	}
	if dl.watchdog != nil {
		return dl.watchdog.IsConnected()
	}
	return true
}

// Close tears the DataLink down (§4.6): wake every waiter, join the
// receive loop and the watchdog, issue "stop stream" and "release
// handle" to the device best-effort, and close the socket. A dead
// connection making the teardown calls fail is tolerated, not treated
// as a Close failure; their errors are aggregated and returned for a
// caller that wants to inspect them.
func (dl *DataLink) Close() error {
	dl.exchange.Close()

	if dl.watchdog != nil {
		dl.watchdog.Stop()
	}

	_ = dl.receiver.Stop()
	<-dl.runDone

	var result *multierror.Error
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := dl.client.StopStream(ctx, dl.handle); err != nil {
		logger.Warnf("datalink: stop stream for handle %s: %v", dl.handle.ID, err)
		result = multierror.Append(result, err)
	}
	if err := dl.client.ReleaseHandle(ctx, dl.handle); err != nil {
		logger.Warnf("datalink: release handle %s: %v", dl.handle.ID, err)
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

func translateHandleErr(err error) error {
	if errors.Is(err, control.ErrBusy) {
		return errors.Wrapf(ErrAlreadyBusy, "%v", err)
	}
	return errors.Wrapf(ErrHandleAcquisitionFailed, "%v", err)
}

func releaseBestEffort(client control.Client, handle control.Handle) {
	if handle.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := client.ReleaseHandle(ctx, handle); err != nil {
		logger.Warnf("datalink: release handle %s after failed startup: %v", handle.ID, err)
	}
}

func dialTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * time.Second
	}
	return d
}
