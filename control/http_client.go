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

package control

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/b2atech/r2000link/common"
)

// HTTPClient is the one concrete Client: plain GET commands against the
// device's "/cmd/<name>" HTTP interface, exactly the shape
// HttpController::sendHttpCommand builds in the original source.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient returns a Client talking to the device at address:port.
func NewHTTPClient(address string, port uint16, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: fmt.Sprintf("http://%s:%d", address, port),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) sendCommand(ctx context.Context, command string, params map[string]string) (response, error) {
	u, err := url.Parse(c.baseURL + "/cmd/" + command)
	if err != nil {
		return response{}, newError("invalid command url: %v", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return response{}, newError("build request for %q: %v", command, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, errors.Wrapf(ErrHandleRequestFailed, "%s: %v", command, err)
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return response{}, errors.Wrapf(ErrHandleRequestFailed, "%s: decode response: %v", command, err)
	}
	if resp.StatusCode != http.StatusOK {
		return response{}, errors.Wrapf(ErrHandleRequestFailed, "%s: http status %d", command, resp.StatusCode)
	}

	return response{params: flatten(raw)}, nil
}

// flatten converts the device's parsed JSON object into the pre-parsed
// key->string map the core consumes (§6), the one conversion the
// package needs cast for instead of encoding/json's typed unmarshalling.
func flatten(raw map[string]any) common.ParametersMap {
	out := make(common.ParametersMap, len(raw))
	for k, v := range raw {
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		out[k] = s
	}
	return out
}

func (c *HTTPClient) RequestStreamHandle(ctx context.Context, params StreamParams) (Handle, error) {
	resp, err := c.sendCommand(ctx, "request_handle_tcp", streamParamsToQuery(params))
	if err != nil {
		return Handle{}, err
	}
	if err := checkErrorCode(resp); err != nil {
		return Handle{}, err
	}

	port, err := resp.params.GetUint16("port")
	if err != nil {
		return Handle{}, newError("request_handle_tcp: missing/invalid port: %v", err)
	}
	return Handle{
		ID:              resp.params.GetString("handle"),
		Port:            port,
		WatchdogEnabled: params.Watchdog,
		WatchdogTimeout: params.WatchdogTimeout,
	}, nil
}

func (c *HTTPClient) RequestDatagramHandle(ctx context.Context, params DatagramParams) (Handle, error) {
	query := streamParamsToQuery(params.StreamParams)
	query["address"] = params.Address
	query["port"] = strconv.Itoa(int(params.Port))

	resp, err := c.sendCommand(ctx, "request_handle_udp", query)
	if err != nil {
		return Handle{}, err
	}
	if err := checkErrorCode(resp); err != nil {
		return Handle{}, err
	}

	return Handle{
		ID:              resp.params.GetString("handle"),
		Port:            params.Port,
		Address:         params.Address,
		WatchdogEnabled: params.Watchdog,
		WatchdogTimeout: params.WatchdogTimeout,
	}, nil
}

func (c *HTTPClient) StartStream(ctx context.Context, h Handle) error {
	resp, err := c.sendCommand(ctx, "start_scanoutput", map[string]string{"handle": h.ID})
	if err != nil {
		return err
	}
	return checkErrorCode(resp)
}

func (c *HTTPClient) StopStream(ctx context.Context, h Handle) error {
	resp, err := c.sendCommand(ctx, "stop_scanoutput", map[string]string{"handle": h.ID})
	if err != nil {
		return err
	}
	return checkErrorCode(resp)
}

func (c *HTTPClient) FeedWatchdog(ctx context.Context, h Handle) error {
	resp, err := c.sendCommand(ctx, "feed_watchdog", map[string]string{"handle": h.ID})
	if err != nil {
		return err
	}
	return checkErrorCode(resp)
}

func (c *HTTPClient) ReleaseHandle(ctx context.Context, h Handle) error {
	resp, err := c.sendCommand(ctx, "release_handle", map[string]string{"handle": h.ID})
	if err != nil {
		return err
	}
	return checkErrorCode(resp)
}

func streamParamsToQuery(p StreamParams) map[string]string {
	return map[string]string{
		"packet_type":         p.PacketType.String(),
		"start_angle":         strconv.Itoa(int(p.StartAngle)),
		"watchdog":            strconv.FormatBool(p.Watchdog),
		"watchdogtimeout":     strconv.FormatInt(p.WatchdogTimeout.Milliseconds(), 10),
		"packet_crc":          strconv.FormatBool(p.PacketCRC),
		"max_num_points_scan": strconv.Itoa(int(p.MaxNumPointsScan)),
		"skip_scans":          strconv.Itoa(int(p.SkipScans)),
	}
}
