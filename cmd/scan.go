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

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/b2atech/r2000link/common"
	"github.com/b2atech/r2000link/confengine"
	"github.com/b2atech/r2000link/control"
	"github.com/b2atech/r2000link/datalink"
	"github.com/b2atech/r2000link/internal/sigs"
	"github.com/b2atech/r2000link/logger"
	"github.com/b2atech/r2000link/server"
	"github.com/b2atech/r2000link/statusflags"
)

// scanConfig mirrors the YAML shape loaded by confengine: device
// connection details, the transport variant to use, and the ambient
// logger section. The server section of the same file is read
// separately by server.New.
type scanConfig struct {
	Device struct {
		Address string `config:"address"`
		Port    uint16 `config:"port"`
	} `config:"device"`

	Transport string `config:"transport"` // "stream" or "datagram"; any other value selects stream

	PacketType       string        `config:"packetType"`
	StartAngle       int32         `config:"startAngle"`
	MaxNumPointsScan uint16        `config:"maxNumPointsScan"`
	Watchdog         bool          `config:"watchdog"`
	WatchdogTimeout  time.Duration `config:"watchdogTimeout"`

	Datagram struct {
		LocalAddress string `config:"localAddress"`
		LocalPort    uint16 `config:"localPort"`
	} `config:"datagram"`

	Logger logger.Options `config:"logger"`
}

func parsePacketType(s string) (common.PacketType, error) {
	switch s {
	case "A", "a", "":
		return common.PacketTypeA, nil
	case "B", "b":
		return common.PacketTypeB, nil
	case "C", "c":
		return common.PacketTypeC, nil
	default:
		return 0, fmt.Errorf("unrecognised packet type %q", s)
	}
}

var scanConfigPath string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Connect to a device and print a summary of each published scan",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := confengine.LoadConfigPath(scanConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}

		var sc scanConfig
		if err := cfg.Unpack(&sc); err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse config: %v\n", err)
			os.Exit(1)
		}
		logger.SetOptions(sc.Logger)

		packetType, err := parsePacketType(sc.PacketType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

		client := control.NewHTTPClient(sc.Device.Address, sc.Device.Port, 5*time.Second)
		params := control.StreamParams{
			PacketType:       packetType,
			StartAngle:       sc.StartAngle,
			Watchdog:         sc.Watchdog,
			WatchdogTimeout:  sc.WatchdogTimeout,
			MaxNumPointsScan: sc.MaxNumPointsScan,
		}

		dl, err := buildDataLink(sc, client, params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build data link: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := dl.Close(); err != nil {
				logger.Warnf("scan: teardown reported errors: %v", err)
			}
		}()

		srv, err := server.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to configure server: %v\n", err)
			os.Exit(1)
		}
		if srv != nil {
			srv.RegisterHealthRoute(dl.IsAlive)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					logger.Errorf("server: %v", err)
				}
			}()
		}

		done := make(chan struct{})
		go watchScans(dl, done)
		go watchStatusTransitions(dl, done)
		go watchReload(done)

		<-sigs.Terminate()
		close(done)
	},
	Example: "# r2000link scan --config r2000link.yaml",
}

func buildDataLink(sc scanConfig, client control.Client, params control.StreamParams) (*datalink.DataLink, error) {
	switch sc.Transport {
	case "datagram":
		return datalink.BuildDatagram(context.Background(), datalink.DatagramOptions{
			Client:       client,
			LocalAddress: sc.Datagram.LocalAddress,
			LocalPort:    sc.Datagram.LocalPort,
			Params:       params,
		})
	default:
		return datalink.BuildStream(context.Background(), datalink.StreamOptions{
			Client:        client,
			DeviceAddress: sc.Device.Address,
			Params:        params,
		})
	}
}

func watchScans(dl *datalink.DataLink, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		scan, ok := dl.WaitForNext(time.Second)
		if !ok {
			continue
		}
		logger.Infof("scan: %d points, alive=%v, completed=%s",
			len(scan.Distances), dl.IsAlive(), scan.CompletedAt.Format(time.RFC3339Nano))
	}
}

// watchStatusTransitions logs every status-flag transition published on
// the data link's bus so a device raising e.g. lens_contamination_warning
// or overload_error shows up in the log stream without waiting for the next
// scan.
func watchStatusTransitions(dl *datalink.DataLink, done chan struct{}) {
	queue := dl.StatusTransitions().Subscribe(32)
	defer dl.StatusTransitions().Unsubscribe(queue)

	for {
		select {
		case <-done:
			return
		default:
		}

		msg, ok := queue.PopTimeout(time.Second)
		if !ok {
			continue
		}
		t, ok := msg.(statusflags.Transition)
		if !ok {
			continue
		}
		logger.Infof("scan: status flag %s %s", t.Name, transitionVerb(t.Set))
	}
}

func transitionVerb(set bool) string {
	if set {
		return "set"
	}
	return "cleared"
}

// watchReload re-applies the logger section of the config file on
// SIGHUP, the way packetd's agent command reloads on the same signal.
// Device connection parameters are fixed for a DataLink's lifetime
// (§4.3.3 has no "reconfigure in place" operation), so only the ambient
// logger settings are eligible for a hot reload here.
func watchReload(done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-sigs.Reload():
			cfg, err := confengine.LoadConfigPath(scanConfigPath)
			if err != nil {
				logger.Warnf("scan: reload: %v", err)
				continue
			}
			var sc scanConfig
			if err := cfg.Unpack(&sc); err != nil {
				logger.Warnf("scan: reload: %v", err)
				continue
			}
			logger.SetOptions(sc.Logger)
			logger.Infof("scan: reloaded logger configuration from %s", scanConfigPath)
		}
	}
}

func init() {
	scanCmd.Flags().StringVar(&scanConfigPath, "config", "r2000link.yaml", "Configuration file path")
	rootCmd.AddCommand(scanCmd)
}
