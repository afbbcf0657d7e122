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

package datalink

import (
	"github.com/b2atech/r2000link/control"
	"github.com/b2atech/r2000link/watchdog"
)

// newWatchdogImpl adapts the concrete *watchdog.Watchdog to the narrow
// watchdogHandle surface DataLink depends on.
func newWatchdogImpl(client control.Client, handle control.Handle) *watchdog.Watchdog {
	return watchdog.New(client, handle, handle.WatchdogTimeout)
}
