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

import (
	"time"

	"github.com/spf13/cast"
)

// ParametersMap is the pre-parsed key->string map the HTTP/JSON control
// plane hands back to the core for every command response (§6). The core
// never touches the JSON wire format directly; a control-plane client
// flattens whatever it received into this shape first.
type ParametersMap map[string]string

func (p ParametersMap) GetString(k string) string {
	return p[k]
}

func (p ParametersMap) GetUint16(k string) (uint16, error) {
	v, err := cast.ToUint16E(p[k])
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (p ParametersMap) GetInt(k string) (int, error) {
	return cast.ToIntE(p[k])
}

func (p ParametersMap) GetBool(k string) (bool, error) {
	return cast.ToBoolE(p[k])
}

func (p ParametersMap) GetDuration(k string) (time.Duration, error) {
	return cast.ToDurationE(p[k])
}

// Merge overlays src's keys onto p, returning p.
func (p ParametersMap) Merge(src ParametersMap) ParametersMap {
	for k, v := range src {
		p[k] = v
	}
	return p
}
