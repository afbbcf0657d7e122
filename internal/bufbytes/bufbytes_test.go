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

package bufbytes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesWriteAccumulates(t *testing.T) {
	b := New(4)
	b.Write([]byte("hello"))
	b.Write([]byte("world"))
	assert.Equal(t, []byte("helloworld"), b.Bytes())
	assert.Equal(t, 10, b.Len())
}

func TestBytesEraseDropsPrefix(t *testing.T) {
	b := New(8)
	b.Write([]byte("ABCDEFGH"))
	b.Erase(3)
	assert.Equal(t, []byte("DEFGH"), b.Bytes())
	assert.Equal(t, 5, b.Len())

	b.Write([]byte("IJ"))
	assert.Equal(t, []byte("DEFGHIJ"), b.Bytes())
}

func TestBytesEraseBeyondLenClears(t *testing.T) {
	b := New(4)
	b.Write([]byte("abc"))
	b.Erase(100)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []byte{}, b.Bytes())
}

func TestBytesEraseNoopOnNonPositive(t *testing.T) {
	b := New(4)
	b.Write([]byte("abc"))
	b.Erase(0)
	assert.Equal(t, []byte("abc"), b.Bytes())
}

func TestBytesGrowReservesWithoutMutating(t *testing.T) {
	b := New(2)
	b.Write([]byte("ab"))
	b.Grow(64)
	assert.GreaterOrEqual(t, cap(b.buf), 66)
	assert.Equal(t, []byte("ab"), b.Bytes())
}

func TestBytesReset(t *testing.T) {
	b := New(4)
	b.Write([]byte("abcd"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}
