// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dw

import (
	"math"
	"math/rand"
	"testing"

	"github.com/odrcheck/orc/arch"
)

func TestUlebRoundTrip(t *testing.T) {
	cases := []uint64{
		0, 1, 0x7f, 0x80, 0x81, 0x3fff, 0x4000,
		1<<32 - 1, 1 << 32, 1<<63 - 1, math.MaxUint64,
	}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		cases = append(cases, uint64(r.Uint32()))
	}

	for _, want := range cases {
		enc := AppendUleb(nil, want)
		b := &buf{b: enc, layout: arch.HostLayout}
		if got := b.uleb(); got != want {
			t.Errorf("uleb round trip of %d = %d", want, got)
		}
		if b.pos != len(enc) {
			t.Errorf("uleb(%d) consumed %d of %d bytes", want, b.pos, len(enc))
		}
	}
}

func TestSlebRoundTrip(t *testing.T) {
	cases := []int64{
		0, 1, -1, 63, 64, -64, -65, 127, 128, -128,
		math.MinInt32, math.MaxInt32, math.MinInt64, math.MaxInt64,
	}
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		cases = append(cases, int64(int32(r.Uint32())))
	}

	for _, want := range cases {
		enc := AppendSleb(nil, want)
		b := &buf{b: enc, layout: arch.HostLayout}
		if got := b.sleb(); got != want {
			t.Errorf("sleb round trip of %d = %d", want, got)
		}
		if b.pos != len(enc) {
			t.Errorf("sleb(%d) consumed %d of %d bytes", want, b.pos, len(enc))
		}
	}
}

func TestUlebDrainsOverlongEncoding(t *testing.T) {
	// Continuation bytes past the accumulator width must still be
	// consumed so the cursor lands on the next datum.
	enc := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x81, 0x00, 0x2a}
	b := &buf{b: enc, layout: arch.HostLayout}
	b.uleb()
	if got := b.u8(); got != 0x2a {
		t.Errorf("byte after overlong uleb = %#x, want 0x2a", got)
	}
}
