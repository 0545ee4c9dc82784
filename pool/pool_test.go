// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pool

import (
	"fmt"
	"sync"
	"testing"

	"github.com/spaolacci/murmur3"
)

func TestInterning(t *testing.T) {
	a := Empool([]byte("::[u]::Foo::bar"))
	b := EmpoolString("::[u]::Foo::bar")
	if a != b {
		t.Error("equal bytes produced distinct handles")
	}
	if a.String() != "::[u]::Foo::bar" {
		t.Errorf("round trip = %q", a.String())
	}
	if a.Hash() != murmur3.Sum64([]byte("::[u]::Foo::bar")) {
		t.Error("handle hash != murmur3 of the bytes")
	}

	c := EmpoolString("::[u]::Foo::baz")
	if a == c {
		t.Error("distinct bytes produced equal handles")
	}
}

func TestEmptyHandle(t *testing.T) {
	e := Empool(nil)
	if !e.Empty() {
		t.Error("Empool(nil) is not the empty handle")
	}
	if e != (String{}) {
		t.Error("empty handle != zero String")
	}
	if e.View() != nil || e.String() != "" || e.Hash() != 0 {
		t.Error("empty handle has content")
	}
	if Empool([]byte{}) != e {
		t.Error("Empool of empty slice != empty handle")
	}
}

func TestConcurrentEmpool(t *testing.T) {
	const goroutines = 8
	const strings = 200

	results := make([][]String, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		g := g
		results[g] = make([]String, strings)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < strings; i++ {
				results[g][i] = EmpoolString(fmt.Sprintf("sym%d", i))
			}
		}()
	}
	wg.Wait()

	for g := 1; g < goroutines; g++ {
		for i := 0; i < strings; i++ {
			if results[g][i] != results[0][i] {
				t.Fatalf("goroutine %d got a distinct handle for sym%d", g, i)
			}
		}
	}
}

func TestLargeString(t *testing.T) {
	// Larger than a pond page; must still intern correctly.
	big := make([]byte, pondMin+17)
	for i := range big {
		big[i] = byte(i)
	}
	a := Empool(big)
	b := Empool(big)
	if a != b {
		t.Error("large string interned twice")
	}
	if len(a.View()) != len(big) {
		t.Errorf("len = %d, want %d", len(a.View()), len(big))
	}
}
