// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package orc

import (
	"sync"
	"sync/atomic"

	"github.com/odrcheck/orc/dw"
)

// Globals holds the run-wide progress and outcome counters.
var Globals struct {
	DieProcessedCount atomic.Uint64
	DieAnalyzedCount  atomic.Uint64
	UniqueSymbolCount atomic.Uint64
	ODRVCount         atomic.Uint64
	FatalErrorCount   atomic.Uint64
}

// The backbone keeps every registered batch alive and immovable. The
// DIEs become entangled as they chain to one another by pointer, and
// the registry map stores pointers to them, so batches are appended
// whole and never moved for the lifetime of the process.
var backbone struct {
	mu      sync.Mutex
	batches [][]dw.Die
}

// dieMap is the registry: symbol hash to head of chain. Reads are
// lock-free; the head pointer is set once on first insert and never
// replaced during registration (enforcement may later store a resorted
// head).
var dieMap sync.Map

// Chain appends serialize per hash stripe.
const chainMutexCount = 67 // prime; to help reduce any hash bias

var chainMutexes [chainMutexCount]sync.Mutex

// RegisterDies moves batch into the backbone and registers every
// non-skippable DIE: at-most-once insertion per symbol hash, with each
// duplicate linked in directly behind the head, so the rest of the
// chain runs in reverse discovery order.
func RegisterDies(batch []dw.Die) {
	backbone.mu.Lock()
	backbone.batches = append(backbone.batches, batch)
	dies := backbone.batches[len(backbone.batches)-1]
	backbone.mu.Unlock()

	Globals.DieProcessedCount.Add(uint64(len(dies)))

	for i := range dies {
		d := &dies[i]
		if d.Skippable {
			continue
		}

		actual, loaded := dieMap.LoadOrStore(d.Hash, d)
		if !loaded {
			Globals.UniqueSymbolCount.Add(1)
			continue
		}

		head := actual.(*dw.Die)
		m := &chainMutexes[d.Hash%chainMutexCount]
		m.Lock()
		d.Next = head.Next
		head.Next = d
		m.Unlock()
	}

	Globals.DieAnalyzedCount.Add(uint64(len(dies)))
}

// Reset clears the registry map and the backbone, but not the string
// pool. Test hook.
func Reset() {
	dieMap.Range(func(k, _ any) bool {
		dieMap.Delete(k)
		return true
	})
	backbone.mu.Lock()
	backbone.batches = nil
	backbone.mu.Unlock()
	Globals.DieProcessedCount.Store(0)
	Globals.DieAnalyzedCount.Store(0)
	Globals.UniqueSymbolCount.Store(0)
	Globals.ODRVCount.Store(0)
	Globals.FatalErrorCount.Store(0)
}
