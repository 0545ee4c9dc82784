// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package orc detects One Definition Rule violations across the object
// files and static archives a linker would consume. Process parses
// every input's DWARF debug information, registers each definition
// under its symbol hash, and reports every symbol whose definitions
// disagree on an ODR-fatal attribute.
package orc

import (
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
	"github.com/odrcheck/orc/mach"
)

// Settings configures a run. Mutate Config before calling Process.
type Settings struct {
	// Parallel fans work out across the executor; when false every
	// task runs inline on its submitter.
	Parallel bool

	// GracefulExit downgrades report prefixes from "error" to
	// "warning"; the caller also uses it for its exit decision.
	GracefulExit bool

	// ShowProgress enables the caller's progress printing.
	ShowProgress bool

	// ViolationReport and ViolationIgnore are sorted category lists
	// consulted by FilterReport. Ignore wins when both are set.
	ViolationReport []string
	ViolationIgnore []string
}

// Config is the active settings.
var Config = Settings{Parallel: true}

func sortedHas(list []string, x string) bool {
	i := sort.SearchStrings(list, x)
	return i < len(list) && list[i] == x
}

// FilterReport decides whether report should be shown under the active
// category lists. Process never applies it; the caller does.
func FilterReport(r *Report) bool {
	category := r.Category()
	if len(Config.ViolationIgnore) > 0 {
		// Report everything except the stuff on the ignore list.
		return !sortedHas(Config.ViolationIgnore, category)
	}
	if len(Config.ViolationReport) > 0 {
		// Report nothing except the stuff on the report list.
		return sortedHas(Config.ViolationReport, category)
	}
	return true
}

// A reportSink collects reports from concurrent enforcement.
type reportSink struct {
	mu      sync.Mutex
	reports []Report
}

func (s *reportSink) push(r Report) {
	s.mu.Lock()
	s.reports = append(s.reports, r)
	s.mu.Unlock()
}

// enforceList performs ODRV enforcement for one chain: collect, sort by
// object ancestry, relink, and scan adjacent pairs for fatal-hash
// disagreement. Returns the sorted chain's head for the registry.
//
// Theory: if multiple copies of the same source file were compiled, the
// ancestry might not be unique. We assume that's an edge case and the
// ancestry is unique.
func enforceList(head *dw.Die, sink *reportSink) *dw.Die {
	var dies []*dw.Die
	for d := head; d != nil; d = d.Next {
		dies = append(dies, d)
	}
	if len(dies) == 0 {
		panic("empty die chain")
	}
	if len(dies) == 1 {
		return head
	}

	sort.SliceStable(dies, func(i, j int) bool {
		return mach.AncestryOf(dies[i].OFDIndex).Less(mach.AncestryOf(dies[j].OFDIndex))
	})

	conflict := false
	for i := 1; i < len(dies); i++ {
		dies[i-1].Next = dies[i]
		if !conflict {
			conflict = dies[i-1].FatalAttributeHash != dies[i].FatalAttributeHash
		}
	}
	dies[len(dies)-1].Next = nil

	if !conflict {
		return dies[0]
	}

	dies[0].Conflict = true
	Globals.ODRVCount.Add(1)
	sink.push(NewReport(pathToSymbol(dies[0].Path), dies[0]))
	return dies[0]
}

// Process runs the two-stage pipeline over the input paths: parse and
// register every DIE, wait for quiescence, then sweep the registry for
// conflicting chains. The returned reports are sorted by symbol and
// unfiltered; exit decisions belong to the caller.
func Process(paths []string) []Report {
	callbacks := mach.Callbacks{
		RegisterDies: RegisterDies,
		SubmitWork:   DoWork,
	}

	// First stage: process all the DIEs.
	for _, path := range paths {
		path := path
		DoWork(func() {
			if _, err := os.Stat(path); err != nil {
				Globals.FatalErrorCount.Add(1)
				logrus.Errorf("file %s does not exist", path)
				return
			}
			r, err := fio.Open(path)
			if err != nil {
				Globals.FatalErrorCount.Add(1)
				logrus.WithError(err).Error("opening input")
				return
			}
			if err := mach.ParseFile(path, dw.Ancestry{}, r, r.Size(), callbacks); err != nil {
				Globals.FatalErrorCount.Add(1)
				logrus.WithError(err).Error("parsing input")
			}
		})
	}

	work.wait()

	// Second stage: review DIEs for ODRVs.
	var sink reportSink
	dieMap.Range(func(key, value any) bool {
		head := value.(*dw.Die)
		DoWork(func() {
			if sorted := enforceList(head, &sink); sorted != head {
				dieMap.Store(key, sorted)
			}
		})
		return true
	})

	work.wait()

	sort.Slice(sink.reports, func(i, j int) bool {
		return sink.reports[i].Symbol < sink.reports[j].Symbol
	})
	return sink.reports
}
