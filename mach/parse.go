// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mach

import (
	"github.com/pkg/errors"

	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
	"github.com/odrcheck/orc/pool"
)

// Callbacks are the two hooks the parser needs from its caller: a sink
// for materialized DIE batches and an executor for fan-out.
type Callbacks struct {
	RegisterDies dw.RegisterDies
	SubmitWork   dw.SubmitWork
}

// ParseFile classifies the container at the cursor and descends into
// it. objectName extends the ancestry: the filesystem path for a root
// file, a member name inside an ar, an arch name inside a fat binary.
// endPos bounds the readable range; the cursor must sit at the
// container's first byte.
func ParseFile(objectName string, ancestry dw.Ancestry, r *fio.Reader, endPos int64, cb Callbacks) error {
	d, err := DetectFile(r)
	if err != nil {
		return errors.Wrap(err, objectName)
	}

	ancestry = ancestry.PushBack(pool.EmpoolString(objectName))

	switch d.Format {
	case FormatMacho:
		return readMacho(ancestry, r, endPos, d, cb)
	case FormatAr:
		return readAr(ancestry, r, endPos, d, cb)
	case FormatFat:
		return readFat(ancestry, r, endPos, d, cb)
	}
	return errors.Errorf("%s: unknown file format", objectName)
}
