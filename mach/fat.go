// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mach

import (
	"io"

	"github.com/pkg/errors"

	"github.com/odrcheck/orc/arch"
	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
)

type fatArch struct {
	cputype uint32
	offset  int64
	size    int64
}

// readFat decodes the architecture table of a universal binary and
// recurses into every slice, extending the ancestry with the decoded
// arch name ("x86_64", "arm64", ...). Fat header fields are big endian.
func readFat(ancestry dw.Ancestry, r *fio.Reader, endPos int64, d FileDetails, cb Callbacks) error {
	l := arch.ForFile(d.NeedsByteswap)

	r.Seek(d.Offset+4, io.SeekStart)
	nfat := r.Uint32(l)

	slices := make([]fatArch, 0, nfat)
	for i := uint32(0); i < nfat; i++ {
		var fa fatArch
		fa.cputype = r.Uint32(l)
		r.Uint32(l) // cpusubtype
		if d.Is64Bit {
			fa.offset = int64(r.Uint64(l))
			fa.size = int64(r.Uint64(l))
			r.Uint32(l) // align
			r.Uint32(l) // reserved
		} else {
			fa.offset = int64(r.Uint32(l))
			fa.size = int64(r.Uint32(l))
			r.Uint32(l) // align
		}
		slices = append(slices, fa)
	}

	for _, fa := range slices {
		if d.Offset+fa.offset+fa.size > endPos {
			return errors.Errorf("fat: slice [%#x, %#x) outside file", fa.offset, fa.offset+fa.size)
		}
		r.Seek(d.Offset+fa.offset, io.SeekStart)
		slice, err := r.Subbuf(r.Tell() + fa.size)
		if err != nil {
			return errors.Wrap(err, "fat: slice")
		}
		name := arch.FromCPUType(fa.cputype).String()
		if err := ParseFile(name, ancestry, slice, slice.End(), cb); err != nil {
			return errors.Wrapf(err, "fat: slice %s", name)
		}
	}
	return nil
}
