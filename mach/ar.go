// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mach

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/odrcheck/orc/dw"
	"github.com/odrcheck/orc/fio"
)

// BSD ar layout: an 8-byte "!<arch>\n" signature, then 60-byte member
// headers each followed by the member body, 2-byte aligned.
const (
	arSignatureSize = 8
	arHeaderSize    = 60
)

// readAr walks every member of an ar archive, recursing into each real
// member with the ancestry extended by the member name. Symbol table
// members (__.SYMDEF and friends) are skipped by name.
func readAr(ancestry dw.Ancestry, r *fio.Reader, endPos int64, d FileDetails, cb Callbacks) error {
	r.Seek(d.Offset+arSignatureSize, io.SeekStart)

	var header [arHeaderSize]byte
	for r.Tell()+arHeaderSize <= endPos {
		r.Read(header[:])

		if header[58] != '`' || header[59] != '\n' {
			return errors.Errorf("ar: bad member header terminator at %#x", r.Tell()-arHeaderSize)
		}

		name := strings.TrimRight(string(header[0:16]), " ")
		size, err := strconv.ParseInt(strings.TrimSpace(string(header[48:58])), 10, 64)
		if err != nil {
			return errors.Wrapf(err, "ar: bad member size for %q", name)
		}

		bodyStart := r.Tell()
		next := bodyStart + size
		if size%2 != 0 {
			// Odd-sized bodies are padded to the 2-byte boundary.
			next++
		}

		memberSize := size
		if strings.HasPrefix(name, "#1/") {
			// BSD extended name: the real name occupies the first
			// <len> bytes of the body and is deducted from it.
			nameLen, err := strconv.Atoi(name[3:])
			if err != nil {
				return errors.Wrapf(err, "ar: bad extended name length %q", name)
			}
			raw := make([]byte, nameLen)
			r.Read(raw)
			name = string(bytes.TrimRight(raw, "\x00"))
			memberSize -= int64(nameLen)
		}

		if !strings.HasPrefix(name, "__.SYMDEF") && memberSize > 0 {
			member, err := r.Subbuf(r.Tell() + memberSize)
			if err != nil {
				return errors.Wrapf(err, "ar: member %q", name)
			}
			if err := ParseFile(name, ancestry, member, member.End(), cb); err != nil {
				return errors.Wrapf(err, "ar: member %q", name)
			}
		}

		r.Seek(next, io.SeekStart)
	}
	return nil
}
