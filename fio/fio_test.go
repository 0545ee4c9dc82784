// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fio

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/odrcheck/orc/arch"
)

func writeTemp(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReaderBasics(t *testing.T) {
	data := []byte("hello\x00world\x01\x02\x03\x04")
	r, err := Open(writeTemp(t, data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Tell() != 0 || r.Size() != int64(len(data)) {
		t.Fatalf("Tell=%d Size=%d, want 0 %d", r.Tell(), r.Size(), len(data))
	}

	if got := r.CString(); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("CString = %q, want %q", got, "hello")
	}
	if r.Tell() != 6 {
		t.Errorf("Tell after CString = %d, want 6", r.Tell())
	}

	p := make([]byte, 5)
	r.Read(p)
	if !bytes.Equal(p, []byte("world")) {
		t.Errorf("Read = %q, want %q", p, "world")
	}

	if got := r.Uint32(arch.HostLayout); got != 0x04030201 {
		t.Errorf("Uint32 = %#x, want 0x04030201", got)
	}
	if r.Size() != 0 {
		t.Errorf("Size at end = %d, want 0", r.Size())
	}

	r.Seek(0, io.SeekStart)
	if r.Byte() != 'h' {
		t.Error("Byte after rewind != 'h'")
	}
	r.Seek(4, io.SeekEnd)
	if got := r.Uint32(arch.ForFile(true)); got != 0x01020304 {
		t.Errorf("swapped Uint32 = %#x, want 0x01020304", got)
	}
}

func TestTempSeek(t *testing.T) {
	r, err := Open(writeTemp(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	r.Seek(2, io.SeekStart)
	err = r.TempSeek(6, func() error {
		if r.Byte() != 7 {
			t.Error("byte at temp position != 7")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if r.Tell() != 2 {
		t.Errorf("Tell after TempSeek = %d, want 2", r.Tell())
	}

	// The position must be restored on the failure path too.
	fail := errors.New("boom")
	if err := r.TempSeek(5, func() error { return fail }); err != fail {
		t.Errorf("TempSeek error = %v, want %v", err, fail)
	}
	if r.Tell() != 2 {
		t.Errorf("Tell after failed TempSeek = %d, want 2", r.Tell())
	}
}

func TestSubbuf(t *testing.T) {
	data := make([]byte, 64*1024)
	for i := range data {
		data[i] = byte(i)
	}
	r, err := Open(writeTemp(t, data))
	if err != nil {
		t.Fatal(err)
	}

	r.Seek(40000, io.SeekStart)
	sub, err := r.Subbuf(50000)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	// The parent mapping can drop; the child stays valid.
	r.Close()

	if sub.Tell() != 40000 {
		t.Errorf("sub.Tell = %d, want 40000", sub.Tell())
	}
	if sub.Size() != 10000 {
		t.Errorf("sub.Size = %d, want 10000", sub.Size())
	}
	if got := sub.Byte(); got != data[40000] {
		t.Errorf("sub byte at 40000 = %#x, want %#x", got, data[40000])
	}
	sub.Seek(49999, io.SeekStart)
	if got := sub.Byte(); got != data[49999] {
		t.Errorf("sub byte at 49999 = %#x, want %#x", got, data[49999])
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("Open of missing file succeeded")
	}
}
