// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"os"

	"github.com/xujiajun/mmap-go"
)

// mappedBody is a scoped read-only mapping of a response body file. It is
// a shared mapping (mmap.RDONLY), not a private copy-on-write one. The
// mapping must be released on
// every exit path; callers do this via Close, which this type makes safe
// to call more than once.
type mappedBody struct {
	data mmap.MMap
}

// mapFile opens path read-only, stats it, and maps the whole file
// read-only (shared). The file descriptor is closed once the mapping is
// established; the mapping itself survives.
func mapFile(path string) (*mappedBody, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	size := fi.Size()
	if size == 0 {
		// A zero-length mapping is invalid; the caller substitutes the
		// canned empty-body HTML
		return &mappedBody{}, 0, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, 0, err
	}
	return &mappedBody{data: m}, size, nil
}

func (b *mappedBody) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *mappedBody) Close() error {
	if b == nil || b.data == nil {
		return nil
	}
	d := b.data
	b.data = nil
	return d.Unmap()
}
