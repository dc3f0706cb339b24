// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import "errors"

var (
	// ErrQueueFull is returned by the worker pool when the bounded FIFO
	// is at capacity. The reactor closes the connection.
	ErrQueueFull = errors.New("engine: worker queue full")

	// ErrBufferOverflow signals a read that would exceed the fixed read
	// buffer capacity.
	ErrBufferOverflow = errors.New("engine: read buffer overflow")

	// ErrWriteBufferOverflow signals header assembly that would exceed
	// the fixed write buffer capacity.
	ErrWriteBufferOverflow = errors.New("engine: write buffer overflow")

	// ErrPollerClosed is returned by poller operations after Close.
	ErrPollerClosed = errors.New("engine: poller closed")
)
