// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"sync/atomic"
)

// span is an offset+length pair into one of a Connection's fixed buffers,
// replacing a raw pointer into the mutating read buffer: the buffer is
// owned exclusively by the Connection, and a span is only valid until
// the next reset.
type span struct {
	start, length int
}

func (s span) slice(buf []byte) []byte {
	if s.length == 0 {
		return nil
	}
	return buf[s.start : s.start+s.length]
}

// Connection is the per-accepted-descriptor record. Exactly one worker
// at a time may mutate it; the reactor must not touch it while work is
// in flight — ownership is arbitrated by the improv/timerFlag handshake
// and the closePending/inFlight bits.
type Connection struct {
	fd       int
	peerAddr string

	readBuf  [readBufferSize]byte
	writeBuf [writeBufferSize]byte

	checkedIdx int
	readIdx    int
	startLine  int
	writeIdx   int

	main mainState

	reqMethod method
	// url/version/host are copied out of the read buffer during parsing
	// rather than kept as spans into it: the "/" -> "/judge.html" rewrite
	// and the http(s)://host strip both change the string's
	// length, so a span into the fixed-capacity buffer can't represent
	// them without risking an overwrite into not-yet-parsed header bytes.
	// body has no such rewrite, so it stays a span.
	url        string
	version    string
	host       string
	body       span
	contentLen int
	formPost   bool

	plan responsePlan

	// concurrency scratch.
	direction ioDirection
	improv    int32 // atomic: 1 once the worker has finished with this Connection
	timerFlag int32 // atomic: 1 if the worker's completion means "close now"

	// closePending lets the timing wheel fire on a Connection currently
	// held by a worker without racing the close: a bit is recorded
	// instead of closing directly.
	closePending int32

	// inFlight is set by the reactor right before Submit and cleared once
	// it has processed the worker's completion. It lets the timing wheel
	// (running on its own goroutine) tell whether a connection is
	// currently owned by a worker without touching reactor-only state.
	inFlight int32

	linger bool

	timer *timerEntry
}

// responsePlan is the response assembler's output for one request.
type responsePlan struct {
	targetPath string
	size       int64
	body       *mappedBody

	// vec holds 1 or 2 entries: always the header slice, optionally the
	// mapped body bytes appended as the second entry.
	vec [][]byte

	bytesToSend int
	bytesSent   int
}

func newConnection(fd int, peerAddr string) *Connection {
	c := &Connection{fd: fd, peerAddr: peerAddr}
	c.reset()
	return c
}

// reset zeroes scalars, clears cursors and sets main=REQUEST_LINE, used
// both on first init and on keep-alive reinitialize.
func (c *Connection) reset() {
	c.checkedIdx = 0
	c.readIdx = 0
	c.startLine = 0
	c.writeIdx = 0
	c.main = stateRequestLine
	c.reqMethod = methodGet
	c.url = ""
	c.version = ""
	c.host = ""
	c.body = span{}
	c.contentLen = 0
	c.formPost = false
	c.linger = false
	c.closePlanUnmap()
	c.plan = responsePlan{}
	atomic.StoreInt32(&c.improv, 0)
	atomic.StoreInt32(&c.timerFlag, 0)
}

func (c *Connection) closePlanUnmap() {
	if c.plan.body != nil {
		c.plan.body.Close()
		c.plan.body = nil
	}
}

// bodyBytes projects the retained body span back onto the read buffer.
// Valid until the next reset.
func (c *Connection) bodyBytes() []byte { return c.body.slice(c.readBuf[:]) }

// markDone is called by a worker when it has finished with this
// Connection, releasing it back to the reactor. failed=true sets
// timerFlag, which the reactor interprets as "close this connection now".
func (c *Connection) markDone(failed bool) {
	if failed {
		atomic.StoreInt32(&c.timerFlag, 1)
	}
	atomic.StoreInt32(&c.improv, 1)
}

func (c *Connection) isDone() bool   { return atomic.LoadInt32(&c.improv) == 1 }
func (c *Connection) didFail() bool  { return atomic.LoadInt32(&c.timerFlag) == 1 }
func (c *Connection) clearDone()     { atomic.StoreInt32(&c.improv, 0); atomic.StoreInt32(&c.timerFlag, 0) }

func (c *Connection) markClosePending() { atomic.StoreInt32(&c.closePending, 1) }
func (c *Connection) isClosePending() bool {
	return atomic.LoadInt32(&c.closePending) == 1
}

func (c *Connection) markInFlight()   { atomic.StoreInt32(&c.inFlight, 1) }
func (c *Connection) clearInFlight()  { atomic.StoreInt32(&c.inFlight, 0) }
func (c *Connection) isInFlight() bool { return atomic.LoadInt32(&c.inFlight) == 1 }

// destroy releases resources on close. Deregistration
// from the poller and descriptor close are the reactor's responsibility
// and happen in reactor.go; this only unmaps the body.
func (c *Connection) destroy() {
	c.closePlanUnmap()
}
