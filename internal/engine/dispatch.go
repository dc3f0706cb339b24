// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"golang.org/x/sys/unix"
)

// fillFromSocket reads whatever is currently available into c.readBuf. In
// level-triggered mode a single recv is enough to clear readiness; in
// edge-triggered mode it must loop until EAGAIN or the buffer fills,
// since no further EPOLLIN will be reported until new bytes arrive.
// Every successful recv advances readIdx exactly once, and the
// buffer-full check stops at capacity rather than past it, so no recv is
// ever issued into a full buffer (double-advance and off-by-one capacity
// check are the two historical bugs in this read loop). A full buffer
// reports failure in level-triggered mode; in edge-triggered mode it
// ends the loop successfully and leaves the buffered bytes to the parser.
func (r *Reactor) fillFromSocket(c *Connection) bool {
	edge := r.cfg.TriggerMode.clientEdge()
	for {
		if c.readIdx >= readBufferSize {
			return edge // buffer full: still usable, parser may already have a complete request
		}
		n, err := unix.Read(c.fd, c.readBuf[c.readIdx:])
		switch {
		case n > 0:
			if c.advanceReadIdx(n) != nil {
				return false
			}
			if !edge {
				return true
			}
		case n == 0:
			return false
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return true
		case err == unix.EINTR:
			continue
		default:
			return false
		}
	}
}

// writevLoop drains c.plan.vec starting at bytesSent, advancing the
// vector on every partial write rather than restarting from byte zero.
func (r *Reactor) writevLoop(c *Connection) (done bool, err error) {
	for c.plan.bytesSent < c.plan.bytesToSend {
		iovs := remainingVectors(c.plan.vec, c.plan.bytesSent)
		nn, werr := unix.Writev(c.fd, iovs)
		n := int(nn)
		switch {
		case n > 0:
			c.plan.bytesSent += n
		case werr == unix.EAGAIN || werr == unix.EWOULDBLOCK:
			return false, nil
		case werr == unix.EINTR:
			continue
		default:
			return false, werr
		}
	}
	return true, nil
}

// remainingVectors returns the suffix of vec starting sent bytes in,
// splitting the first partially-consumed entry.
func remainingVectors(vec [][]byte, sent int) [][]byte {
	out := make([][]byte, 0, len(vec))
	skip := sent
	for _, v := range vec {
		if skip >= len(v) {
			skip -= len(v)
			continue
		}
		out = append(out, v[skip:])
		skip = 0
	}
	return out
}

// runParseAndAssemble drives the parser to completion against whatever
// is currently buffered, then assembles the matching response. Shared by
// both dispatch models: proactor calls it right after the reactor's own
// read; reactor-model calls it after the worker's own read.
func (r *Reactor) runParseAndAssemble(c *Connection) {
	switch parse(c) {
	case resultNoRequest:
		c.markDone(false)
		return
	case resultBadRequest:
		if assembleCanned(c, 404, title404, body404, false) != nil {
			c.markDone(true)
			return
		}
	case resultInternalError:
		if assembleInternalError(c) != nil {
			c.markDone(true)
			return
		}
	case resultGetRequest:
		if assemble(c, r.cfg.DocRoot, r.creds) != nil {
			c.markDone(true)
			return
		}
	}

	if _, err := r.writevLoop(c); err != nil {
		c.markDone(true)
		return
	}
	c.markDone(false)
}

// processProactorModel is the worker entry point when DispatchModel is
// ModelProactor: the reactor has already read the available bytes, so
// the worker only parses, assembles and writes.
func (r *Reactor) processProactorModel(c *Connection) {
	r.runParseAndAssemble(c)
}

// processReactorModel is the worker entry point when DispatchModel is
// ModelReactor: the worker performs the read or write loop itself,
// tagged by c.direction at submit time.
func (r *Reactor) processReactorModel(c *Connection) {
	switch c.direction {
	case directionRead:
		if !r.fillFromSocket(c) {
			c.markDone(true)
			return
		}
		r.runParseAndAssemble(c)
	case directionWrite:
		if _, err := r.writevLoop(c); err != nil {
			c.markDone(true)
			return
		}
		c.markDone(false)
	}
}

// sockaddrString renders a peer address for logging only; failures fall
// back to an empty string rather than propagating, since this never
// gates correctness.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return ipPortString(a.Addr[:], a.Port)
	case *unix.SockaddrInet6:
		return ipPortString(a.Addr[:], a.Port)
	default:
		return ""
	}
}

func ipPortString(ip []byte, port int) string {
	addr := make([]byte, 0, 46)
	for i, b := range ip {
		if i > 0 && len(ip) == 4 {
			addr = append(addr, '.')
		}
		addr = appendUint(addr, uint(b))
	}
	addr = append(addr, ':')
	addr = appendUint(addr, uint(port))
	return string(addr)
}

func appendUint(dst []byte, v uint) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(dst, tmp[i:]...)
}
