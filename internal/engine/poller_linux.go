// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Event is a reported readiness for one descriptor.
type Event struct {
	Fd         int
	Readable   bool
	Writable   bool
	PeerClosed bool
	Error      bool
}

// poller wraps epoll: register/modify/unregister one-shot-or-not,
// edge-or-level descriptors and reports ready sets. Single-writer: only
// the reactor goroutine ever calls into it; workers never touch it
// directly.
type poller struct {
	epfd int

	mu     sync.Mutex
	closed bool
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &poller{epfd: epfd}, nil
}

func (p *poller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

func eventMask(readable, writable, edge, oneshot bool) uint32 {
	var ev uint32
	if readable {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if writable {
		ev |= unix.EPOLLOUT
	}
	if edge {
		ev |= unix.EPOLLET
	}
	if oneshot {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

// Register arms fd for readability (and writability, if requested),
// optionally edge-triggered and one-shot. When edge is true the caller
// must already have set fd non-blocking.
func (p *poller) Register(fd int, writable, edge, oneshot bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	ev := &unix.EpollEvent{
		Events: eventMask(true, writable, edge, oneshot),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev)
}

// Modify rearms fd, e.g. switching from EPOLLIN to EPOLLOUT after a
// partial write, or back to EPOLLIN after a completed response. Every
// rearm must re-set edge+one-shot when those modes are active.
func (p *poller) Modify(fd int, writable, edge, oneshot bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	ev := &unix.EpollEvent{
		Events: eventMask(!writable, writable, edge, oneshot) | unix.EPOLLRDHUP,
		Fd:     int32(fd),
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *poller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPollerClosed
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks up to timeoutMillis (-1 for indefinite) and returns the
// ready set. peer-closed/error are reported per descriptor, implying the
// connection is to be closed.
func (p *poller) Wait(timeoutMillis int, buf []unix.EpollEvent) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, buf, timeoutMillis)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		e := buf[i]
		out = append(out, Event{
			Fd:         int(e.Fd),
			Readable:   e.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			Writable:   e.Events&unix.EPOLLOUT != 0,
			PeerClosed: e.Events&unix.EPOLLRDHUP != 0,
			Error:      e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return out, nil
}

// setNonblock is required for every descriptor registered in edge mode.
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}
