// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// pollTimeoutMillis bounds how long a single poller.Wait blocks, so the
// reactor also gets a chance to poll worker completions and drain the
// timing wheel's expired-connection notifications even during a quiet
// period with no new readiness events.
const pollTimeoutMillis = 200

// Reactor owns the poller and the listen descriptor. It is the sole
// writer of poller state; workers never touch the poller directly.
type Reactor struct {
	cfg   Config
	log   *zap.Logger
	poll  *poller
	pool  *workerPool
	wheel *timerWheel
	creds CredentialStore

	listenFd int
	conns    map[int]*Connection
	inFlight map[int]*Connection

	expired chan *Connection
}

// Run wires the poller, worker pool and timing wheel together and blocks
// serving connections accepted from listenFd until an unrecoverable
// poller error occurs. listenFd must already be bound and listening;
// creating and binding it is the external bootstrap's job — cmd/tinyhttpd
// does this before calling Run. Run itself sets it non-blocking.
func Run(cfg Config, listenFd int, creds CredentialStore, log *zap.Logger) error {
	p, err := newPoller()
	if err != nil {
		return err
	}
	defer p.Close()

	r := &Reactor{
		cfg:      cfg,
		log:      log,
		poll:     p,
		creds:    creds,
		listenFd: listenFd,
		conns:    make(map[int]*Connection),
		inFlight: make(map[int]*Connection),
		expired:  make(chan *Connection, 1024),
	}

	r.wheel = newTimerWheel(cfg.IdleTimeout, r.onExpire, log)
	go r.wheel.Run(cfg.SweepInterval)
	defer r.wheel.Stop()

	process := r.processReactorModel
	if cfg.DispatchModel == ModelProactor {
		process = r.processProactorModel
	}
	r.pool = newWorkerPool(cfg.WorkerCount, cfg.MaxQueueLen, process, log)
	defer r.pool.Close()

	if err := setNonblock(listenFd); err != nil {
		return err
	}
	if err := p.Register(listenFd, false, cfg.TriggerMode.listenerEdge(), false); err != nil {
		return err
	}

	return r.loop()
}

func (r *Reactor) loop() error {
	buf := make([]unix.EpollEvent, 256)
	for {
		events, err := r.poll.Wait(pollTimeoutMillis, buf)
		if err != nil {
			return err
		}
		for _, ev := range events {
			r.handleEvent(ev)
		}
		r.pollCompletions()
		r.drainExpired()
	}
}

func (r *Reactor) handleEvent(ev Event) {
	if ev.Fd == r.listenFd {
		r.acceptLoop()
		return
	}

	c, ok := r.conns[ev.Fd]
	if !ok {
		return
	}

	if ev.PeerClosed || ev.Error {
		r.closeConn(c)
		return
	}
	if ev.Readable {
		r.wheel.Extend(c)
		r.onReadable(c)
	}
	if ev.Writable {
		r.onWritable(c)
	}
}

func (r *Reactor) acceptLoop() {
	for {
		fd, sa, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			if r.log != nil {
				r.log.Warn("accept failed", zap.Error(err))
			}
			return
		}

		c := newConnection(fd, sockaddrString(sa))
		r.conns[fd] = c
		r.wheel.Insert(c)
		if r.log != nil {
			r.log.Debug("accepted connection", zap.Int("fd", fd), zap.String("peer", c.peerAddr))
		}

		if err := r.poll.Register(fd, false, r.cfg.TriggerMode.clientEdge(), true); err != nil {
			if r.log != nil {
				r.log.Warn("register client fd failed", zap.Error(err))
			}
			r.closeConn(c)
			continue
		}

		if !r.cfg.TriggerMode.listenerEdge() {
			// Level-triggered listener: one Accept per wakeup, matching
			// "accept all pending (EDGE) or one (LEVEL)".
			return
		}
	}
}

// onReadable performs the read step of step 3: in proactor the
// reactor reads directly then submits; in reactor mode it tags READ and
// submits, leaving the read itself to the worker.
func (r *Reactor) onReadable(c *Connection) {
	if r.cfg.DispatchModel == ModelProactor {
		ok := r.fillFromSocket(c)
		if !ok {
			r.closeConn(c)
			return
		}
		r.submit(c, directionRead)
		return
	}
	r.submit(c, directionRead)
}

// onWritable performs step 4: in proactor the reactor itself
// drives the writev loop to resume a previously-blocked write; in
// reactor mode it tags WRITE and lets the worker do it.
func (r *Reactor) onWritable(c *Connection) {
	if r.cfg.DispatchModel == ModelProactor {
		done, err := r.writevLoop(c)
		if err != nil {
			r.closeConn(c)
			return
		}
		if done {
			r.onResponseComplete(c, nil)
		} else {
			r.rearm(c, true)
		}
		return
	}
	r.submit(c, directionWrite)
}

func (r *Reactor) submit(c *Connection, dir ioDirection) {
	c.direction = dir
	c.markInFlight()
	r.inFlight[c.fd] = c
	if err := r.pool.Submit(c); err != nil {
		delete(r.inFlight, c.fd)
		c.clearInFlight()
		if r.log != nil {
			r.log.Warn("worker queue full, closing connection", zap.Int("fd", c.fd), zap.String("peer", c.peerAddr))
		}
		r.closeConn(c)
	}
}

// pollCompletions is step 5: inspect every in-flight
// connection's completion handshake and act on it.
func (r *Reactor) pollCompletions() {
	for fd, c := range r.inFlight {
		if !c.isDone() {
			continue
		}
		delete(r.inFlight, fd)
		c.clearInFlight()
		c.clearDone()

		if c.isClosePending() || c.didFail() {
			r.closeConn(c)
			continue
		}

		if c.plan.bytesToSend == 0 {
			// No response was assembled this round (the request wasn't
			// complete yet): keep waiting for more bytes, never treat
			// this as a finished response.
			r.rearm(c, false)
			continue
		}
		if c.plan.bytesSent >= c.plan.bytesToSend {
			r.onResponseComplete(c, nil)
			continue
		}
		r.rearm(c, true)
	}
}

// rearm re-registers fd for the correct direction: EPOLLOUT if a
// response is still partially unsent, EPOLLIN otherwise — exactly once
// per completion, never both (a connection with no request yet buffered
// rearms EPOLLIN and returns; a dispatched response rearms EPOLLOUT only
// when truly incomplete).
func (r *Reactor) rearm(c *Connection, wantWrite bool) {
	edge := r.cfg.TriggerMode.clientEdge()
	if err := r.poll.Modify(c.fd, wantWrite, edge, true); err != nil {
		r.closeConn(c)
	}
}

// onResponseComplete reinitializes the connection for the next
// keep-alive request, or closes it.
func (r *Reactor) onResponseComplete(c *Connection, _ error) {
	if !c.linger || !r.cfg.KeepAlive {
		r.closeConn(c)
		return
	}
	c.reset()
	r.rearm(c, false)
}

func (r *Reactor) onExpire(c *Connection) {
	if c.isInFlight() {
		// The worker still owns c; record the bit instead of closing.
		// pollCompletions will close it once the worker's completion
		// handshake is observed.
		c.markClosePending()
		return
	}
	select {
	case r.expired <- c:
	default:
		c.markClosePending()
	}
}

func (r *Reactor) drainExpired() {
	for {
		select {
		case c := <-r.expired:
			r.closeConn(c)
		default:
			return
		}
	}
}

// closeConn tears C down: cancel its timer, deregister from the poller,
// close the descriptor, release any mapped body.
func (r *Reactor) closeConn(c *Connection) {
	if _, ok := r.conns[c.fd]; !ok {
		return
	}
	delete(r.conns, c.fd)
	delete(r.inFlight, c.fd)
	r.wheel.Remove(c)
	r.poll.Unregister(c.fd)
	unix.Close(c.fd)
	c.destroy()
}
