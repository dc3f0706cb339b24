// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timerEntry is a Connection's node in the timing wheel. Every entry in
// the wheel shares the same idle timeout, so repositioning an extended
// entry to the tail keeps the list sorted by expiry without a separate
// reorder step.
type timerEntry struct {
	deadline time.Time
	conn     *Connection
	elem     *list.Element
}

// timerWheel is a sorted-by-expiry list of per-connection deadlines, swept
// periodically to close idle connections. original_source's
// main.cpp arms alarm(TIMESLOT) with TIMESLOT=5s; sweepInterval defaults
// to that.
type timerWheel struct {
	mu          sync.Mutex
	entries     *list.List // of *timerEntry, ascending expiry
	idleTimeout time.Duration
	onExpire    func(*Connection)
	log         *zap.Logger

	stop chan struct{}
}

func newTimerWheel(idleTimeout time.Duration, onExpire func(*Connection), log *zap.Logger) *timerWheel {
	return &timerWheel{
		entries:     list.New(),
		idleTimeout: idleTimeout,
		onExpire:    onExpire,
		log:         log,
		stop:        make(chan struct{}),
	}
}

// Insert arms a new deadline for c (step 1 "install a timer
// entry with deadline = now + idle-timeout").
func (w *timerWheel) Insert(c *Connection) {
	w.mu.Lock()
	defer w.mu.Unlock()

	te := &timerEntry{deadline: time.Now().Add(w.idleTimeout), conn: c}
	te.elem = w.entries.PushBack(te)
	c.timer = te
}

// Extend repositions c's entry to the tail with a fresh deadline, called
// on any I/O progress: the entry is extended by the idle timeout and
// moved to the back of the list.
func (w *timerWheel) Extend(c *Connection) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c.timer == nil {
		te := &timerEntry{deadline: time.Now().Add(w.idleTimeout), conn: c}
		te.elem = w.entries.PushBack(te)
		c.timer = te
		return
	}
	c.timer.deadline = time.Now().Add(w.idleTimeout)
	w.entries.MoveToBack(c.timer.elem)
}

// Remove cancels c's entry, e.g. on peer-closed/error or explicit close.
func (w *timerWheel) Remove(c *Connection) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c.timer == nil {
		return
	}
	w.entries.Remove(c.timer.elem)
	c.timer = nil
}

// sweep closes every connection whose expiry has passed, removing its
// entry. Because the list is kept in ascending-expiry order,
// sweep can stop at the first unexpired entry.
func (w *timerWheel) sweep() {
	now := time.Now()

	var expired []*Connection
	w.mu.Lock()
	for e := w.entries.Front(); e != nil; {
		next := e.Next()
		te := e.Value.(*timerEntry)
		if te.deadline.After(now) {
			break
		}
		w.entries.Remove(e)
		te.conn.timer = nil
		expired = append(expired, te.conn)
		e = next
	}
	w.mu.Unlock()

	for _, c := range expired {
		if w.log != nil {
			w.log.Debug("idle timeout", zap.Int("fd", c.fd))
		}
		w.onExpire(c)
	}
}

// Run sweeps every interval until Stop is called. Only the reactor
// goroutine calls Insert/Extend/Remove; the sweep, and the onExpire
// callbacks it makes, run on Run's own ticker goroutine, and the sweep is
// serialized against inserts/deletes by the single mutex.
func (w *timerWheel) Run(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.sweep()
		case <-w.stop:
			return
		}
	}
}

func (w *timerWheel) Stop() {
	close(w.stop)
}
