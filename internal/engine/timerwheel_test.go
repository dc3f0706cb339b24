// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerWheelSweepExpiresIdleConnections(t *testing.T) {
	var mu sync.Mutex
	var expired []*Connection

	w := newTimerWheel(20*time.Millisecond, func(c *Connection) {
		mu.Lock()
		expired = append(expired, c)
		mu.Unlock()
	}, nil)

	c := newConnection(7, "")
	w.Insert(c)

	time.Sleep(40 * time.Millisecond)
	w.sweep()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, expired, 1)
	assert.Same(t, c, expired[0])
}

func TestTimerWheelExtendPreventsExpiry(t *testing.T) {
	var fired bool
	w := newTimerWheel(30*time.Millisecond, func(c *Connection) {
		fired = true
	}, nil)

	c := newConnection(7, "")
	w.Insert(c)

	time.Sleep(15 * time.Millisecond)
	w.Extend(c)
	time.Sleep(15 * time.Millisecond)
	w.sweep()

	assert.False(t, fired)
}

func TestTimerWheelRemoveCancels(t *testing.T) {
	var fired bool
	w := newTimerWheel(10*time.Millisecond, func(c *Connection) {
		fired = true
	}, nil)

	c := newConnection(7, "")
	w.Insert(c)
	w.Remove(c)

	time.Sleep(20 * time.Millisecond)
	w.sweep()

	assert.False(t, fired)
	assert.Nil(t, c.timer)
}
