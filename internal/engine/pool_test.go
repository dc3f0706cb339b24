// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolProcessesSubmittedWork(t *testing.T) {
	var processed int32
	var wg sync.WaitGroup
	wg.Add(3)

	p := newWorkerPool(2, 8, func(c *Connection) {
		atomic.AddInt32(&processed, 1)
		c.markDone(false)
		wg.Done()
	}, nil)
	defer p.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(newConnection(-1, "")))
	}

	waitOrTimeout(t, &wg, time.Second)
	assert.EqualValues(t, 3, atomic.LoadInt32(&processed))
}

func TestWorkerPoolRejectsWhenQueueFull(t *testing.T) {
	// Zero workers: nothing ever drains the queue, so capacity checks
	// are deterministic instead of racing a worker's dequeue.
	p := newWorkerPool(0, 2, func(c *Connection) {}, nil)
	defer p.Close()

	require.NoError(t, p.Submit(newConnection(-1, "")))
	require.NoError(t, p.Submit(newConnection(-1, "")))
	err := p.Submit(newConnection(-1, ""))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestWorkerPoolRecoversPanickingHandler(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	p := newWorkerPool(1, 4, func(c *Connection) {
		defer wg.Done()
		panic("boom")
	}, nil)
	defer p.Close()

	c := newConnection(-1, "")
	require.NoError(t, p.Submit(c))
	waitOrTimeout(t, &wg, time.Second)

	assert.True(t, c.isDone())
	assert.True(t, c.didFail())
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for workers")
	}
}
