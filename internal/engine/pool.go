// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// workerPool is a fixed set of goroutines draining a bounded FIFO of
// ready connections, grounded on
// original_source/threadpool/threadpool.h's sem_t + locker + bounded
// std::list<T*> shape. golang.org/x/sync/semaphore.Weighted stands in
// for the C++ sem_t: the pool drains it to zero up front and then uses
// Release(1)/Acquire(1) as post/wait, exactly mirroring sem_post/sem_wait.
type workerPool struct {
	log     *zap.Logger
	sem     *semaphore.Weighted
	maxLen  int
	process func(*Connection)

	mu    sync.Mutex
	queue []*Connection

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func newWorkerPool(workers, maxLen int, process func(*Connection), log *zap.Logger) *workerPool {
	sem := semaphore.NewWeighted(int64(maxLen))
	// Drain to zero so the first Acquire(1) by a worker blocks until a
	// real Submit posts one back.
	_ = sem.Acquire(context.Background(), int64(maxLen))

	ctx, cancel := context.WithCancel(context.Background())
	p := &workerPool{
		log:     log,
		sem:     sem,
		maxLen:  maxLen,
		process: process,
		queue:   make([]*Connection, 0, maxLen),
		ctx:     ctx,
		cancel:  cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop()
	}
	return p
}

// Submit enqueues a connection for processing. Submit has no context
// argument and never blocks — it either enqueues or rejects immediately.
func (p *workerPool) Submit(c *Connection) error {
	p.mu.Lock()
	if len(p.queue) >= p.maxLen {
		p.mu.Unlock()
		return ErrQueueFull
	}
	p.queue = append(p.queue, c)
	p.mu.Unlock()

	p.sem.Release(1)
	return nil
}

func (p *workerPool) loop() {
	defer p.wg.Done()
	for {
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}

		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			continue
		}
		c := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.runOne(c)
	}
}

// runOne recovers a panicking handler so one bad connection can never
// take the reactor down; a panic never escalates past its own connection.
func (p *workerPool) runOne(c *Connection) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Error("worker panic recovered", zap.Any("panic", r))
			}
			c.markDone(true)
		}
	}()
	p.process(c)
}

// Close cancels every worker's pending Acquire and waits for all worker
// goroutines to return, so no goroutine outlives the pool.
func (p *workerPool) Close() {
	p.cancel()
	p.wg.Wait()
}
