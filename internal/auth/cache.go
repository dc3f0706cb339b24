// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package auth

import (
	"context"
	"sync"

	"github.com/brax-io/tinyhttpd/internal/engine"
)

// persistentStore is the subset of *Store a Cache needs, so tests can
// swap in a fake without touching MySQL.
type persistentStore interface {
	LoadAll(ctx context.Context) (map[string]string, error)
	Insert(ctx context.Context, user, password string) error
}

// Cache is the in-memory credential map original_source/http/http_conn.cpp
// keeps as a file-scope `map<string,string> users` guarded by a single
// `locker m_lock`. Login never touches the database; Register
// write-throughs before updating the map, exactly mirroring the
// original's "insert into MySQL, then insert into the map, all under the
// lock" ordering.
type Cache struct {
	store persistentStore

	mu    sync.Mutex
	users map[string]string
}

// NewCache loads the full credential table into memory up front, just as
// initmysql_result does once at startup.
func NewCache(ctx context.Context, store persistentStore) (*Cache, error) {
	users, err := store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return &Cache{store: store, users: users}, nil
}

// Login reports whether user/password match a known credential. A
// missing user never falls back to the database: the full table lives
// in memory by construction.
func (c *Cache) Login(user, password string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	got, ok := c.users[user]
	return ok && got == password
}

// Register inserts a new credential, returning ErrUserExists if the
// username is already taken, matching the original's find-before-insert
// check under the same lock the insert itself takes.
func (c *Cache) Register(user, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.users[user]; exists {
		return engine.ErrUserExists
	}
	if err := c.store.Insert(context.Background(), user, password); err != nil {
		return err
	}
	c.users[user] = password
	return nil
}
