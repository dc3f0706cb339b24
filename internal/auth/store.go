// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Package auth provides the credential datastore: a pooled MySQL-backed
// Store and an in-memory Cache that fronts it, together implementing
// engine.CredentialStore.
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// StoreConfig names a MySQL database: host, user, password and schema are
// all carried in the DSN, with the pool sizes as separate fields.
type StoreConfig struct {
	DSN         string
	MaxOpenConn int
	MaxIdleConn int
}

// Store wraps a pooled connection to the "user" table
// (username, passwd), mirroring original_source/CGImysql's
// connection_pool: database/sql's own pool stands in for the RAII lease
// wrapper, since sql.DB already hands out and reclaims pooled
// connections per statement without the caller managing lifetimes.
type Store struct {
	db *sql.DB
}

// OpenStore opens the pool and verifies connectivity with a short-lived
// ping, matching the original's "connect during server init, fail fast if
// the pool can't be built" behavior.
func OpenStore(cfg StoreConfig) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("auth: open: %w", err)
	}
	if cfg.MaxOpenConn > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.MaxIdleConn > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConn)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("auth: ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadAll runs "SELECT username,passwd FROM user", the exact statement
// original_source/http/http_conn.cpp's init_mysql_result issues at
// startup to prime its in-memory map.
func (s *Store) LoadAll(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT username, passwd FROM user")
	if err != nil {
		return nil, fmt.Errorf("auth: load all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var user, pass string
		if err := rows.Scan(&user, &pass); err != nil {
			return nil, fmt.Errorf("auth: scan: %w", err)
		}
		out[user] = pass
	}
	return out, rows.Err()
}

// Insert adds one credential row, the persistent-side half of
// original_source/http/http_conn.cpp's "INSERT INTO user(username,
// passwd) VALUES(...)" registration path.
func (s *Store) Insert(ctx context.Context, user, password string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO user(username, passwd) VALUES (?, ?)", user, password)
	if err != nil {
		return fmt.Errorf("auth: insert: %w", err)
	}
	return nil
}
