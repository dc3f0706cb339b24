// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Command tinyhttpd is the bootstrap binary: it parses flags, builds the
// listening socket, wires the credential store and hands everything to
// engine.Run. original_source/main.cpp's startup sequence (parse_arg,
// server.init, sql_pool, thread_pool, trig_mode, eventListen, eventLoop)
// is reproduced here as one linear main, since there is only ever one
// server per process.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"

	"github.com/brax-io/tinyhttpd/internal/auth"
	"github.com/brax-io/tinyhttpd/internal/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tinyhttpd:", err)
		os.Exit(1)
	}
}

func run() error {
	def := engine.DefaultConfig()

	port := pflag.IntP("port", "p", def.Port, "listen port")
	docRoot := pflag.String("docroot", def.DocRoot, "document root directory")
	keepAlive := pflag.Bool("keepalive", def.KeepAlive, "enable HTTP keep-alive")
	triggerMode := pflag.IntP("trigger-mode", "m", int(def.TriggerMode), "0=LT/LT 1=LT/ET 2=ET/LT 3=ET/ET (listener/client)")
	dispatchModel := pflag.IntP("dispatch-model", "a", int(def.DispatchModel), "0=proactor 1=reactor")
	workers := pflag.IntP("workers", "t", def.WorkerCount, "worker pool size")
	queueLen := pflag.Int("queue-len", def.MaxQueueLen, "max queued requests")
	idleTimeout := pflag.Duration("idle-timeout", def.IdleTimeout, "idle connection timeout")
	sweepInterval := pflag.Duration("sweep-interval", def.SweepInterval, "timing wheel sweep interval")
	logLevel := pflag.String("log-level", "info", "debug|info|warn|error")

	mysqlDSN := pflag.String("mysql-dsn", "", "MySQL DSN for the credential store, e.g. user:pass@tcp(127.0.0.1:3306)/dbname")
	mysqlMaxOpen := pflag.Int("mysql-max-open", 8, "max open MySQL connections (store pool size)")
	mysqlMaxIdle := pflag.Int("mysql-max-idle", 8, "max idle MySQL connections")

	pflag.Parse()

	log, err := newLogger(*logLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := engine.Config{
		Port:          *port,
		DocRoot:       *docRoot,
		KeepAlive:     *keepAlive,
		TriggerMode:   engine.TriggerMode(*triggerMode),
		WorkerCount:   *workers,
		DispatchModel: engine.DispatchModel(*dispatchModel),
		IdleTimeout:   *idleTimeout,
		SweepInterval: *sweepInterval,
		MaxQueueLen:   *queueLen,
	}

	if *mysqlDSN == "" {
		return fmt.Errorf("--mysql-dsn is required")
	}

	store, err := auth.OpenStore(auth.StoreConfig{
		DSN:         *mysqlDSN,
		MaxOpenConn: *mysqlMaxOpen,
		MaxIdleConn: *mysqlMaxIdle,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	creds, err := auth.NewCache(ctx, store)
	if err != nil {
		return fmt.Errorf("tinyhttpd: loading credential cache: %w", err)
	}

	listenFd, err := listen(cfg.Port)
	if err != nil {
		return err
	}

	log.Info("listening",
		zap.Int("port", cfg.Port),
		zap.String("docroot", cfg.DocRoot),
		zap.Int("trigger_mode", int(cfg.TriggerMode)),
		zap.Int("dispatch_model", int(cfg.DispatchModel)),
		zap.Int("workers", cfg.WorkerCount),
	)

	return engine.Run(cfg, listenFd, creds, log)
}

// listen builds a bound, listening IPv4 socket (engine.Run makes it
// non-blocking) the way
// original_source/http_conn's eventListen does via raw socket/bind/listen,
// rather than through net.Listen, since the reactor needs the bare file
// descriptor to register with its own epoll instance.
func listen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("tinyhttpd: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("tinyhttpd: setsockopt: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("tinyhttpd: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("tinyhttpd: listen: %w", err)
	}
	return fd, nil
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("tinyhttpd: log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
