// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import "time"

// Fixed buffer capacities. These are invariants the reactor/worker handoff
// depends on, not tuning knobs — see conn.go.
const (
	readBufferSize  = 2048
	writeBufferSize = 1024
)

// method is the small set of request methods this engine understands.
// Anything else is rejected during parsing.
type method int

const (
	methodUnknown method = iota
	methodGet
	methodPost
)

func (m method) String() string {
	switch m {
	case methodGet:
		return "GET"
	case methodPost:
		return "POST"
	default:
		return "UNKNOWN"
	}
}

// mainState is the outer parser state machine.
type mainState int

const (
	stateRequestLine mainState = iota
	stateHeaders
	stateContent
)

// fromState is returned by the line tokenizer.
type fromState int

const (
	lineOK fromState = iota
	lineBad
	lineOpen
)

// parseResult is the outer return code of a parse attempt.
type parseResult int

const (
	resultNoRequest parseResult = iota
	resultGetRequest
	resultBadRequest
	resultInternalError
)

// ioDirection tags why a connection was handed to a worker in the reactor
// dispatch model.
type ioDirection int

const (
	directionRead ioDirection = iota
	directionWrite
)

// DispatchModel selects how I/O is split between the reactor and the
// worker pool.
type DispatchModel int

const (
	// ModelProactor: the reactor performs I/O itself and hands decoded
	// work to a worker, which parses, assembles and writes the response.
	ModelProactor DispatchModel = iota
	// ModelReactor: the reactor only signals readiness; a worker performs
	// the read or write loop itself before parsing/assembling.
	ModelReactor
)

// TriggerMode selects level- vs edge-triggered readiness, independently
// for the listening socket and for client sockets.
// Values 2 and 3 mix the two, matching original_source/main.cpp's
// trig_mode switch.
type TriggerMode int

const (
	TriggerLevelLevel TriggerMode = iota // 0: listener LT, clients LT
	TriggerLevelEdge                     // 1: listener LT, clients ET
	TriggerEdgeLevel                     // 2: listener ET, clients LT
	TriggerEdgeEdge                      // 3: listener ET, clients ET
)

func (t TriggerMode) listenerEdge() bool { return t == TriggerEdgeLevel || t == TriggerEdgeEdge }
func (t TriggerMode) clientEdge() bool   { return t == TriggerLevelEdge || t == TriggerEdgeEdge }

// outcome is the result of resolving and mapping a request to a response.
type outcome int

const (
	outcomeFileRequest outcome = iota
	outcomeNoResource
	outcomeForbidden
	outcomeBadRequest
	outcomeInternalError
)

// Config bundles the CLI-surface knobs. It is assembled by cmd/tinyhttpd
// from flags and handed to Run.
type Config struct {
	Port          int
	DocRoot       string
	KeepAlive     bool
	TriggerMode   TriggerMode
	WorkerCount   int
	DispatchModel DispatchModel
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxQueueLen   int
}

// DefaultConfig mirrors original_source/main.cpp's defaults.
func DefaultConfig() Config {
	return Config{
		Port:          9006,
		DocRoot:       "./root",
		KeepAlive:     true,
		TriggerMode:   TriggerLevelLevel,
		WorkerCount:   8,
		DispatchModel: ModelProactor,
		IdleTimeout:   15 * time.Second,
		SweepInterval: 5 * time.Second,
		MaxQueueLen:   10000,
	}
}
