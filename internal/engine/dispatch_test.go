// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParseAndAssembleMalformedRequestLineIs404(t *testing.T) {
	r := &Reactor{cfg: Config{DocRoot: t.TempDir()}}

	c := newConnection(-1, "")
	n := copy(c.readBuf[:], "GARBAGE\r\n\r\n")
	require.NoError(t, c.advanceReadIdx(n))

	r.runParseAndAssemble(c)

	got := string(c.writeBuf[:c.writeIdx])
	assert.Contains(t, got, "404 Not Found")
	assert.Contains(t, got, body404)
}

func TestRemainingVectorsSplitsPartiallyConsumedEntry(t *testing.T) {
	vec := [][]byte{[]byte("head"), []byte("body")}

	assert.Equal(t, [][]byte{[]byte("head"), []byte("body")}, remainingVectors(vec, 0))
	assert.Equal(t, [][]byte{[]byte("ad"), []byte("body")}, remainingVectors(vec, 2))
	assert.Equal(t, [][]byte{[]byte("body")}, remainingVectors(vec, 4))
	assert.Equal(t, [][]byte{[]byte("dy")}, remainingVectors(vec, 6))
	assert.Equal(t, [][]byte{}, remainingVectors(vec, 8))
}
