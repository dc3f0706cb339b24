// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleGet(t *testing.T) {
	c := newConnection(-1, "")
	n := copy(c.readBuf[:], "GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n")
	require.NoError(t, c.advanceReadIdx(n))

	res := parse(c)
	require.Equal(t, resultGetRequest, res)
	assert.Equal(t, "/index.html", c.url)
	assert.Equal(t, methodGet, c.reqMethod)
	assert.True(t, c.linger)
	assert.Equal(t, "example.com", c.host)
}

func TestParseRootRewritesToJudgeHTML(t *testing.T) {
	c := newConnection(-1, "")
	n := copy(c.readBuf[:], "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, c.advanceReadIdx(n))

	require.Equal(t, resultGetRequest, parse(c))
	assert.Equal(t, "/judge.html", c.url)
}

func TestParseSplitAcrossReads(t *testing.T) {
	c := newConnection(-1, "")

	// First read ends mid-line, right after a lone '\r'.
	first := "GET /a.html HTTP/1.1\r"
	n := copy(c.readBuf[:], first)
	require.NoError(t, c.advanceReadIdx(n))
	require.Equal(t, resultNoRequest, parse(c))

	// Second read supplies the rest, including the matching '\n'.
	second := "\n\r\n"
	n2 := copy(c.readBuf[c.readIdx:], second)
	require.NoError(t, c.advanceReadIdx(n2))
	require.Equal(t, resultGetRequest, parse(c))
	assert.Equal(t, "/a.html", c.url)
}

func TestParsePostWithBody(t *testing.T) {
	body := "user=alice&password=hunter2"
	req := fmt.Sprintf("POST /2 HTTP/1.1\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

	c := newConnection(-1, "")
	n := copy(c.readBuf[:], req)
	require.NoError(t, c.advanceReadIdx(n))

	require.Equal(t, resultGetRequest, parse(c))
	assert.Equal(t, methodPost, c.reqMethod)
	assert.Equal(t, body, string(c.bodyBytes()))
}

func TestParseMalformedRequestLine(t *testing.T) {
	c := newConnection(-1, "")
	n := copy(c.readBuf[:], "GARBAGE\r\n\r\n")
	require.NoError(t, c.advanceReadIdx(n))

	assert.Equal(t, resultBadRequest, parse(c))
}

func TestParseUnsupportedMethod(t *testing.T) {
	c := newConnection(-1, "")
	n := copy(c.readBuf[:], "DELETE /x HTTP/1.1\r\n\r\n")
	require.NoError(t, c.advanceReadIdx(n))

	assert.Equal(t, resultBadRequest, parse(c))
}

func TestParseUrlWithoutLeadingSlashIsRejected(t *testing.T) {
	c := newConnection(-1, "")
	n := copy(c.readBuf[:], "GET index.html HTTP/1.1\r\n\r\n")
	require.NoError(t, c.advanceReadIdx(n))

	assert.Equal(t, resultBadRequest, parse(c))
}

func TestStripHostPrefix(t *testing.T) {
	assert.Equal(t, []byte("/a/b"), stripHostPrefix([]byte("http://example.com/a/b")))
	assert.Equal(t, []byte("/a/b"), stripHostPrefix([]byte("https://example.com/a/b")))
	assert.Equal(t, []byte("/"), stripHostPrefix([]byte("http://example.com")))
	assert.Equal(t, []byte("/plain"), stripHostPrefix([]byte("/plain")))
}
