// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreds struct {
	users map[string]string
}

func newFakeCreds() *fakeCreds { return &fakeCreds{users: map[string]string{}} }

func (f *fakeCreds) Login(user, password string) bool {
	got, ok := f.users[user]
	return ok && got == password
}

func (f *fakeCreds) Register(user, password string) error {
	if _, ok := f.users[user]; ok {
		return ErrUserExists
	}
	f.users[user] = password
	return nil
}

func TestExtractForm(t *testing.T) {
	user, pass, ok := extractForm([]byte("user=alice&password=hunter2"))
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.Equal(t, "hunter2", pass)

	_, _, ok = extractForm([]byte("nonsense"))
	assert.False(t, ok)
}

func TestResolveTargetFixedActions(t *testing.T) {
	assert.Equal(t, filepath.Join("root", "register.html"), resolveTarget("root", "/0"))
	assert.Equal(t, filepath.Join("root", "log.html"), resolveTarget("root", "/1"))
	assert.Equal(t, filepath.Join("root", "picture.html"), resolveTarget("root", "/5"))
	assert.Equal(t, filepath.Join("root", "index.html"), resolveTarget("root", "/index.html"))
}

func TestStatusForBadRequestMapsTo404(t *testing.T) {
	code, title, body := statusFor(outcomeBadRequest)
	assert.Equal(t, 404, code)
	assert.Equal(t, title404, title)
	assert.Equal(t, body404, body)
}

func TestDoRequestLoginSuccessAndFailure(t *testing.T) {
	creds := newFakeCreds()
	require.NoError(t, creds.Register("alice", "hunter2"))

	c := newConnection(-1, "")
	c.url = "/2"
	c.formPost = true
	n := copy(c.readBuf[:], "user=alice&password=hunter2")
	c.body = span{start: 0, length: n}

	o, target := doRequest(c, "root", creds)
	require.Equal(t, outcomeFileRequest, o)
	assert.Equal(t, filepath.Join("root", "welcome.html"), target)

	c2 := newConnection(-1, "")
	c2.url = "/2"
	c2.formPost = true
	n2 := copy(c2.readBuf[:], "user=alice&password=wrong")
	c2.body = span{start: 0, length: n2}

	o2, target2 := doRequest(c2, "root", creds)
	require.Equal(t, outcomeFileRequest, o2)
	assert.Equal(t, filepath.Join("root", "logError.html"), target2)
}

func TestDoRequestRegisterDuplicate(t *testing.T) {
	creds := newFakeCreds()
	require.NoError(t, creds.Register("bob", "pw"))

	c := newConnection(-1, "")
	c.url = "/3"
	c.formPost = true
	n := copy(c.readBuf[:], "user=bob&password=pw2")
	c.body = span{start: 0, length: n}

	o, target := doRequest(c, "root", creds)
	require.Equal(t, outcomeFileRequest, o)
	assert.Equal(t, filepath.Join("root", "registerError.html"), target)
}

func TestDoRequestMissingFile(t *testing.T) {
	creds := newFakeCreds()
	c := newConnection(-1, "")
	c.url = "/does-not-exist.html"

	o, _ := doRequest(c, t.TempDir(), creds)
	assert.Equal(t, outcomeNoResource, o)
}

func TestAssembleCannedOverflowReturnsError(t *testing.T) {
	c := newConnection(-1, "")
	hugeBody := make([]byte, writeBufferSize*2)
	for i := range hugeBody {
		hugeBody[i] = 'x'
	}
	err := assembleCanned(c, 400, title400, string(hugeBody), false)
	assert.ErrorIs(t, err, ErrWriteBufferOverflow)
}

func TestAssembleServesRealFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.html"), []byte("<html>hi</html>"), 0o644))

	creds := newFakeCreds()
	c := newConnection(-1, "")
	c.url = "/hello.html"

	require.NoError(t, assemble(c, dir, creds))
	assert.Equal(t, int64(len("<html>hi</html>")), c.plan.size)
	assert.Contains(t, string(c.writeBuf[:c.writeIdx]), "200 OK")
	require.NoError(t, c.plan.body.Close())
}

func TestAssembleDirectoryIsBadRequest(t *testing.T) {
	dir := t.TempDir()
	creds := newFakeCreds()
	c := newConnection(-1, "")
	c.url = "/subdir"
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))

	require.NoError(t, assemble(c, dir, creds))
	assert.Contains(t, string(c.writeBuf[:c.writeIdx]), "404 Not Found")
}
