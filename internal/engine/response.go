// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Canned status text and bodies, reproduced verbatim (including the
// source's own wording) from original_source/http/http_conn.cpp's
// error_*_title / error_*_form constants.
const (
	title400 = "Bad Request"
	body400  = "Your request has bad syntax or is inherently impossible to staisfy.\n"

	title403 = "Forbidden"
	body403  = "You do not have permission to get file form this server.\n"

	title404 = "Not Found"
	body404  = "The requested file was not found on this server.\n"

	title500 = "Internal Error"
	body500  = "There was an unusual problem serving the request file.\n"

	emptyBodyHTML = "<html><body></body></html>"
)

// statusFor maps an outcome to the wire status code.
//
// BAD_REQUEST is mapped to 404, not 400, reproducing the original's
// process_write numbering verbatim as a testable contract rather than a
// bug to silently correct — see DESIGN.md's open-question decisions.
func statusFor(o outcome) (code int, title, canned string) {
	switch o {
	case outcomeNoResource:
		return 404, title404, body404
	case outcomeForbidden:
		return 403, title403, body403
	case outcomeBadRequest:
		return 404, title404, body404
	case outcomeInternalError:
		return 500, title500, body500
	default:
		return 200, "OK", ""
	}
}

// resolveTarget maps a parsed URL to a document-root-relative file path,
// fixed action table. For POST requests "/2" and "/3" (login/register)
// are resolved entirely in doRequest and never reach here; any other
// "/2" or "/3" request is resolved as an ordinary path. Grounded directly
// on original_source/http/http_conn.cpp's do_request.
func resolveTarget(docRoot, url string) string {
	if len(url) >= 2 && url[0] == '/' {
		switch url[1] {
		case '0':
			return filepath.Join(docRoot, "register.html")
		case '1':
			return filepath.Join(docRoot, "log.html")
		case '5':
			return filepath.Join(docRoot, "picture.html")
		case '6':
			return filepath.Join(docRoot, "video.html")
		case '7':
			return filepath.Join(docRoot, "fans.html")
		}
	}
	return filepath.Join(docRoot, url)
}

// extractForm pulls user/password out of the fixed
// "user=<name>&password=<password>" layout by constant offset: offset
// 5 for "user=", then 10 more bytes for "&password=".
func extractForm(body []byte) (user, password string, ok bool) {
	const userPrefix = "user="
	const passPrefix = "&password="
	if len(body) < len(userPrefix) || !bytes.HasPrefix(body, []byte(userPrefix)) {
		return "", "", false
	}
	rest := body[len(userPrefix):]
	amp := bytes.Index(rest, []byte(passPrefix))
	if amp < 0 {
		return "", "", false
	}
	user = string(rest[:amp])
	password = string(rest[amp+len(passPrefix):])
	if user == "" || password == "" {
		return "", "", false
	}
	return user, password, true
}

// doRequest runs the fixed-action dispatcher and reports the
// outcome plus, for FILE_REQUEST, the resolved path. Login/register are
// resolved entirely here because they never touch the filesystem.
func doRequest(c *Connection, docRoot string, creds CredentialStore) (outcome, string) {
	if c.formPost && len(c.url) >= 2 && c.url[0] == '/' {
		switch c.url[1] {
		case '2':
			user, pass, ok := extractForm(c.bodyBytes())
			if !ok {
				return outcomeBadRequest, ""
			}
			if creds.Login(user, pass) {
				return outcomeFileRequest, filepath.Join(docRoot, "welcome.html")
			}
			return outcomeFileRequest, filepath.Join(docRoot, "logError.html")
		case '3':
			user, pass, ok := extractForm(c.bodyBytes())
			if !ok {
				return outcomeBadRequest, ""
			}
			if err := creds.Register(user, pass); err != nil {
				return outcomeFileRequest, filepath.Join(docRoot, "registerError.html")
			}
			return outcomeFileRequest, filepath.Join(docRoot, "log.html")
		}
	}

	target := resolveTarget(docRoot, c.url)
	fi, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return outcomeNoResource, ""
		}
		return outcomeInternalError, ""
	}
	if fi.IsDir() {
		return outcomeBadRequest, ""
	}
	if fi.Mode().Perm()&0o004 == 0 {
		return outcomeForbidden, ""
	}
	return outcomeFileRequest, target
}

// assemble runs doRequest, maps the file (if any), and writes the status
// line + headers into c.writeBuf, building the scatter/gather vector.
// Header assembly that would exceed the 1024-byte write buffer aborts
// the response with a 500
func assemble(c *Connection, docRoot string, creds CredentialStore) error {
	o, target := doRequest(c, docRoot, creds)

	var size int64
	var mapped *mappedBody
	if o == outcomeFileRequest {
		var err error
		mapped, size, err = mapFile(target)
		if err != nil {
			o = outcomeInternalError
			mapped = nil
			size = 0
		}
	}

	code, title, canned := statusFor(o)
	connHeader := "close"
	if c.linger {
		connHeader = "keep-alive"
	}

	var inlineBody []byte
	contentLength := size
	if o != outcomeFileRequest {
		inlineBody = []byte(canned)
		contentLength = int64(len(inlineBody))
	} else if size == 0 {
		inlineBody = []byte(emptyBodyHTML)
		contentLength = int64(len(inlineBody))
	}

	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: %s\r\n\r\n",
		code, title, contentLength, connHeader)

	if len(head) > writeBufferSize {
		if mapped != nil {
			mapped.Close()
		}
		return assembleInternalError(c)
	}
	n := copy(c.writeBuf[:], head)
	c.writeIdx = n

	c.plan = responsePlan{targetPath: target, size: size, body: mapped}
	if o == outcomeFileRequest && size > 0 {
		c.plan.vec = [][]byte{c.writeBuf[:c.writeIdx], mapped.Bytes()}
		c.plan.bytesToSend = n + int(size)
	} else {
		if c.writeIdx+len(inlineBody) > writeBufferSize {
			if mapped != nil {
				mapped.Close()
			}
			return assembleInternalError(c)
		}
		c.writeIdx += copy(c.writeBuf[c.writeIdx:], inlineBody)
		c.plan.vec = [][]byte{c.writeBuf[:c.writeIdx]}
		c.plan.bytesToSend = c.writeIdx
	}
	return nil
}

// assembleCanned builds a small fixed status/body response directly into
// c.writeBuf, bypassing doRequest/statusFor entirely. It backs the
// parser-level failure paths (malformed request line, internal error)
// where c.url/c.reqMethod may not even be valid.
func assembleCanned(c *Connection, code int, title, body string, keepAlive bool) error {
	connHeader := "close"
	if keepAlive {
		connHeader = "keep-alive"
	}
	head := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: %s\r\n\r\n",
		code, title, len(body), connHeader)
	if len(head)+len(body) > writeBufferSize {
		return ErrWriteBufferOverflow
	}
	full := append([]byte(head), body...)
	n := copy(c.writeBuf[:], full)
	c.writeIdx = n
	c.linger = keepAlive
	c.plan = responsePlan{vec: [][]byte{c.writeBuf[:n]}, bytesToSend: n}
	return nil
}

// assembleInternalError builds the fallback 500 response; reached either
// when the caller's own header assembly already overflowed the write
// buffer, or when the parser itself reports an internal error.
func assembleInternalError(c *Connection) error {
	return assembleCanned(c, 500, title500, body500, false)
}
