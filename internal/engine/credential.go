// Copyright 2024 The tinyhttpd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package engine

import "errors"

// ErrUserExists is returned by CredentialStore.Register when the username
// is already present.
var ErrUserExists = errors.New("engine: username already registered")

// CredentialStore is the opaque handle-lease interface the core consumes
// for the two fixed CGI actions. internal/auth provides the concrete
// implementation; this package only depends on the interface, keeping
// the persistent store an external collaborator.
type CredentialStore interface {
	// Login reports whether user/password match a known credential.
	Login(user, password string) bool
	// Register inserts a new credential, returning ErrUserExists if the
	// username is already taken.
	Register(user, password string) error
}
