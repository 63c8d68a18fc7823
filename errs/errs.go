/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package errs

import (
	"io"
	"strings"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrInvalidDescriptor     = errors.New("invalid file descriptor")
	ErrDuplicateRegistration = errors.New("descriptor already registered")
	ErrNotRegistered         = errors.New("descriptor is not registered")
	ErrServAlreadyRunning    = errors.New("server already running")
)

// IsWouldBlock reports the would-block outcome of a non-blocking call,
// a flow-control signal rather than a failure.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.EBADF) ||
		strings.Contains(err.Error(), "use of closed network connection") {
		return true
	}
	return false
}
