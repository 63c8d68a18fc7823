/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package fd

import (
	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/errs"
)

const invalid = -1

// Handle owns one open OS descriptor. At most one valid Handle exists per
// descriptor lineage: ownership is transferred with Move, never copied, and
// the descriptor is closed exactly once.
type Handle struct {
	fd int
}

// New takes ownership of an already-open descriptor.
func New(raw int) (*Handle, error) {
	if raw < 0 {
		return nil, errs.ErrInvalidDescriptor
	}
	return &Handle{fd: raw}, nil
}

// Get returns the owned descriptor, or -1 after Move or Close.
func (v *Handle) Get() int {
	return v.fd
}

func (v *Handle) Valid() bool {
	return v.fd != invalid
}

// Move transfers ownership to a fresh Handle and invalidates the source.
func (v *Handle) Move() *Handle {
	h := &Handle{fd: v.fd}
	v.fd = invalid
	return h
}

func (v *Handle) SetNonBlocking() error {
	if !v.Valid() {
		return errs.ErrInvalidDescriptor
	}
	if err := unix.SetNonblock(v.fd, true); err != nil {
		return errors.Wrapf(err, "set nonblocking fd=%d", v.fd)
	}
	return nil
}

func (v *Handle) SetReuseAddr() error {
	if !v.Valid() {
		return errs.ErrInvalidDescriptor
	}
	if err := unix.SetsockoptInt(v.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return errors.Wrapf(err, "set reuse addr fd=%d", v.fd)
	}
	return nil
}

// Shutdown closes one direction of a connected socket, see unix.SHUT_*.
func (v *Handle) Shutdown(how int) error {
	if !v.Valid() {
		return errs.ErrInvalidDescriptor
	}
	if err := unix.Shutdown(v.fd, how); err != nil {
		return errors.Wrapf(err, "shutdown fd=%d", v.fd)
	}
	return nil
}

// Close releases the descriptor. Closing an invalid Handle is a no-op.
func (v *Handle) Close() error {
	if !v.Valid() {
		return nil
	}
	err := unix.Close(v.fd)
	v.fd = invalid
	if err != nil {
		return errors.Wrapf(err, "close fd")
	}
	return nil
}
