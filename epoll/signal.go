/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package epoll

import (
	"encoding/binary"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/fd"
)

// ShutdownSignal is an eventfd-backed termination request. Signal is safe
// to call from any goroutine or signal-driven context: it performs one raw
// write syscall, no allocation, no locks.
type ShutdownSignal struct {
	handle *fd.Handle
}

func NewShutdownSignal() (*ShutdownSignal, error) {
	raw, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, errors.Wrapf(err, "create eventfd")
	}
	h, err := fd.New(raw)
	if err != nil {
		return nil, errors.Wrap(err, unix.Close(raw))
	}
	return &ShutdownSignal{handle: h}, nil
}

func (v *ShutdownSignal) FD() int {
	return v.handle.Get()
}

// Signal increments the eventfd counter. EAGAIN means the counter is
// saturated, the request is already observable.
func (v *ShutdownSignal) Signal() {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, _ = unix.Write(v.handle.Get(), b[:])
}

// Drain reads the counter down to zero, re-arming the signal. Reports
// whether a request was pending.
func (v *ShutdownSignal) Drain() bool {
	var (
		b       [8]byte
		pending bool
	)
	for {
		if _, err := unix.Read(v.handle.Get(), b[:]); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return pending
		}
		pending = true
	}
}

func (v *ShutdownSignal) Close() error {
	return v.handle.Close()
}
