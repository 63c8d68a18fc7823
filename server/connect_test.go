/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"testing"

	"go.osspkg.com/casecheck"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/fd"
)

func TestUnit_FlowControlHysteresis(t *testing.T) {
	loop, err := epoll.New()
	casecheck.NoError(t, err)
	defer loop.Close() // nolint: errcheck

	sv, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	casecheck.NoError(t, err)
	client, srv := sv[0], sv[1]
	defer unix.Close(client) // nolint: errcheck

	// small send buffer so echo writes hit would-block quickly
	casecheck.NoError(t, unix.SetsockoptInt(srv, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	high, low := 16<<10, 8<<10

	h, err := fd.New(srv)
	casecheck.NoError(t, err)

	c := newConnect(h, loop, high, low, nil)
	casecheck.NoError(t, c.register())
	defer c.teardown(nil)

	// saturate: feed input without consuming the echo until reads pause
	payload := make([]byte, 4096)
	for i := 0; i < 500 && c.flow != flowPaused; i++ {
		unix.Write(client, payload) // nolint: errcheck
		c.serve(srv, unix.EPOLLIN)
	}

	casecheck.Equal(t, flowPaused, c.flow)
	casecheck.True(t, c.wb.Len() >= high)
	casecheck.True(t, c.mask&unix.EPOLLIN == 0)
	casecheck.True(t, c.mask&unix.EPOLLOUT != 0)

	// drain: read interest comes back only at or below the low watermark
	discard := make([]byte, 4096)
	for i := 0; i < 10000 && c.flow == flowPaused; i++ {
		unix.Read(client, discard) // nolint: errcheck
		c.serve(srv, unix.EPOLLOUT)

		if c.flow == flowPaused {
			// intermediate fill levels between the marks never resume reads
			casecheck.True(t, c.mask&unix.EPOLLIN == 0)
		}
	}

	casecheck.Equal(t, flowNormal, c.flow)
	casecheck.True(t, c.wb.Len() <= low)
	casecheck.True(t, c.mask&unix.EPOLLIN != 0)
}

func TestUnit_HalfCloseUnderBackpressure(t *testing.T) {
	loop, err := epoll.New()
	casecheck.NoError(t, err)
	defer loop.Close() // nolint: errcheck

	sv, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	casecheck.NoError(t, err)
	client, srv := sv[0], sv[1]
	defer unix.Close(client) // nolint: errcheck

	casecheck.NoError(t, unix.SetsockoptInt(srv, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096))

	high, low := 16<<10, 8<<10

	h, err := fd.New(srv)
	casecheck.NoError(t, err)

	c := newConnect(h, loop, high, low, nil)
	casecheck.NoError(t, c.register())

	payload := make([]byte, 4096)
	sent := 0
	for i := 0; i < 500 && c.flow != flowPaused; i++ {
		if n, _ := unix.Write(client, payload); n > 0 {
			sent += n
		}
		c.serve(srv, unix.EPOLLIN)
	}
	casecheck.Equal(t, flowPaused, c.flow)

	// tail plus FIN arrive while reads are paused
	n, err := unix.Write(client, []byte("tail"))
	casecheck.NoError(t, err)
	sent += n
	casecheck.NoError(t, unix.Shutdown(client, unix.SHUT_WR))
	c.serve(srv, unix.EPOLLIN|unix.EPOLLRDHUP)
	casecheck.True(t, !c.closed)

	// drain the echo: resuming from the pause must re-arm reads so the
	// bytes that preceded the FIN are still echoed before teardown
	recvd := 0
	discard := make([]byte, 4096)
	for i := 0; i < 10000 && !c.closed; i++ {
		if n, _ = unix.Read(client, discard); n > 0 {
			recvd += n
		}
		c.serve(srv, unix.EPOLLOUT)
		if !c.closed && c.mask&unix.EPOLLIN != 0 {
			c.serve(srv, unix.EPOLLIN|unix.EPOLLRDHUP)
		}
	}
	for {
		if n, _ = unix.Read(client, discard); n <= 0 {
			break
		}
		recvd += n
	}

	casecheck.True(t, c.closed)
	casecheck.Equal(t, sent, recvd)
}

func TestUnit_ConnectHalfCloseFlush(t *testing.T) {
	loop, err := epoll.New()
	casecheck.NoError(t, err)
	defer loop.Close() // nolint: errcheck

	sv, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	casecheck.NoError(t, err)
	client, srv := sv[0], sv[1]
	defer unix.Close(client) // nolint: errcheck

	h, err := fd.New(srv)
	casecheck.NoError(t, err)

	closed := 0
	c := newConnect(h, loop, defaultHighWatermark, defaultLowWatermark, func(int) {
		closed++
	})
	casecheck.NoError(t, c.register())

	_, err = unix.Write(client, []byte("bye"))
	casecheck.NoError(t, err)
	casecheck.NoError(t, unix.Shutdown(client, unix.SHUT_WR))

	// buffered input is still transformed and flushed before teardown
	c.serve(srv, unix.EPOLLIN|unix.EPOLLRDHUP)

	buff := make([]byte, 16)
	n, err := unix.Read(client, buff)
	casecheck.NoError(t, err)
	casecheck.Equal(t, "BYE", string(buff[:n]))

	casecheck.True(t, c.closed)
	casecheck.Equal(t, 1, closed)
}
