/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"bytes"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/fd"
)

type flowState uint8

const (
	flowNormal flowState = iota
	flowPaused
)

// Connect holds per-client state: the owned socket, the outbound buffer and
// the flow-control state. It is driven entirely by reactor callbacks on the
// loop goroutine, no locking.
type Connect struct {
	sock    *fd.Handle
	loop    *epoll.Reactor
	wb      *bytes.Buffer
	mask    uint32
	flow    flowState
	high    int
	low     int
	eof     bool
	closed  bool
	onClose func(fd int)
}

func newConnect(sock *fd.Handle, loop *epoll.Reactor, high, low int, onClose func(int)) *Connect {
	return &Connect{
		sock:    sock,
		loop:    loop,
		wb:      bufferPool.Get(),
		mask:    unix.EPOLLIN | unix.EPOLLRDHUP,
		high:    high,
		low:     low,
		onClose: onClose,
	}
}

func (v *Connect) register() error {
	return v.loop.Register(v.sock.Get(), v.mask, v.serve)
}

func (v *Connect) serve(_ int, events uint32) {
	if v.closed {
		return
	}
	if events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		v.teardown(nil)
		return
	}

	// EPOLLRDHUP only means the FIN is queued, input received before it is
	// still pending in the socket. The read side is done at the 0-byte read.
	var err error
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
		err = v.pump()
	}
	if err == nil && !v.closed && events&unix.EPOLLOUT != 0 {
		err = v.flush()
	}
	if err != nil {
		v.teardown(err)
		return
	}

	if !v.closed && v.eof && v.wb.Len() == 0 {
		v.teardown(nil)
	}
}

// pump reads until would-block or EOF, uppercases each chunk and queues it
// for writing. Stops early when flow control pauses the read side.
func (v *Connect) pump() error {
	if v.flow == flowPaused {
		return nil
	}
	buff := chunkPool.Get()
	defer chunkPool.Put(buff)

	for {
		n, err := unix.Read(v.sock.Get(), buff.Slice)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errs.IsWouldBlock(err) {
				return nil
			}
			return errors.Wrapf(err, "read fd=%d", v.sock.Get())
		}
		if n == 0 {
			v.eof = true
			return nil
		}

		b := buff.Slice[:n]
		toUpper(b)
		v.wb.Write(b) // nolint: errcheck

		if err = v.flush(); err != nil {
			return err
		}
		if v.flow == flowNormal && v.wb.Len() >= v.high {
			return v.pause()
		}
	}
}

// flush writes until would-block or the buffer is empty. Partial writes
// discard only the written prefix. Draining to the low watermark while
// paused re-enables the read side, the MOD call re-arms the edge so data
// already pending in the socket fires again.
func (v *Connect) flush() error {
	for v.wb.Len() > 0 {
		n, err := unix.Write(v.sock.Get(), v.wb.Bytes())
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errs.IsWouldBlock(err) {
				if err = v.interest(v.mask | unix.EPOLLOUT); err != nil {
					return err
				}
				break
			}
			return errors.Wrapf(err, "write fd=%d", v.sock.Get())
		}
		v.wb.Next(n)
	}

	if v.wb.Len() == 0 && v.mask&unix.EPOLLOUT != 0 {
		if err := v.interest(v.mask &^ unix.EPOLLOUT); err != nil {
			return err
		}
	}
	if v.flow == flowPaused && v.wb.Len() <= v.low {
		v.flow = flowNormal
		// re-arm reads even after a half-close, input that arrived before
		// the FIN must still be drained and echoed
		if !v.eof {
			return v.interest(v.mask | unix.EPOLLIN)
		}
	}
	return nil
}

func (v *Connect) pause() error {
	v.flow = flowPaused
	return v.interest((v.mask &^ unix.EPOLLIN) | unix.EPOLLOUT)
}

func (v *Connect) interest(mask uint32) error {
	if mask == v.mask {
		return nil
	}
	if err := v.loop.Modify(v.sock.Get(), mask); err != nil {
		return err
	}
	v.mask = mask
	return nil
}

func (v *Connect) teardown(cause error) {
	if v.closed {
		return
	}
	v.closed = true

	fdn := v.sock.Get()
	if cause != nil && !errs.IsClosed(cause) {
		logx.Warn("Connection failed", "fd", fdn, "err", cause)
	}
	if err := v.loop.Unregister(fdn); err != nil && !errs.IsClosed(err) {
		logx.Error("Connection unregister", "fd", fdn, "err", err)
	}
	if err := v.sock.Close(); err != nil && !errs.IsClosed(err) {
		logx.Error("Connection close", "fd", fdn, "err", err)
	}
	bufferPool.Put(v.wb)

	if v.onClose != nil {
		v.onClose(fdn)
	}
}
