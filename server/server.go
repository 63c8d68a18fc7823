/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"go.osspkg.com/syncing"
	"go.osspkg.com/xc"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/address"
	"go.osspkg.com/reactor/epoll"
	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/fd"
)

// Server owns the listening socket and accepts clients on reactor
// readiness, wrapping each one in a Connect.
type Server struct {
	conf     Config
	loop     *epoll.Reactor
	listener *fd.Handle
	conns    map[int]*Connect
	sync     syncing.Switch
	wg       syncing.Group
}

func New(conf Config, loop *epoll.Reactor) *Server {
	return &Server{
		conf:  conf,
		loop:  loop,
		conns: make(map[int]*Connect, 64),
		sync:  syncing.NewSwitch(),
		wg:    syncing.NewGroup(),
	}
}

// Start binds the listening socket and registers it with the reactor.
// Failures here are fatal setup errors for the caller to report.
func (v *Server) Start() error {
	if !v.sync.On() {
		return errs.ErrServAlreadyRunning
	}
	if err := v.conf.Validate(); err != nil {
		return err
	}

	sa, err := address.SockaddrInet4(v.conf.Address)
	if err != nil {
		return err
	}

	raw, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "create listen socket")
	}
	h, err := fd.New(raw)
	if err != nil {
		return errors.Wrap(err, unix.Close(raw))
	}

	if err = h.SetReuseAddr(); err != nil {
		return errors.Wrap(err, h.Close())
	}
	if err = unix.Bind(raw, sa); err != nil {
		return errors.Wrap(errors.Wrapf(err, "bind %s", v.conf.Address), h.Close())
	}
	if err = unix.Listen(raw, v.conf.Backlog); err != nil {
		return errors.Wrap(errors.Wrapf(err, "listen %s", v.conf.Address), h.Close())
	}
	if err = v.loop.Register(raw, unix.EPOLLIN, v.acceptReady); err != nil {
		return errors.Wrap(err, h.Close())
	}

	v.listener = h
	logx.Info("Echo server started", "addr", v.conf.Address)
	return nil
}

// acceptReady drains the accept backlog until would-block, edge-triggered
// accept must not leave pending clients behind.
func (v *Server) acceptReady(fdn int, _ uint32) {
	for {
		raw, _, err := unix.Accept4(fdn, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if !errs.IsWouldBlock(err) && !errs.IsClosed(err) {
				logx.Error("Accept connection", "err", err)
			}
			return
		}

		sock, err := fd.New(raw)
		if err != nil {
			logx.Error("Wrap accepted socket", "fd", raw, "err", errors.Wrap(err, unix.Close(raw)))
			continue
		}

		c := newConnect(sock, v.loop, v.conf.HighWatermark, v.conf.LowWatermark, v.dropConn)
		if err = c.register(); err != nil {
			logx.Error("Register connection", "fd", raw, "err", errors.Wrap(err, sock.Close()))
			continue
		}
		v.conns[raw] = c
	}
}

func (v *Server) dropConn(fdn int) {
	delete(v.conns, fdn)
}

// ListenAndServe starts the server and runs the reactor loop on the calling
// goroutine until the context closes or the loop is shut down directly.
func (v *Server) ListenAndServe(ctx xc.Context) error {
	if err := v.Start(); err != nil {
		return err
	}

	v.wg.Background(func() {
		<-ctx.Done()
		v.loop.Shutdown()
	})

	err := v.loop.Run()
	ctx.Close()
	v.wg.Wait()

	return errors.Wrap(err, v.Close())
}

// Close tears down all live connections and releases the listening socket.
func (v *Server) Close() error {
	if !v.sync.Off() {
		return nil
	}

	for _, c := range v.conns {
		c.teardown(nil)
	}

	var err error
	if v.listener != nil {
		err = errors.Wrap(v.loop.Unregister(v.listener.Get()), v.listener.Close())
		v.listener = nil
	}

	logx.Info("Echo server stopped", "addr", v.conf.Address)
	return err
}
