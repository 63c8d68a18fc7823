/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package epoll

import (
	"fmt"

	"go.osspkg.com/errors"
	"go.osspkg.com/logx"
	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/errs"
	"go.osspkg.com/reactor/fd"
)

const countEvents = 128

type (
	// Handler reacts to readiness on one descriptor. Registration is
	// edge-triggered: the handler must drain I/O until a would-block
	// outcome or it will not be re-notified until new activity arrives.
	Handler func(fd int, events uint32)

	handler struct {
		Mask     uint32
		Callback Handler
	}

	// Reactor owns an epoll instance and a descriptor-to-handler registry
	// and dispatches readiness events on a single goroutine. The only
	// cross-goroutine entry point is the shutdown signal.
	Reactor struct {
		poll     *fd.Handle
		shutdown *ShutdownSignal
		handlers map[int]handler
		events   []unix.EpollEvent
		stopped  bool
	}
)

func New() (*Reactor, error) {
	raw, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrapf(err, "create epoll instance")
	}
	poll, err := fd.New(raw)
	if err != nil {
		return nil, errors.Wrap(err, unix.Close(raw))
	}
	shutdown, err := NewShutdownSignal()
	if err != nil {
		return nil, errors.Wrap(err, poll.Close())
	}
	err = unix.EpollCtl(poll.Get(), unix.EPOLL_CTL_ADD, shutdown.FD(),
		&unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(shutdown.FD())})
	if err != nil {
		err = errors.Wrapf(err, "register shutdown signal")
		return nil, errors.Wrap(err, errors.Wrap(shutdown.Close(), poll.Close()))
	}
	return &Reactor{
		poll:     poll,
		shutdown: shutdown,
		handlers: make(map[int]handler, countEvents),
		events:   make([]unix.EpollEvent, countEvents),
	}, nil
}

// Register adds a descriptor with the given interest mask, edge-triggered.
func (v *Reactor) Register(fdn int, mask uint32, call Handler) error {
	if call == nil {
		return fmt.Errorf("handler is empty")
	}
	if _, ok := v.handlers[fdn]; ok {
		return errors.Wrapf(errs.ErrDuplicateRegistration, "fd=%d", fdn)
	}
	ev := &unix.EpollEvent{Events: mask | unix.EPOLLET, Fd: int32(fdn)}
	if err := unix.EpollCtl(v.poll.Get(), unix.EPOLL_CTL_ADD, fdn, ev); err != nil {
		return errors.Wrapf(err, "epoll add fd=%d", fdn)
	}
	v.handlers[fdn] = handler{Mask: mask, Callback: call}
	return nil
}

// Modify replaces the interest mask of a registered descriptor. The MOD
// call re-arms the edge, pending readiness fires again.
func (v *Reactor) Modify(fdn int, mask uint32) error {
	h, ok := v.handlers[fdn]
	if !ok {
		return errors.Wrapf(errs.ErrNotRegistered, "fd=%d", fdn)
	}
	ev := &unix.EpollEvent{Events: mask | unix.EPOLLET, Fd: int32(fdn)}
	if err := unix.EpollCtl(v.poll.Get(), unix.EPOLL_CTL_MOD, fdn, ev); err != nil {
		return errors.Wrapf(err, "epoll mod fd=%d", fdn)
	}
	h.Mask = mask
	v.handlers[fdn] = h
	return nil
}

// Unregister removes a descriptor. An unknown descriptor is not an error,
// only a warning.
func (v *Reactor) Unregister(fdn int) error {
	if _, ok := v.handlers[fdn]; !ok {
		logx.Warn("Reactor unregister unknown descriptor", "fd", fdn)
		return nil
	}
	delete(v.handlers, fdn)
	if err := unix.EpollCtl(v.poll.Get(), unix.EPOLL_CTL_DEL, fdn, nil); err != nil {
		return errors.Wrapf(err, "epoll del fd=%d", fdn)
	}
	return nil
}

func (v *Reactor) ShutdownFD() int {
	return v.shutdown.FD()
}

// Shutdown requests loop termination. Safe from any goroutine or
// signal-driven context.
func (v *Reactor) Shutdown() {
	v.shutdown.Signal()
}

// Rearm allows Run to be called again after a shutdown was observed.
func (v *Reactor) Rearm() {
	v.shutdown.Drain()
	v.stopped = false
}

// Run blocks dispatching readiness events until the shutdown signal fires.
// A panicking handler is logged and the loop continues; one connection
// never takes the loop down. After shutdown Run returns immediately until
// Rearm is called.
func (v *Reactor) Run() error {
	if v.stopped {
		return nil
	}
	for {
		n, err := unix.EpollWait(v.poll.Get(), v.events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return errors.Wrapf(err, "epoll wait")
		}

		for i := 0; i < n; i++ {
			fdn := int(v.events[i].Fd)
			if fdn == v.shutdown.FD() {
				v.shutdown.Drain()
				v.stopped = true
				continue
			}
			h, ok := v.handlers[fdn]
			if !ok {
				continue
			}
			v.dispatch(fdn, v.events[i].Events, h.Callback)
		}

		if v.stopped {
			return nil
		}
	}
}

func (v *Reactor) dispatch(fdn int, events uint32, call Handler) {
	defer func() {
		if e := recover(); e != nil {
			logx.Error("Reactor handler panic", "fd", fdn, "err", e)
		}
	}()
	call(fdn, events)
}

// Close drops all outstanding interest and releases the epoll instance
// and the shutdown signal.
func (v *Reactor) Close() (err error) {
	for fdn := range v.handlers {
		if e := unix.EpollCtl(v.poll.Get(), unix.EPOLL_CTL_DEL, fdn, nil); e != nil && !errs.IsClosed(e) {
			err = errors.Wrap(err, errors.Wrapf(e, "epoll del fd=%d", fdn))
		}
		delete(v.handlers, fdn)
	}
	return errors.Wrap(err, errors.Wrap(v.shutdown.Close(), v.poll.Close()))
}
