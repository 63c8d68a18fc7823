/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package epoll_test

import (
	"testing"

	"go.osspkg.com/casecheck"

	"go.osspkg.com/reactor/epoll"
)

func TestUnit_ShutdownSignal(t *testing.T) {
	sd, err := epoll.NewShutdownSignal()
	casecheck.NoError(t, err)
	defer sd.Close() // nolint: errcheck

	casecheck.True(t, sd.FD() >= 0)
	casecheck.True(t, !sd.Drain())

	sd.Signal()
	sd.Signal()

	casecheck.True(t, sd.Drain())
	// drained counter re-arms the signal
	casecheck.True(t, !sd.Drain())

	sd.Signal()
	casecheck.True(t, sd.Drain())
}
