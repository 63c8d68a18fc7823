/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"bytes"

	"go.osspkg.com/ioutils/pool"
)

const chunkSize = 65535

var chunkPool = pool.New[*Bytes](func() *Bytes {
	return &Bytes{Slice: make([]byte, chunkSize)}
})

type Bytes struct {
	Slice []byte
}

func (*Bytes) Reset() {}

var bufferPool = pool.New[*bytes.Buffer](func() *bytes.Buffer {
	return bytes.NewBuffer(make([]byte, 0, chunkSize))
})
