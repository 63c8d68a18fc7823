/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

var upperTable = func() (t [256]byte) {
	for i := 0; i < 256; i++ {
		c := byte(i)
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		t[i] = c
	}
	return
}()

// toUpper maps every byte in place, byte-for-byte, no reordering.
func toUpper(b []byte) {
	for i, c := range b {
		b[i] = upperTable[c]
	}
}
