/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package server

import (
	"fmt"

	"golang.org/x/sys/unix"

	"go.osspkg.com/reactor/internal"
)

const (
	defaultHighWatermark = 64 << 10
	defaultLowWatermark  = 32 << 10
)

type Config struct {
	Address       string `yaml:"address"`
	Backlog       int    `yaml:"backlog,omitempty"`
	HighWatermark int    `yaml:"high_watermark,omitempty"`
	LowWatermark  int    `yaml:"low_watermark,omitempty"`
}

func (c *Config) Validate() error {
	c.Backlog = internal.NotZero(c.Backlog, unix.SOMAXCONN)
	c.HighWatermark = internal.NotZero(c.HighWatermark, defaultHighWatermark)
	c.LowWatermark = internal.NotZero(c.LowWatermark, defaultLowWatermark)
	if c.LowWatermark >= c.HighWatermark {
		return fmt.Errorf("low watermark (%d) must be below high watermark (%d)",
			c.LowWatermark, c.HighWatermark)
	}
	return nil
}
