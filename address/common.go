/*
 *  Copyright (c) 2024-2025 Mikhail Knyazhev <markus621@yandex.ru>. All rights reserved.
 *  Use of this source code is governed by a BSD 3-Clause license that can be found in the LICENSE file.
 */

package address

import (
	"net"
	"strconv"
	"strings"

	"go.osspkg.com/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrResolveTCPAddress = errors.New("resolve tcp address")
)

const DefaultPort = 8080

// SockaddrInet4 resolves an address of the form "host:port", ":port",
// "port" or "" into an IPv4 socket address. An empty host binds all
// interfaces, an empty port falls back to DefaultPort.
func SockaddrInet4(address string) (*unix.SockaddrInet4, error) {
	host, port, err := splitHostPort(address)
	if err != nil {
		return nil, err
	}

	sa := &unix.SockaddrInet4{Port: port}

	if len(host) == 0 {
		return sa, nil
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, err0 := net.LookupIP(host)
		if err0 != nil || len(ips) == 0 {
			return nil, errors.Wrapf(ErrResolveTCPAddress, "lookup %s", host)
		}
		for _, v := range ips {
			if v.To4() != nil {
				ip = v
				break
			}
		}
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil, errors.Wrapf(ErrResolveTCPAddress, "not an ipv4 address: %s", host)
	}

	copy(sa.Addr[:], ip4)
	return sa, nil
}

func splitHostPort(address string) (string, int, error) {
	var host, port string

	switch {
	case len(address) == 0:
		port = strconv.Itoa(DefaultPort)

	case !strings.Contains(address, ":"):
		if _, err := strconv.Atoi(address); err == nil {
			port = address
		} else {
			host = address
			port = strconv.Itoa(DefaultPort)
		}

	default:
		var err error
		if host, port, err = net.SplitHostPort(address); err != nil {
			return "", 0, errors.Wrap(ErrResolveTCPAddress, err)
		}
	}

	if len(port) == 0 {
		port = strconv.Itoa(DefaultPort)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return "", 0, errors.Wrapf(ErrResolveTCPAddress, "invalid port: %s", port)
	}

	return host, p, nil
}

// RandomPort asks the OS for a free TCP port on the loopback interface.
func RandomPort() (int, error) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return 0, errors.Wrap(err, ErrResolveTCPAddress)
	}

	port := l.Addr().(*net.TCPAddr).Port

	if err = l.Close(); err != nil {
		return 0, errors.Wrap(err, ErrResolveTCPAddress)
	}

	return port, nil
}

func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
