// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// ErrNotIPv4 is returned when an endpoint host is not an IPv4 address.
var ErrNotIPv4 = errors.New("endpoint host must be an IPv4 address")

// Endpoint is the IPv4 address and TCP port of a peer to probe.
type Endpoint struct {
	IP   net.IP
	Port uint16
}

// NewEndpoint returns an Endpoint for ip and port.  The IP is stored in its
// four byte form.
func NewEndpoint(ip net.IP, port uint16) (Endpoint, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrNotIPv4, ip)
	}
	if port == 0 {
		return Endpoint{}, fmt.Errorf("invalid port 0 for %v", ip4)
	}
	return Endpoint{IP: ip4, Port: port}, nil
}

// ParseEndpoint parses addr in either host or host:port form.  defaultPort
// is used when addr carries no port.
func ParseEndpoint(addr, defaultPort string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, defaultPort
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrNotIPv4, host)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid port %q for %s", portStr,
			host)
	}

	return NewEndpoint(ip, uint16(port))
}

// String returns the endpoint in host:port form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(int(e.Port)))
}
