// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"
	"net"
)

// netAddressSize is the encoded size of a NetAddress inside a version
// message: services 8 bytes + ip 16 bytes + port 2 bytes.
const netAddressSize = 26

// NetAddress defines information about a peer on the network including the
// services it supports, its IP address, and port.  The version message form
// carries no timestamp.
type NetAddress struct {
	// Bitfield which identifies the services supported by the address.
	Services ServiceFlag

	// IP address of the peer.  A nil IP is encoded as 16 zero bytes.
	IP net.IP

	// Port the peer is using.  This is encoded in big endian on the wire
	// which differs from most everything else.
	Port uint16
}

// NewNetAddressIPPort returns a new NetAddress using the provided IP, port, and
// supported services.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Services: services,
		IP:       ip,
		Port:     port,
	}
}

// writeNetAddress serializes a NetAddress to w.  IPv4 addresses are written
// in their IPv4-mapped IPv6 form: 10 zero bytes, 0xffff, then the 4 address
// bytes.
func writeNetAddress(w io.Writer, na *NetAddress) error {
	// Ensure to always write 16 bytes even if the ip is nil.
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}
	err := writeElements(w, na.Services, ip)
	if err != nil {
		return err
	}

	// Sigh.  Bitcoin protocol mixes little and big endian.
	return binary.Write(w, binary.BigEndian, na.Port)
}
