// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// MaxUserAgentLen is the maximum allowed length for the user agent
	// field of an outbound version message.  It keeps the length prefix a
	// single byte.
	MaxUserAgentLen = 252

	// MaxVersionPayload is the largest version payload accepted from a
	// peer.  Only the leading fields are decoded, so the bound leaves room
	// for fields appended by newer protocol versions well past the 86 byte
	// fixed part and a 256 byte user agent.
	MaxVersionPayload = 1024 * 64 // 64KB

	// minVersionDecodeLen is the number of leading payload bytes needed to
	// read the protocol version and services fields.
	minVersionDecodeLen = 4 + 8
)

// MsgVersion implements the version message payload.
//
// Use NewMsgVersion to get a value with the fields this client always
// sends filled in.
type MsgVersion struct {
	// Version of the protocol the node is using.
	ProtocolVersion int32

	// Bitfield which identifies the enabled services.
	Services ServiceFlag

	// Time the message was generated.  This is encoded as an int64 on the
	// wire.
	Timestamp time.Time

	// Address of the remote peer.
	AddrYou NetAddress

	// Address of the local peer.
	AddrMe NetAddress

	// Unique value associated with message that is used to detect self
	// connections.
	Nonce uint64

	// The user agent that generated message.  This is encoded as a one
	// byte length followed by the ascii bytes.
	UserAgent string

	// Last block seen by the generator of the version message.
	LastBlock int32

	// Don't announce transactions to peer.
	DisableRelayTx bool
}

// NewMsgVersion returns a new bitcoin version message for a peer at you.  The
// local address is left zeroed, no services are advertised and transaction
// relay is disabled.
func NewMsgVersion(you *NetAddress, nonce uint64, lastBlock int32) *MsgVersion {
	// Limit the timestamp to one second precision since the protocol
	// doesn't support better.
	return &MsgVersion{
		ProtocolVersion: ProtocolVersion,
		Services:        0,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		AddrYou:         *you,
		Nonce:           nonce,
		LastBlock:       lastBlock,
		DisableRelayTx:  true,
	}
}

// AddUserAgent sets the user agent to the /name:version/ form.
func (msg *MsgVersion) AddUserAgent(name string, version string) {
	msg.UserAgent = fmt.Sprintf("/%s:%s/", name, version)
}

// EncodeVersionPayload serializes msg using the fixed version message layout.
func EncodeVersionPayload(msg *MsgVersion) ([]byte, error) {
	if len(msg.UserAgent) > MaxUserAgentLen {
		str := fmt.Sprintf("user agent too long [len %v, max %v]",
			len(msg.UserAgent), MaxUserAgentLen)
		return nil, messageError("EncodeVersionPayload",
			ErrUserAgentTooLong, str)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 86+len(msg.UserAgent)))
	err := writeElements(buf, msg.ProtocolVersion, msg.Services,
		msg.Timestamp.Unix())
	if err != nil {
		return nil, err
	}
	if err := writeNetAddress(buf, &msg.AddrYou); err != nil {
		return nil, err
	}
	if err := writeNetAddress(buf, &msg.AddrMe); err != nil {
		return nil, err
	}
	if err := writeElement(buf, msg.Nonce); err != nil {
		return nil, err
	}

	buf.WriteByte(uint8(len(msg.UserAgent)))
	buf.WriteString(msg.UserAgent)

	// The relay flag is the inverse of DisableRelayTx.
	err = writeElements(buf, msg.LastBlock, !msg.DisableRelayTx)
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeVersionPayload decodes the parts of a version payload the handshake
// needs: the protocol version and the services bitmask that immediately
// follows it.  All other fields of the returned message are left zero.
func DecodeVersionPayload(payload []byte) (*MsgVersion, error) {
	if len(payload) < minVersionDecodeLen {
		str := fmt.Sprintf("version payload is %d bytes, need at "+
			"least %d to read services", len(payload),
			minVersionDecodeLen)
		return nil, messageError("DecodeVersionPayload",
			ErrTruncatedPayload, str)
	}

	return &MsgVersion{
		ProtocolVersion: int32(binary.LittleEndian.Uint32(payload[0:4])),
		Services:        ServiceFlag(binary.LittleEndian.Uint64(payload[4:12])),
	}, nil
}
