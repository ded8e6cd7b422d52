// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MessageHeaderSize is the number of bytes in a bitcoin message header.
// Bitcoin network (magic) 4 bytes + command 12 bytes + payload length 4 bytes +
// checksum 4 bytes.
const MessageHeaderSize = 24

// CommandSize is the fixed size of all commands in the common bitcoin message
// header.  Shorter commands must be zero padded.
const CommandSize = 12

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = (1024 * 1024 * 32) // 32MB

// Commands used in bitcoin message headers which describe the type of message.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdAddr        = "addr"
	CmdInv         = "inv"
	CmdPing        = "ping"
	CmdPong        = "pong"
	CmdReject      = "reject"
	CmdSendHeaders = "sendheaders"
	CmdSendCmpct   = "sendcmpct"
	CmdFeeFilter   = "feefilter"
	CmdSendAddrV2  = "sendaddrv2"
	CmdWTxIdRelay  = "wtxidrelay"
)

// MessageHeader defines the header structure for all bitcoin protocol
// messages.  The header is the single source of truth for how many payload
// bytes follow it on the wire.
type MessageHeader struct {
	Magic    BitcoinNet // 4 bytes
	Command  string     // 12 bytes
	Length   uint32     // 4 bytes
	Checksum [4]byte    // 4 bytes
}

// validCommand returns an error when cmd does not fit in the fixed command
// field or is not plain ASCII.
func validCommand(f, cmd string) error {
	if len(cmd) > CommandSize {
		str := fmt.Sprintf("command [%s] is too long [max %v]",
			cmd, CommandSize)
		return messageError(f, ErrInvalidCommand, str)
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == 0 || cmd[i] > 0x7f {
			str := fmt.Sprintf("command %v is not printable ascii",
				[]byte(cmd))
			return messageError(f, ErrInvalidCommand, str)
		}
	}
	return nil
}

// checksum returns the first four bytes of the double sha256 of payload.
func checksum(payload []byte) [4]byte {
	var sum [4]byte
	copy(sum[:], chainhash.DoubleHashB(payload)[0:4])
	return sum
}

// EncodeMessage builds the full wire form of a message, header followed by
// payload, for the given network and command.  The checksum is always
// computed from payload.
func EncodeMessage(btcnet BitcoinNet, cmd string, payload []byte) ([]byte, error) {
	if err := validCommand("EncodeMessage", cmd); err != nil {
		return nil, err
	}

	// Enforce maximum overall message payload.
	lenp := len(payload)
	if lenp > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
		return nil, messageError("EncodeMessage", ErrPayloadTooLarge, str)
	}

	var command [CommandSize]byte
	copy(command[:], cmd)

	hdr := MessageHeader{
		Magic:    btcnet,
		Command:  cmd,
		Length:   uint32(lenp),
		Checksum: checksum(payload),
	}

	buf := bytes.NewBuffer(make([]byte, 0, MessageHeaderSize+lenp))
	err := writeElements(buf, hdr.Magic, command, hdr.Length, hdr.Checksum)
	if err != nil {
		return nil, err
	}
	buf.Write(payload)

	return buf.Bytes(), nil
}

// WriteMessage encodes the message for the given network and command and
// writes it to w.  It returns the number of bytes written.
func WriteMessage(w io.Writer, btcnet BitcoinNet, cmd string, payload []byte) (int, error) {
	msg, err := EncodeMessage(btcnet, cmd, payload)
	if err != nil {
		return 0, err
	}
	return w.Write(msg)
}

// DecodeHeader decodes the first MessageHeaderSize bytes of b as a message
// header and ensures it belongs to the expected network.
func DecodeHeader(b []byte, btcnet BitcoinNet) (*MessageHeader, error) {
	if len(b) < MessageHeaderSize {
		str := fmt.Sprintf("message header requires %d bytes, got %d",
			MessageHeaderSize, len(b))
		return nil, messageError("DecodeHeader", ErrShortRead, str)
	}

	hr := bytes.NewReader(b[:MessageHeaderSize])
	hdr := MessageHeader{}
	var command [CommandSize]byte
	err := readElements(hr, &hdr.Magic, &command, &hdr.Length, &hdr.Checksum)
	if err != nil {
		return nil, err
	}

	// Strip trailing zeros from command string.
	hdr.Command = string(bytes.TrimRight(command[:], "\x00"))

	// Check for messages from the wrong bitcoin network.
	if hdr.Magic != btcnet {
		str := fmt.Sprintf("message from other network [%v], expected [%v]",
			hdr.Magic, btcnet)
		return nil, messageError("DecodeHeader", ErrMagicMismatch, str)
	}

	return &hdr, nil
}

// ReadMessageHeader reads exactly MessageHeaderSize bytes from r and decodes
// them as a header for btcnet.  It returns the number of bytes read.
//
// When r is at EOF before a single byte could be read, io.EOF is returned
// unwrapped so callers can tell a clean close from a truncated header.
func ReadMessageHeader(r io.Reader, btcnet BitcoinNet) (int, *MessageHeader, error) {
	// Read the entire header into a buffer first in case there is a short
	// read so the proper amount of read bytes are known.
	var headerBytes [MessageHeaderSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		str := fmt.Sprintf("connection closed after %d of %d header "+
			"bytes", n, MessageHeaderSize)
		return n, nil, messageError("ReadMessageHeader", ErrShortRead, str)

	case err != nil:
		return n, nil, err
	}

	hdr, err := DecodeHeader(headerBytes[:], btcnet)
	return n, hdr, err
}

// ReadPayload reads the payload described by hdr from r and validates it
// against the header checksum.  Payloads longer than maxLen are rejected
// before any payload byte is read.
func ReadPayload(r io.Reader, hdr *MessageHeader, maxLen uint32) ([]byte, error) {
	if maxLen > MaxMessagePayload {
		maxLen = MaxMessagePayload
	}
	if hdr.Length > maxLen {
		str := fmt.Sprintf("payload exceeds max length - header "+
			"indicates %v bytes, but max payload size for "+
			"messages of type [%v] is %v", hdr.Length, hdr.Command,
			maxLen)
		return nil, messageError("ReadPayload", ErrPayloadTooLarge, str)
	}

	payload := make([]byte, hdr.Length)
	n, err := io.ReadFull(r, payload)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		str := fmt.Sprintf("connection closed after %d of %d payload "+
			"bytes", n, hdr.Length)
		return nil, messageError("ReadPayload", ErrShortRead, str)

	case err != nil:
		return nil, err
	}

	// Test checksum.
	sum := checksum(payload)
	if sum != hdr.Checksum {
		str := fmt.Sprintf("payload checksum failed - header "+
			"indicates %x, but actual checksum is %x",
			hdr.Checksum, sum)
		return nil, messageError("ReadPayload", ErrChecksumMismatch, str)
	}

	return payload, nil
}

// DiscardPayload reads and throws away the payload described by hdr.
func DiscardPayload(r io.Reader, hdr *MessageHeader) error {
	if hdr.Length > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d "+
			"bytes", hdr.Length, MaxMessagePayload)
		return messageError("DiscardPayload", ErrPayloadTooLarge, str)
	}

	n, err := io.CopyN(io.Discard, r, int64(hdr.Length))
	if errors.Is(err, io.EOF) {
		str := fmt.Sprintf("connection closed after %d of %d payload "+
			"bytes", n, hdr.Length)
		return messageError("DiscardPayload", ErrShortRead, str)
	}
	return err
}
