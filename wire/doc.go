// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wire implements the parts of the bitcoin wire protocol needed to run a
version handshake.

# Message Framing

Every bitcoin message starts with a 24 byte header:

	magic     4 bytes  little endian network identifier (BitcoinNet)
	command  12 bytes  ASCII command name, NUL padded
	length    4 bytes  little endian payload length
	checksum  4 bytes  first 4 bytes of double SHA-256 of the payload

EncodeMessage and WriteMessage build complete messages and always compute the
checksum from the payload.  ReadMessageHeader, ReadPayload and DiscardPayload
consume messages from a stream.  The header is the only source for how many
payload bytes follow.

# Version Messages

EncodeVersionPayload serializes a MsgVersion using the fixed version message
layout.  DecodeVersionPayload only extracts the protocol version and the
services bitmask, which is all a handshake needs to decide on capabilities.
HasCompactFilterSupport tests the services bitmask for NODE_COMPACT_FILTERS.

# Errors

Framing problems are returned as *MessageError values carrying an ErrorCode,
so callers can tell malformed messages from general I/O errors such as io.EOF:

	if wire.IsErrorCode(err, wire.ErrMagicMismatch) {
		// The peer is on another network.
	}
*/
package wire
