// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package peer implements a one-shot outbound version handshake used to learn
which services a bitcoin peer advertises.

Probe dials an Endpoint, sends a version message and waits for the peer's own
version message, skipping any verack that arrives first.  The services field
of that message decides whether the peer serves compact block filters
(BIP0157).  Any other message ends the probe with a protocol error.

Every probe reports exactly one Result.  Failures to connect, clean closes,
timeouts and malformed framing are reported as OutcomeUnreachable, while
messages from another network or unexpected commands are reported as
OutcomeProtocolError.  The underlying cause is kept in Result.Err.

Each blocking read is bounded by Config.ReadTimeout and by the deadline of
the context passed to Probe, so a peer that accepts the connection but never
replies cannot stall the caller.  The connection is always closed before
Probe returns.

Listeners can be configured to observe state transitions, the message headers
read and the messages written.
*/
package peer
