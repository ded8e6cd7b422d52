// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/cfcheck/wire"
)

var (
	// ErrPeerClosed is the cause recorded when the peer closes the
	// connection before sending its version message.
	ErrPeerClosed = errors.New("peer closed the connection")

	// ErrUnexpectedMessage is the cause recorded when the peer sends a
	// message other than version or verack during the handshake.
	ErrUnexpectedMessage = errors.New("unexpected message during handshake")
)

// State is the position of a probe in the handshake state machine.
type State uint8

const (
	// StateConnecting is the initial state while the TCP connection is
	// being established.
	StateConnecting State = iota

	// StateAwaitingVersion means our version message was sent and we are
	// reading until the peer's version message arrives.
	StateAwaitingVersion

	// StateDecided is terminal.  The peer's services were read.
	StateDecided

	// StateFailed is terminal.  The probe ended without a decision.
	StateFailed
)

// Map of states back to their names for pretty printing.
var stateStrings = map[State]string{
	StateConnecting:      "Connecting",
	StateAwaitingVersion: "AwaitingVersion",
	StateDecided:         "Decided",
	StateFailed:          "Failed",
}

// String returns the State in human-readable form.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("Unknown State (%d)", uint8(s))
}

// Outcome is the reported result of probing one endpoint.
type Outcome uint8

const (
	// OutcomeSupported means the peer advertises compact filter support.
	OutcomeSupported Outcome = iota

	// OutcomeNotSupported means the peer's version message was read and
	// the compact filter bit was clear.
	OutcomeNotSupported

	// OutcomeUnreachable covers failed connects, timeouts, closes before a
	// decision and malformed framing.
	OutcomeUnreachable

	// OutcomeProtocolError covers unexpected commands, messages from
	// another network and failures building our own messages.
	OutcomeProtocolError

	numOutcomes
)

// Map of outcomes back to their names for pretty printing.
var outcomeStrings = map[Outcome]string{
	OutcomeSupported:     "Supported",
	OutcomeNotSupported:  "NotSupported",
	OutcomeUnreachable:   "Unreachable",
	OutcomeProtocolError: "ProtocolError",
}

// String returns the Outcome in human-readable form.
func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Outcome (%d)", uint8(o))
}

// Outcomes returns every outcome in reporting order.
func Outcomes() []Outcome {
	outcomes := make([]Outcome, 0, numOutcomes)
	for o := Outcome(0); o < numOutcomes; o++ {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// Result is the outcome of a single probe.
type Result struct {
	Endpoint Endpoint
	Outcome  Outcome

	// State is the terminal state the handshake reached.
	State State

	// Services and ProtocolVersion are only set when the peer's version
	// message was decoded.
	Services        wire.ServiceFlag
	ProtocolVersion int32

	// Err holds the diagnostic cause of an Unreachable or ProtocolError
	// outcome.
	Err error

	Elapsed time.Duration
}

// String returns the human-readable report line for the result.
func (r *Result) String() string {
	switch r.Outcome {
	case OutcomeSupported:
		return fmt.Sprintf("%s supports compact filters "+
			"(NODE_COMPACT_FILTERS)", r.Endpoint)

	case OutcomeNotSupported:
		return fmt.Sprintf("%s does not support compact filters",
			r.Endpoint)

	case OutcomeUnreachable:
		if errors.Is(r.Err, ErrPeerClosed) {
			return fmt.Sprintf("%s closed the connection", r.Endpoint)
		}
		return fmt.Sprintf("%s is unreachable: %v", r.Endpoint, r.Err)

	case OutcomeProtocolError:
		return fmt.Sprintf("%s protocol error: %v", r.Endpoint, r.Err)
	}

	return fmt.Sprintf("%s: %v", r.Endpoint, r.Outcome)
}

// classifyError maps a handshake failure to the outcome it is reported as.
func classifyError(err error) Outcome {
	var msgErr *wire.MessageError
	if errors.As(err, &msgErr) {
		switch msgErr.ErrorCode {
		case wire.ErrMagicMismatch, wire.ErrInvalidCommand,
			wire.ErrUserAgentTooLong:

			return OutcomeProtocolError
		}
		return OutcomeUnreachable
	}

	if errors.Is(err, ErrUnexpectedMessage) {
		return OutcomeProtocolError
	}

	return OutcomeUnreachable
}
