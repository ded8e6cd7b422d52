// Copyright (c) 2013-2024 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of message framing error.
type ErrorCode int

// These constants are used to identify a specific MessageError.
const (
	// ErrInvalidCommand indicates an outbound command is longer than
	// CommandSize or contains non-ASCII characters.
	ErrInvalidCommand ErrorCode = iota

	// ErrShortRead indicates fewer bytes were available than a header or
	// payload requires.
	ErrShortRead

	// ErrMagicMismatch indicates a message header carries the magic value
	// of a different bitcoin network.
	ErrMagicMismatch

	// ErrTruncatedPayload indicates a payload is too small to contain a
	// field the decoder needs.
	ErrTruncatedPayload

	// ErrPayloadTooLarge indicates a payload exceeds the maximum size
	// allowed for the message.
	ErrPayloadTooLarge

	// ErrChecksumMismatch indicates the checksum in a message header does
	// not match the payload that followed it.
	ErrChecksumMismatch

	// ErrUserAgentTooLong indicates a version message user agent exceeds
	// MaxUserAgentLen.
	ErrUserAgentTooLong
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidCommand:   "ErrInvalidCommand",
	ErrShortRead:        "ErrShortRead",
	ErrMagicMismatch:    "ErrMagicMismatch",
	ErrTruncatedPayload: "ErrTruncatedPayload",
	ErrPayloadTooLarge:  "ErrPayloadTooLarge",
	ErrChecksumMismatch: "ErrChecksumMismatch",
	ErrUserAgentTooLong: "ErrUserAgentTooLong",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// MessageError describes an issue with a message.  An example of some potential
// issues are messages from the wrong bitcoin network, invalid commands,
// mismatched checksums, and exceeding max payloads.
//
// This provides a mechanism for the caller to type assert the error to
// differentiate between general io errors such as io.EOF and issues that
// resulted from malformed messages.
type MessageError struct {
	Func        string    // Function name
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%v: %v", e.Func, e.Description)
	}
	return e.Description
}

// messageError creates an error for the given function, code and description.
func messageError(f string, c ErrorCode, desc string) *MessageError {
	return &MessageError{Func: f, ErrorCode: c, Description: desc}
}

// IsErrorCode returns whether err is a MessageError, possibly wrapped, with
// the given error code.
func IsErrorCode(err error, c ErrorCode) bool {
	var msgErr *MessageError
	return errors.As(err, &msgErr) && msgErr.ErrorCode == c
}
