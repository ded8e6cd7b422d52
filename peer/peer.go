// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/cfcheck/wire"
	"github.com/davecgh/go-spew/spew"
)

const (
	// DefaultDialTimeout is the time allowed to establish the TCP
	// connection.
	DefaultDialTimeout = 10 * time.Second

	// DefaultReadTimeout bounds every blocking read once connected, and
	// the write of our version message.
	DefaultReadTimeout = 30 * time.Second

	// DefaultUserAgentName is the user agent name advertised when the
	// config leaves it empty.
	DefaultUserAgentName = "cfcheck"

	// DefaultUserAgentVersion is the user agent version advertised when
	// the config leaves it empty.
	DefaultUserAgentVersion = "0.1.0"
)

// aLongTimeAgo is a deadline in the past used to unblock pending reads and
// writes when a probe's context is done.
var aLongTimeAgo = time.Unix(1, 0)

// DialFunc establishes a connection to addr on the named network.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Listeners defines callbacks invoked while a probe runs.  All of them are
// optional.  They are called synchronously from the probing goroutine, so a
// slow listener slows the probe.
type Listeners struct {
	// OnStateChange is invoked when the handshake moves to a new state.
	OnStateChange func(ep Endpoint, from, to State)

	// OnRead is invoked after a message header is read, whether or not
	// it could be decoded.
	OnRead func(ep Endpoint, bytesRead int, hdr *wire.MessageHeader, err error)

	// OnWrite is invoked after a message is written to the peer.
	OnWrite func(ep Endpoint, bytesWritten int, cmd string, err error)
}

// Config is the struct to hold configuration options useful to Probe.
type Config struct {
	// Net identifies the bitcoin network the peer must belong to.  It
	// defaults to wire.MainNet.
	Net wire.BitcoinNet

	// UserAgentName and UserAgentVersion form the /name:version/ user
	// agent sent in our version message.
	UserAgentName    string
	UserAgentVersion string

	// Services are the services advertised in our version message.  A
	// probe advertises none by default.
	Services wire.ServiceFlag

	// DialTimeout bounds connection establishment.  Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// ReadTimeout bounds each blocking read and the version write.  Zero
	// means DefaultReadTimeout.
	ReadTimeout time.Duration

	// Dial establishes the connection.  It defaults to a net.Dialer.
	Dial DialFunc

	// Listeners houses callback functions to be invoked during the probe.
	Listeners Listeners
}

// withDefaults returns a copy of the config with zero values replaced by
// their defaults.
func (cfg *Config) withDefaults() Config {
	c := *cfg
	if c.Net == 0 {
		c.Net = wire.MainNet
	}
	if c.UserAgentName == "" {
		c.UserAgentName = DefaultUserAgentName
	}
	if c.UserAgentVersion == "" {
		c.UserAgentVersion = DefaultUserAgentVersion
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.Dial == nil {
		var d net.Dialer
		c.Dial = d.DialContext
	}
	return c
}

// handshake holds the state of one probe.
type handshake struct {
	cfg      Config
	endpoint Endpoint
	state    State
	conn     net.Conn

	// mtx protects cancelled so a deadline set by the read loop can never
	// override the one forced by context cancellation.
	mtx       sync.Mutex
	cancelled bool
}

// Probe connects to ep, performs the version handshake and reports whether
// the peer advertises compact filter support.  Failures are reported through
// the Result rather than an error.
//
// The connection is closed before Probe returns.
func Probe(ctx context.Context, cfg *Config, ep Endpoint) Result {
	if cfg == nil {
		cfg = &Config{}
	}
	h := &handshake{
		cfg:      cfg.withDefaults(),
		endpoint: ep,
		state:    StateConnecting,
	}

	start := time.Now()
	result := h.run(ctx)
	result.Endpoint = ep
	result.State = h.state
	result.Elapsed = time.Since(start)

	log.Debugf("Probe of %s finished in %v: %v", ep, result.Elapsed,
		result.Outcome)
	return result
}

// setState transitions the state machine and notifies the listener.
func (h *handshake) setState(s State) {
	from := h.state
	h.state = s
	log.Tracef("Peer %s: %v -> %v", h.endpoint, from, s)
	if h.cfg.Listeners.OnStateChange != nil {
		h.cfg.Listeners.OnStateChange(h.endpoint, from, s)
	}
}

// fail moves to StateFailed and builds the result for err.
func (h *handshake) fail(ctx context.Context, err error) Result {
	// Report the context error rather than the deadline it forced on the
	// connection.
	outcome := classifyError(err)
	ctxErr := ctx.Err()
	if d, ok := ctx.Deadline(); ok && ctxErr == nil && !time.Now().Before(d) {
		// The read deadline was clipped to the context deadline and can
		// fire before the context's own timer.
		ctxErr = context.DeadlineExceeded
	}
	if ctxErr != nil && outcome == OutcomeUnreachable && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}

	h.setState(StateFailed)
	log.Debugf("Peer %s failed (%v): %v", h.endpoint, outcome, err)
	return Result{Outcome: outcome, Err: err}
}

// run drives the handshake from Connecting to a terminal state.
func (h *handshake) run(ctx context.Context) Result {
	conn, err := h.dial(ctx)
	if err != nil {
		return h.fail(ctx, err)
	}
	h.conn = conn
	defer conn.Close()

	// Unblock any pending read or write as soon as the context is done.
	stop := context.AfterFunc(ctx, func() {
		h.mtx.Lock()
		h.cancelled = true
		h.conn.SetDeadline(aLongTimeAgo)
		h.mtx.Unlock()
	})
	defer stop()

	if err := h.sendVersion(ctx); err != nil {
		return h.fail(ctx, err)
	}
	h.setState(StateAwaitingVersion)

	for {
		hdr, err := h.readHeader(ctx)
		if err != nil {
			return h.fail(ctx, err)
		}

		switch hdr.Command {
		case wire.CmdVersion:
			return h.handleVersion(ctx, hdr)

		case wire.CmdVerAck:
			// A peer may acknowledge our version before sending its
			// own, so keep waiting.
			if err := h.discard(ctx, hdr); err != nil {
				return h.fail(ctx, err)
			}

		default:
			err := fmt.Errorf("%w: %s", ErrUnexpectedMessage,
				hdr.Command)
			return h.fail(ctx, err)
		}
	}
}

// dial establishes the connection bounded by the dial timeout.
func (h *handshake) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, h.cfg.DialTimeout)
	defer cancel()

	log.Debugf("Connecting to %s", h.endpoint)
	conn, err := h.cfg.Dial(dialCtx, "tcp", h.endpoint.String())
	if err != nil {
		return nil, fmt.Errorf("unable to connect: %w", err)
	}
	return conn, nil
}

// setDeadline arms the connection deadline for the next blocking operation.
// The deadline is the read timeout clipped to the context deadline.
func (h *handshake) setDeadline(ctx context.Context) error {
	deadline := time.Now().Add(h.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.cancelled {
		return ctx.Err()
	}
	return h.conn.SetDeadline(deadline)
}

// sendVersion builds our version message for the peer and writes it.
func (h *handshake) sendVersion(ctx context.Context) error {
	nonce, err := wire.RandomUint64()
	if err != nil {
		return err
	}

	you := wire.NewNetAddressIPPort(h.endpoint.IP, h.endpoint.Port, 0)
	msg := wire.NewMsgVersion(you, nonce, 0)
	msg.Services = h.cfg.Services
	msg.AddUserAgent(h.cfg.UserAgentName, h.cfg.UserAgentVersion)

	payload, err := wire.EncodeVersionPayload(msg)
	if err != nil {
		return err
	}
	buf, err := wire.EncodeMessage(h.cfg.Net, wire.CmdVersion, payload)
	if err != nil {
		return err
	}

	log.Debugf("Sending version (agent %s, nonce %d) to %s", msg.UserAgent,
		nonce, h.endpoint)
	log.Tracef("%v", newLogClosure(func() string {
		return spew.Sdump(msg)
	}))

	if err := h.setDeadline(ctx); err != nil {
		return err
	}
	n, err := h.conn.Write(buf)
	if h.cfg.Listeners.OnWrite != nil {
		h.cfg.Listeners.OnWrite(h.endpoint, n, wire.CmdVersion, err)
	}
	if err != nil {
		return fmt.Errorf("unable to send version: %w", err)
	}
	return nil
}

// readHeader blocks for the next message header.
func (h *handshake) readHeader(ctx context.Context) (*wire.MessageHeader, error) {
	if err := h.setDeadline(ctx); err != nil {
		return nil, err
	}

	n, hdr, err := wire.ReadMessageHeader(h.conn, h.cfg.Net)
	if h.cfg.Listeners.OnRead != nil {
		h.cfg.Listeners.OnRead(h.endpoint, n, hdr, err)
	}
	if errors.Is(err, io.EOF) {
		return nil, ErrPeerClosed
	}
	if err != nil {
		return nil, err
	}

	log.Debugf("%v", newLogClosure(func() string {
		return fmt.Sprintf("Received %s from %s", headerSummary(hdr),
			h.endpoint)
	}))
	return hdr, nil
}

// discard skips the payload of a message we do not care about.
func (h *handshake) discard(ctx context.Context, hdr *wire.MessageHeader) error {
	if hdr.Length == 0 {
		return nil
	}
	if err := h.setDeadline(ctx); err != nil {
		return err
	}
	return wire.DiscardPayload(h.conn, hdr)
}

// handleVersion reads the peer's version payload and decides the probe.
func (h *handshake) handleVersion(ctx context.Context, hdr *wire.MessageHeader) Result {
	if err := h.setDeadline(ctx); err != nil {
		return h.fail(ctx, err)
	}
	payload, err := wire.ReadPayload(h.conn, hdr, wire.MaxVersionPayload)
	if err != nil {
		return h.fail(ctx, err)
	}
	log.Tracef("%v", newLogClosure(func() string {
		return spew.Sdump(payload)
	}))

	msg, err := wire.DecodeVersionPayload(payload)
	if err != nil {
		return h.fail(ctx, err)
	}

	h.setState(StateDecided)
	outcome := OutcomeNotSupported
	if wire.HasCompactFilterSupport(uint64(msg.Services)) {
		outcome = OutcomeSupported
	}
	log.Debugf("Peer %s advertises services %v (protocol %d)", h.endpoint,
		msg.Services, msg.ProtocolVersion)

	return Result{
		Outcome:         outcome,
		Services:        msg.Services,
		ProtocolVersion: msg.ProtocolVersion,
	}
}
