// Copyright (c) 2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/cfcheck/peer"
	"github.com/btcsuite/cfcheck/wire"
	"github.com/stretchr/testify/require"
)

// testNet is the network used by the simulated peers.
const testNet = wire.RegTest

// receivedVersion is what a simulated peer saw of our version message.
type receivedVersion struct {
	hdr     *wire.MessageHeader
	payload []byte
	err     error
}

// fakePeer is a simulated remote peer listening on the loopback interface.
// It accepts a single connection and runs script on it.
type fakePeer struct {
	endpoint peer.Endpoint

	// closed receives the error of a read made after the script ran, so
	// tests can check that the probe released the connection.
	closed chan error
}

// startFakePeer starts a simulated peer that runs script on the first
// connection it accepts.
func startFakePeer(t *testing.T, script func(conn net.Conn)) *fakePeer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	addr := l.Addr().(*net.TCPAddr)
	ep, err := peer.NewEndpoint(addr.IP, uint16(addr.Port))
	require.NoError(t, err)

	fp := &fakePeer{endpoint: ep, closed: make(chan error, 1)}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		script(conn)

		// Wait for the probe to go away.
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, err = conn.Read(make([]byte, 1))
		fp.closed <- err
	}()

	return fp
}

// readVersion reads the probe's version message from conn.
func readVersion(conn net.Conn) receivedVersion {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, hdr, err := wire.ReadMessageHeader(conn, testNet)
	if err != nil {
		return receivedVersion{err: err}
	}
	payload, err := wire.ReadPayload(conn, hdr, wire.MaxVersionPayload)
	return receivedVersion{hdr: hdr, payload: payload, err: err}
}

// sendMessage writes a framed message to conn.
func sendMessage(conn net.Conn, btcnet wire.BitcoinNet, cmd string, payload []byte) {
	wire.WriteMessage(conn, btcnet, cmd, payload)
}

// versionPayload returns a version payload advertising services.
func versionPayload(t *testing.T, services wire.ServiceFlag) []byte {
	t.Helper()

	msg := wire.NewMsgVersion(&wire.NetAddress{}, 7, 850000)
	msg.Services = services
	msg.AddUserAgent("Satoshi", "27.0.0")
	payload, err := wire.EncodeVersionPayload(msg)
	require.NoError(t, err)
	return payload
}

// testConfig returns a probe configuration suited to the simulated peers.
func testConfig() *peer.Config {
	return &peer.Config{
		Net:              testNet,
		UserAgentName:    "cfcheck-test",
		UserAgentVersion: "0.0.1",
		DialTimeout:      2 * time.Second,
		ReadTimeout:      2 * time.Second,
	}
}

// stateRecorder collects state transitions reported to the listener.
type stateRecorder struct {
	mtx    sync.Mutex
	states []peer.State
}

func (r *stateRecorder) onStateChange(_ peer.Endpoint, _, to peer.State) {
	r.mtx.Lock()
	r.states = append(r.states, to)
	r.mtx.Unlock()
}

func (r *stateRecorder) get() []peer.State {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]peer.State(nil), r.states...)
}

// TestProbeVerAckBeforeVersion ensures a verack that arrives before the
// peer's version does not end the handshake.
func TestProbeVerAckBeforeVersion(t *testing.T) {
	got := make(chan receivedVersion, 1)
	fp := startFakePeer(t, func(conn net.Conn) {
		got <- readVersion(conn)
		sendMessage(conn, testNet, wire.CmdVerAck, nil)
		sendMessage(conn, testNet, wire.CmdVersion,
			versionPayload(t, wire.SFNodeCF))
	})

	var rec stateRecorder
	cfg := testConfig()
	cfg.Listeners.OnStateChange = rec.onStateChange

	result := peer.Probe(context.Background(), cfg, fp.endpoint)
	require.NoError(t, result.Err)
	require.Equal(t, peer.OutcomeSupported, result.Outcome)
	require.Equal(t, peer.StateDecided, result.State)
	require.Equal(t, wire.SFNodeCF, result.Services)
	require.Equal(t, wire.ProtocolVersion, result.ProtocolVersion)
	require.Equal(t, fp.endpoint.String(), result.Endpoint.String())
	require.Equal(t, []peer.State{peer.StateAwaitingVersion,
		peer.StateDecided}, rec.get())

	// Check what the peer received.
	rv := <-got
	require.NoError(t, rv.err)
	require.Equal(t, wire.CmdVersion, rv.hdr.Command)

	le := binary.LittleEndian
	require.Equal(t, uint32(70015), le.Uint32(rv.payload[0:4]))
	require.Equal(t, uint64(0), le.Uint64(rv.payload[4:12]))
	require.Equal(t, []byte{127, 0, 0, 1}, rv.payload[40:44])
	require.Equal(t, fp.endpoint.Port, binary.BigEndian.Uint16(rv.payload[44:46]))
	require.Equal(t, make([]byte, 26), rv.payload[46:72])
	require.Equal(t, "/cfcheck-test:0.0.1/",
		string(rv.payload[81:81+int(rv.payload[80])]))

	// The connection is released once decided.
	require.ErrorIs(t, <-fp.closed, io.EOF)
}

// TestProbeNotSupported ensures a version without the compact filter bit is
// reported as not supported, with no verack at all.
func TestProbeNotSupported(t *testing.T) {
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		sendMessage(conn, testNet, wire.CmdVersion,
			versionPayload(t, wire.SFNodeNetwork|wire.SFNodeWitness|
				wire.SFNodeNetworkLimited))
		sendMessage(conn, testNet, wire.CmdVerAck, nil)
	})

	result := peer.Probe(context.Background(), testConfig(), fp.endpoint)
	require.NoError(t, result.Err)
	require.Equal(t, peer.OutcomeNotSupported, result.Outcome)
	require.Equal(t, wire.SFNodeNetwork|wire.SFNodeWitness|
		wire.SFNodeNetworkLimited, result.Services)
}

// TestProbeImmediateClose ensures a peer that closes right after accepting
// yields Unreachable rather than a crash.
func TestProbeImmediateClose(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	addr := l.Addr().(*net.TCPAddr)
	ep, err := peer.NewEndpoint(addr.IP, uint16(addr.Port))
	require.NoError(t, err)

	result := peer.Probe(context.Background(), testConfig(), ep)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.Equal(t, peer.StateFailed, result.State)
	require.Error(t, result.Err)
}

// TestProbePeerClosed ensures a clean close while awaiting the version is
// reported as Unreachable with ErrPeerClosed.
func TestProbePeerClosed(t *testing.T) {
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		sendMessage(conn, testNet, wire.CmdVerAck, nil)
		conn.Close()
	})

	result := peer.Probe(context.Background(), testConfig(), fp.endpoint)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.ErrorIs(t, result.Err, peer.ErrPeerClosed)
	require.Contains(t, result.String(), "closed the connection")
}

// TestProbeUnexpectedMessage ensures any command other than version or
// verack ends the probe with a protocol error and no further reads.
func TestProbeUnexpectedMessage(t *testing.T) {
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		sendMessage(conn, testNet, wire.CmdPing, make([]byte, 8))
	})

	result := peer.Probe(context.Background(), testConfig(), fp.endpoint)
	require.Equal(t, peer.OutcomeProtocolError, result.Outcome)
	require.Equal(t, peer.StateFailed, result.State)
	require.ErrorIs(t, result.Err, peer.ErrUnexpectedMessage)
	require.Contains(t, result.Err.Error(), "ping")

	// The unread ping payload may turn the close into a reset, but either
	// way the peer must not be left waiting.
	err := <-fp.closed
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(t, netErr.Timeout())
	}
}

// TestProbeMagicMismatch ensures a peer on another network is a protocol
// error.
func TestProbeMagicMismatch(t *testing.T) {
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		sendMessage(conn, wire.MainNet, wire.CmdVersion,
			versionPayload(t, wire.SFNodeCF))
	})

	result := peer.Probe(context.Background(), testConfig(), fp.endpoint)
	require.Equal(t, peer.OutcomeProtocolError, result.Outcome)
	require.True(t, wire.IsErrorCode(result.Err, wire.ErrMagicMismatch),
		"got %v", result.Err)
}

// TestProbeMalformedVersion ensures truncated or incomplete version payloads
// are reported as Unreachable while keeping the framing error as the cause.
func TestProbeMalformedVersion(t *testing.T) {
	tests := []struct {
		name   string
		script func(conn net.Conn)
		code   wire.ErrorCode
	}{
		{
			name: "payload too short for services",
			script: func(conn net.Conn) {
				sendMessage(conn, testNet, wire.CmdVersion,
					make([]byte, 8))
			},
			code: wire.ErrTruncatedPayload,
		},
		{
			name: "connection closed mid payload",
			script: func(conn net.Conn) {
				msg, _ := wire.EncodeMessage(testNet,
					wire.CmdVersion, make([]byte, 100))
				conn.Write(msg[:wire.MessageHeaderSize+10])
				conn.Close()
			},
			code: wire.ErrShortRead,
		},
		{
			name: "connection closed mid header",
			script: func(conn net.Conn) {
				msg, _ := wire.EncodeMessage(testNet,
					wire.CmdVersion, nil)
				conn.Write(msg[:10])
				conn.Close()
			},
			code: wire.ErrShortRead,
		},
		{
			name: "bad checksum",
			script: func(conn net.Conn) {
				msg, _ := wire.EncodeMessage(testNet,
					wire.CmdVersion, versionPayload(t, 0))
				msg[len(msg)-1] ^= 0xff
				conn.Write(msg)
			},
			code: wire.ErrChecksumMismatch,
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fp := startFakePeer(t, func(conn net.Conn) {
				readVersion(conn)
				test.script(conn)
			})

			result := peer.Probe(context.Background(), testConfig(),
				fp.endpoint)
			require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
			require.True(t, wire.IsErrorCode(result.Err, test.code),
				"got %v", result.Err)
		})
	}
}

// TestProbeVersionPayloadLength ensures the header length decides how much of
// the version is read.  Payloads carrying extra trailing bytes are still
// decided from their leading fields and only absurd lengths are refused.
func TestProbeVersionPayloadLength(t *testing.T) {
	extended := func(size int) []byte {
		payload := versionPayload(t, wire.SFNodeNetwork|wire.SFNodeCF)
		return append(payload, make([]byte, size-len(payload))...)
	}
	minimal := make([]byte, 12)
	binary.LittleEndian.PutUint32(minimal[0:4], 70016)
	binary.LittleEndian.PutUint64(minimal[4:12], uint64(wire.SFNodeCF))

	tests := []struct {
		name    string
		payload []byte
		outcome peer.Outcome
	}{
		{"only version and services", minimal, peer.OutcomeSupported},
		{"trailing fields", extended(400), peer.OutcomeSupported},
		{"at the limit", extended(wire.MaxVersionPayload), peer.OutcomeSupported},
		{"past the limit", make([]byte, wire.MaxVersionPayload+1), peer.OutcomeUnreachable},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fp := startFakePeer(t, func(conn net.Conn) {
				readVersion(conn)
				sendMessage(conn, testNet, wire.CmdVersion,
					test.payload)
			})

			result := peer.Probe(context.Background(), testConfig(),
				fp.endpoint)
			require.Equal(t, test.outcome, result.Outcome,
				"err: %v", result.Err)
			if test.outcome == peer.OutcomeUnreachable {
				require.True(t, wire.IsErrorCode(result.Err,
					wire.ErrPayloadTooLarge), "got %v", result.Err)
				return
			}
			require.NoError(t, result.Err)
			require.True(t, result.Services&wire.SFNodeCF != 0)
		})
	}
}

// TestProbeReadTimeout ensures a peer that accepts but never replies cannot
// stall the probe past the read timeout.
func TestProbeReadTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		<-release
	})

	cfg := testConfig()
	cfg.ReadTimeout = 200 * time.Millisecond

	result := peer.Probe(context.Background(), cfg, fp.endpoint)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.Less(t, result.Elapsed, 5*time.Second)

	var netErr net.Error
	require.True(t, errors.As(result.Err, &netErr), "got %v", result.Err)
	require.True(t, netErr.Timeout())
}

// TestProbeContextDeadline ensures the context deadline bounds a probe even
// when the read timeout is long.
func TestProbeContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		<-release
	})

	cfg := testConfig()
	cfg.ReadTimeout = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(),
		200*time.Millisecond)
	defer cancel()

	result := peer.Probe(ctx, cfg, fp.endpoint)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.ErrorIs(t, result.Err, context.DeadlineExceeded)
	require.Less(t, result.Elapsed, 5*time.Second)
}

// TestProbeContextCancel ensures cancelling the context unblocks a pending
// read.
func TestProbeContextCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		<-release
	})

	cfg := testConfig()
	cfg.ReadTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cfg.Listeners.OnStateChange = func(_ peer.Endpoint, _, to peer.State) {
		if to == peer.StateAwaitingVersion {
			time.AfterFunc(100*time.Millisecond, cancel)
		}
	}
	defer cancel()

	result := peer.Probe(ctx, cfg, fp.endpoint)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.ErrorIs(t, result.Err, context.Canceled)
}

// TestProbeConnectionRefused ensures a failed connect goes straight to
// Failed(Unreachable).
func TestProbeConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	ep, err := peer.NewEndpoint(addr.IP, uint16(addr.Port))
	require.NoError(t, err)

	var rec stateRecorder
	cfg := testConfig()
	cfg.Listeners.OnStateChange = rec.onStateChange

	result := peer.Probe(context.Background(), cfg, ep)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.Equal(t, []peer.State{peer.StateFailed}, rec.get())
	require.Contains(t, result.String(), "is unreachable")
}

// TestProbeCustomDial ensures the configured dialer is used with the dial
// timeout applied to its context.
func TestProbeCustomDial(t *testing.T) {
	ep, err := peer.ParseEndpoint("192.0.2.1:8333", "")
	require.NoError(t, err)

	var dialed string
	cfg := testConfig()
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = addr
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result := peer.Probe(context.Background(), cfg, ep)
	require.Equal(t, "192.0.2.1:8333", dialed)
	require.Equal(t, peer.OutcomeUnreachable, result.Outcome)
	require.ErrorIs(t, result.Err, context.DeadlineExceeded)
}

// TestProbeListeners ensures read and write listeners observe the exchange.
func TestProbeListeners(t *testing.T) {
	fp := startFakePeer(t, func(conn net.Conn) {
		readVersion(conn)
		sendMessage(conn, testNet, wire.CmdVerAck, nil)
		sendMessage(conn, testNet, wire.CmdVersion,
			versionPayload(t, wire.SFNodeCF))
	})

	var (
		written []string
		read    []string
	)
	cfg := testConfig()
	cfg.Listeners.OnWrite = func(_ peer.Endpoint, n int, cmd string, err error) {
		require.NoError(t, err)
		require.Greater(t, n, wire.MessageHeaderSize)
		written = append(written, cmd)
	}
	cfg.Listeners.OnRead = func(_ peer.Endpoint, n int, hdr *wire.MessageHeader, err error) {
		require.NoError(t, err)
		require.Equal(t, wire.MessageHeaderSize, n)
		read = append(read, hdr.Command)
	}

	result := peer.Probe(context.Background(), cfg, fp.endpoint)
	require.Equal(t, peer.OutcomeSupported, result.Outcome)
	require.Equal(t, []string{wire.CmdVersion}, written)
	require.Equal(t, []string{wire.CmdVerAck, wire.CmdVersion}, read)
}
