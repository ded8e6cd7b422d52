// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixedReader implements the io.Reader interface and intentionally returns
// EOF after the passed bytes were read.
type fixedReader struct {
	buf []byte
}

func (fr *fixedReader) Read(p []byte) (int, error) {
	if len(fr.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, fr.buf)
	fr.buf = fr.buf[n:]
	return n, nil
}

// fakeRandReader implements the io.Reader interface and is used to force
// errors in the RandomUint64 function.
type fakeRandReader struct {
	n   int
	err error
}

// Read returns the fake reader error and the lesser of the fake reader value
// and the length of p.
func (r *fakeRandReader) Read(p []byte) (int, error) {
	n := r.n
	if n > len(p) {
		n = len(p)
	}
	return n, r.err
}

// TestElementWire tests wire encode and decode for the element types used in
// message headers and version payloads.
func TestElementWire(t *testing.T) {
	tests := []struct {
		in  interface{}
		buf []byte
	}{
		{int32(70015), []byte{0x7f, 0x11, 0x01, 0x00}},
		{uint32(0xdeadbeef), []byte{0xef, 0xbe, 0xad, 0xde}},
		{int64(1700000000), []byte{0x00, 0xf1, 0x53, 0x65, 0x00, 0x00, 0x00, 0x00}},
		{true, []byte{0x01}},
		{false, []byte{0x00}},
		{SFNodeNetwork | SFNodeCF, []byte{0x41, 0, 0, 0, 0, 0, 0, 0}},
		{MainNet, []byte{0xf9, 0xbe, 0xb4, 0xd9}},
		{[4]byte{1, 2, 3, 4}, []byte{1, 2, 3, 4}},
	}

	for i, test := range tests {
		var buf bytes.Buffer
		require.NoError(t, writeElement(&buf, test.in), "test #%d", i)
		require.Equal(t, test.buf, buf.Bytes(), "test #%d", i)
	}

	var (
		version  int32
		services ServiceFlag
		magic    BitcoinNet
	)
	r := bytes.NewReader([]byte{
		0x7f, 0x11, 0x01, 0x00,
		0x40, 0, 0, 0, 0, 0, 0, 0,
		0x0b, 0x11, 0x09, 0x07,
	})
	require.NoError(t, readElements(r, &version, &services, &magic))
	require.Equal(t, int32(70015), version)
	require.Equal(t, SFNodeCF, services)
	require.Equal(t, TestNet3, magic)

	// Short input is reported by the reader.
	err := readElement(&fixedReader{buf: []byte{1, 2}}, &version)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// TestRandomUint64Errors uses a fake reader to force error paths to be
// executed and checks the results accordingly.
func TestRandomUint64Errors(t *testing.T) {
	// Test short reads.
	fr := &fakeRandReader{n: 2, err: io.EOF}
	nonce, err := randomUint64(fr)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Zero(t, nonce)

	// Test reader errors.
	readErr := errors.New("entropy exhausted")
	_, err = randomUint64(&fakeRandReader{err: readErr})
	require.ErrorIs(t, err, readErr)

	// The real source works.
	_, err = RandomUint64()
	require.NoError(t, err)

	// A full read is decoded little endian.
	nonce, err = randomUint64(&fixedReader{buf: []byte{1, 0, 0, 0, 0, 0, 0, 0x80}})
	require.NoError(t, err)
	require.Equal(t, uint64(0x8000000000000001), nonce)
}
