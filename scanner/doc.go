// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package scanner probes a fixed list of bitcoin peers for compact filter
support and collects one result per peer.

A Scanner runs a single pass.  Every configured endpoint gets exactly one
probe, run by a bounded pool of workers, each with its own deadline.  A
failure for one endpoint is recorded in its result and never affects the
others.  Scan returns only when every probe has finished, and the Report
always holds one result per endpoint in configuration order, even when the
scan was cancelled part way through.

Repeating scans on a schedule is left to the caller.
*/
package scanner
