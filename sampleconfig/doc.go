// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sampleconfig provides a single constant that contains the contents of
the sample configuration file for cfcheck.  Every option is present and
commented out, so the file can be used as a starting point.
*/
package sampleconfig
