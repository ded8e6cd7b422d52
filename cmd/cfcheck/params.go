// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/btcsuite/cfcheck/wire"
)

// activeNetParams is a pointer to the parameters specific to the currently
// active bitcoin network.
var activeNetParams = &mainNetParams

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	// name is used in the log directory path so logs of different
	// networks never mix.
	name string

	// net is the magic value messages on the network carry.
	net wire.BitcoinNet

	// peerPort is appended to endpoints given without a port.
	peerPort string
}

// mainNetParams contains parameters specific to the main network
// (wire.MainNet).
var mainNetParams = params{
	name:     "mainnet",
	net:      wire.MainNet,
	peerPort: "8333",
}

// testNet3Params contains parameters specific to the test network (version 3)
// (wire.TestNet3).
var testNet3Params = params{
	name:     "testnet3",
	net:      wire.TestNet3,
	peerPort: "18333",
}

// testNet4Params contains parameters specific to the test network (version 4)
// (wire.TestNet4).
var testNet4Params = params{
	name:     "testnet4",
	net:      wire.TestNet4,
	peerPort: "48333",
}

// sigNetParams contains parameters specific to the default signet
// (wire.SigNet).
var sigNetParams = params{
	name:     "signet",
	net:      wire.SigNet,
	peerPort: "38333",
}

// regressionNetParams contains parameters specific to the regression test
// network (wire.RegTest).
var regressionNetParams = params{
	name:     "regtest",
	net:      wire.RegTest,
	peerPort: "18444",
}
