// Copyright (c) 2013, 2014 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "github.com/zcoldwallet/zcoldwallet/netparams"

var activeNet = &mainNetParams

// params is used to group parameters for various networks such as the main
// network and test networks.
type params struct {
	*netparams.Params

	// lightnodePort is added to a --lightnode address without a port.
	lightnodePort string
}

// mainNetParams contains parameters specific running zcoldwallet on the main
// network.
var mainNetParams = params{
	Params:        &netparams.MainNetParams,
	lightnodePort: "9067",
}

// testNetParams contains parameters specific running zcoldwallet on the test
// network.
var testNetParams = params{
	Params:        &netparams.TestNetParams,
	lightnodePort: "9067",
}

// simNetParams contains parameters specific to the simulation test network.
var simNetParams = params{
	Params:        &netparams.SimNetParams,
	lightnodePort: "9067",
}
