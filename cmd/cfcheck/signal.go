// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/btcsuite/cfcheck/internal/log"
)

// interruptSignals defines the default signals to catch in order to stop a
// scan early.  This may be modified during init depending on the platform.
var interruptSignals = []os.Signal{os.Interrupt}

// withInterrupt returns a copy of ctx that is cancelled when an interrupt
// signal is received.  A second signal is not caught, so it terminates the
// process right away.
func withInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	interruptChannel := make(chan os.Signal, 1)
	signal.Notify(interruptChannel, interruptSignals...)

	go func() {
		defer signal.Stop(interruptChannel)

		select {
		case sig := <-interruptChannel:
			log.CfckLog.Infof("Received signal (%s).  Finishing "+
				"report...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
