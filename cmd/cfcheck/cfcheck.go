// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/cfcheck/internal/log"
	"github.com/btcsuite/cfcheck/internal/version"
	"github.com/btcsuite/cfcheck/sampleconfig"
	"github.com/btcsuite/cfcheck/scanner"
	flags "github.com/jessevdk/go-flags"
)

// cfcheckMain is the real main function for cfcheck.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func cfcheckMain(args []string, stdout io.Writer) error {
	// Load configuration and parse command line.
	cfg, err := loadConfig(args)
	if errors.Is(err, errShowVersion) {
		appName := filepath.Base(os.Args[0])
		appName = strings.TrimSuffix(appName, filepath.Ext(appName))
		fmt.Fprintln(stdout, appName, "version", version.String())
		return nil
	}
	if errors.Is(err, errShowSampleConfig) {
		fmt.Fprint(stdout, sampleconfig.FileContents)
		return nil
	}
	if err != nil {
		return err
	}

	// Initialize the log rotator unless file logging is disabled and make
	// sure it is flushed on the way out.
	if !cfg.NoFileLogging {
		if err := log.InitLogRotator(cfg.logFile()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		defer log.CloseLogRotator()
	}

	cfckLog := log.CfckLog
	cfckLog.Infof("Version %s", version.String())
	cfckLog.Infof("Checking %d peers on %s", len(cfg.endpoints),
		activeNetParams.net)
	if cfg.Proxy != "" {
		cfckLog.Infof("Connecting through SOCKS5 proxy %s", cfg.Proxy)
	}

	s, err := scanner.New(cfg.scannerConfig())
	if err != nil {
		cfckLog.Errorf("Unable to create scanner: %v", err)
		return err
	}

	// Stop starting new checks on interrupt.  The report still covers
	// every endpoint.
	ctx, cancel := withInterrupt(context.Background())
	defer cancel()

	report := s.Scan(ctx)
	if cfg.JSON {
		err = report.WriteJSON(stdout)
	} else {
		err = report.WriteText(stdout)
	}
	if err != nil {
		cfckLog.Errorf("Unable to write report: %v", err)
		return err
	}

	return nil
}

func main() {
	// Work around defer not working after os.Exit()
	if err := cfcheckMain(os.Args[1:], os.Stdout); err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
