// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/cfcheck/internal/log"
	"github.com/btcsuite/cfcheck/internal/version"
	"github.com/btcsuite/cfcheck/peer"
	"github.com/btcsuite/cfcheck/scanner"
	"github.com/btcsuite/cfcheck/wire"
	"github.com/btcsuite/go-socks/socks"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "cfcheck.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "cfcheck.log"
	defaultLogLevel       = "info"
	defaultUserAgent      = peer.DefaultUserAgentName
)

var (
	defaultHomeDir    = btcutil.AppDataDir("cfcheck", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

var (
	// errShowVersion is returned by loadConfig when the version flag was
	// given.
	errShowVersion = errors.New("version requested")

	// errShowSampleConfig is returned by loadConfig when the sample config
	// flag was given.
	errShowSampleConfig = errors.New("sample config requested")
)

// config defines the configuration options for cfcheck.
//
// See loadConfig for details on the configuration load process.
type config struct {
	ConfigFile     string        `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion    bool          `short:"V" long:"version" description:"Display version information and exit"`
	SampleConfig   bool          `long:"sampleconfig" description:"Print a commented sample config file and exit"`
	Nodes          []string      `short:"n" long:"node" description:"Peer to check, as ip or ip:port -- may be repeated, positional arguments are added too -- peers given on the command line replace those from the config file"`
	TestNet3       bool          `long:"testnet" description:"Use the test network (version 3)"`
	TestNet4       bool          `long:"testnet4" description:"Use the test network (version 4)"`
	SigNet         bool          `long:"signet" description:"Use the default signet"`
	RegressionTest bool          `long:"regtest" description:"Use the regression test network"`
	MaxConcurrent  int           `short:"j" long:"maxconcurrent" description:"Max number of peers checked at the same time"`
	DialTimeout    time.Duration `long:"dialtimeout" description:"How long to wait for a connection to be established"`
	ReadTimeout    time.Duration `long:"readtimeout" description:"How long to wait on each read from a peer"`
	ProbeTimeout   time.Duration `long:"probetimeout" description:"Upper bound on a whole check of a single peer"`
	Proxy          string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser      string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass      string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	TorIsolation   bool          `long:"torisolation" description:"Enable Tor stream isolation by randomizing user credentials for each connection"`
	UserAgent      string        `long:"useragent" description:"User agent name advertised to peers"`
	JSON           bool          `long:"json" description:"Write the report as JSON"`
	LogDir         string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging  bool          `long:"nofilelogging" description:"Disable file logging"`
	DebugLevel     string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	endpoints []peer.Endpoint
	dial      peer.DialFunc
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but they variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeEndpoints parses the passed addresses, using the active network's
// port when one is missing, and drops duplicates.
func normalizeEndpoints(addrs []string) ([]peer.Endpoint, error) {
	seen := make(map[string]struct{}, len(addrs))
	endpoints := make([]peer.Endpoint, 0, len(addrs))
	for _, addr := range addrs {
		ep, err := peer.ParseEndpoint(strings.TrimSpace(addr),
			activeNetParams.peerPort)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", addr, err)
		}
		if _, ok := seen[ep.String()]; ok {
			continue
		}
		seen[ep.String()] = struct{}{}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// proxyDialer returns a dial function that connects through the SOCKS5 proxy
// described by cfg.  The dial timeout is taken from the context deadline.
func proxyDialer(cfg *config) peer.DialFunc {
	proxy := &socks.Proxy{
		Addr:         cfg.Proxy,
		Username:     cfg.ProxyUser,
		Password:     cfg.ProxyPass,
		TorIsolation: cfg.TorIsolation,
	}
	return contextDialer(func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return proxy.DialTimeout(network, addr, timeout)
	}, cfg.DialTimeout)
}

// timeoutDialFunc dials addr, giving up after timeout.
type timeoutDialFunc func(network, addr string, timeout time.Duration) (net.Conn, error)

// dialResult is the outcome of a dial run by contextDialer.
type dialResult struct {
	conn net.Conn
	err  error
}

// contextDialer adapts a dial function that only knows about timeouts so it
// returns as soon as the context is done.  A connection that completes after
// the context is done is closed.
func contextDialer(dial timeoutDialFunc, defaultTimeout time.Duration) peer.DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		timeout := defaultTimeout
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		done := make(chan dialResult, 1)
		go func() {
			conn, err := dial(network, addr, timeout)
			done <- dialResult{conn, err}
		}()

		select {
		case res := <-done:
			return res.conn, res.err
		case <-ctx.Done():
			go func() {
				if res := <-done; res.conn != nil {
					res.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}

// userAgentOK returns an error when name cannot be advertised as the name
// part of a /name:version/ user agent.
func userAgentOK(name string) error {
	if name == "" {
		return errors.New("the user agent may not be empty")
	}
	if strings.ContainsAny(name, "/:()") {
		return fmt.Errorf("the user agent %q contains one of the "+
			"reserved characters /:()", name)
	}
	ua := fmt.Sprintf("/%s:%s/", name, version.Short())
	if len(ua) > wire.MaxUserAgentLen {
		return fmt.Errorf("the user agent is too long [len %d, max %d]",
			len(ua), wire.MaxUserAgentLen)
	}
	return nil
}

// peerConfig returns the handshake configuration described by cfg.
func (cfg *config) peerConfig() peer.Config {
	return peer.Config{
		Net:              activeNetParams.net,
		UserAgentName:    cfg.UserAgent,
		UserAgentVersion: version.Short(),
		DialTimeout:      cfg.DialTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		Dial:             cfg.dial,
	}
}

// scannerConfig returns the scanner configuration described by cfg.
func (cfg *config) scannerConfig() *scanner.Config {
	return &scanner.Config{
		Endpoints:     cfg.endpoints,
		Peer:          cfg.peerConfig(),
		MaxConcurrent: cfg.MaxConcurrent,
		ProbeTimeout:  cfg.ProbeTimeout,
	}
}

// logFile returns the path of the log file for the active network.
func (cfg *config) logFile() string {
	return filepath.Join(cfg.LogDir, activeNetParams.name, defaultLogFilename)
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in cfcheck functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(args []string) (*config, error) {
	// Default config.
	cfg := config{
		ConfigFile:    defaultConfigFile,
		MaxConcurrent: scanner.DefaultMaxConcurrent,
		DialTimeout:   peer.DefaultDialTimeout,
		ReadTimeout:   peer.DefaultReadTimeout,
		ProbeTimeout:  scanner.DefaultProbeTimeout,
		UserAgent:     defaultUserAgent,
		LogDir:        defaultLogDir,
		DebugLevel:    defaultLogLevel,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		return &preCfg, errShowVersion
	}
	if preCfg.SampleConfig {
		return &preCfg, errShowSampleConfig
	}

	// Load additional config from file.  A missing file is not an error
	// since the defaults are usable on their own.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cleanAndExpandPath(preCfg.ConfigFile))
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintf(os.Stderr, "Error parsing config file: %v\n", err)
			parser.WriteHelp(os.Stderr)
			return nil, err
		}
		configFileError = err
	}

	// Peers from the config file are only used when none are given on the
	// command line, either as node options or as arguments.
	fileNodes := cfg.Nodes
	cfg.Nodes = nil

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	// configError prints err with the usage and returns it.
	configError := func(err error) (*config, error) {
		err = fmt.Errorf("loadConfig: %w", err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Use cfcheck --help to show usage")
		return nil, err
	}

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", log.SupportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := log.ParseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return configError(err)
	}

	// Multiple networks can't be selected simultaneously.  Count number of
	// network flags passed and assign active network params while we're at
	// it.
	numNets := 0
	activeNetParams = &mainNetParams
	if cfg.TestNet3 {
		numNets++
		activeNetParams = &testNet3Params
	}
	if cfg.TestNet4 {
		numNets++
		activeNetParams = &testNet4Params
	}
	if cfg.SigNet {
		numNets++
		activeNetParams = &sigNetParams
	}
	if cfg.RegressionTest {
		numNets++
		activeNetParams = &regressionNetParams
	}
	if numNets > 1 {
		return configError(errors.New("the testnet, testnet4, signet " +
			"and regtest params can't be used together -- choose " +
			"one of the four"))
	}

	// Validate the scan limits.
	if cfg.MaxConcurrent < 1 {
		return configError(fmt.Errorf("the maxconcurrent option may "+
			"not be less than 1 -- parsed [%d]", cfg.MaxConcurrent))
	}
	for name, d := range map[string]time.Duration{
		"dialtimeout":  cfg.DialTimeout,
		"readtimeout":  cfg.ReadTimeout,
		"probetimeout": cfg.ProbeTimeout,
	} {
		if d <= 0 {
			return configError(fmt.Errorf("the %s option must be "+
				"positive -- parsed [%v]", name, d))
		}
	}

	if err := userAgentOK(cfg.UserAgent); err != nil {
		return configError(err)
	}

	// Proxy credentials only make sense with a proxy.
	if cfg.Proxy == "" && (cfg.ProxyUser != "" || cfg.ProxyPass != "" ||
		cfg.TorIsolation) {

		return configError(errors.New("the --proxyuser, --proxypass " +
			"and --torisolation options require --proxy"))
	}
	if cfg.Proxy != "" {
		if _, _, err := net.SplitHostPort(cfg.Proxy); err != nil {
			return configError(fmt.Errorf("proxy address '%s' is "+
				"invalid: %v", cfg.Proxy, err))
		}
		cfg.dial = proxyDialer(&cfg)
	}

	// Collect the endpoints from both the node option and the positional
	// arguments, falling back to the config file.
	addrs := append(append([]string(nil), cfg.Nodes...), remainingArgs...)
	if len(addrs) == 0 {
		cfg.Nodes = fileNodes
		addrs = fileNodes
	}
	cfg.endpoints, err = normalizeEndpoints(addrs)
	if err != nil {
		return configError(err)
	}
	if len(cfg.endpoints) == 0 {
		return configError(errors.New("no peers to check -- pass " +
			"them with --node or as arguments"))
	}

	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	// Warn about missing config file only after all other configuration is
	// done.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil && preCfg.ConfigFile != defaultConfigFile {
		log.CfckLog.Warnf("%v", configFileError)
	}

	return &cfg, nil
}
