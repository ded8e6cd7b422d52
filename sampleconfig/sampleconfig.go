// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for
// cfcheck.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Peers to check
; ------------------------------------------------------------------------------

; Add a peer to check.  The option may be repeated.  Peers must be IPv4
; addresses.  The port defaults to the standard port of the selected network
; (8333, testnet: 18333, testnet4: 48333, signet: 38333, regtest: 18444).
; Peers given on the command line, as --node options or as arguments, replace
; the peers listed here.
; node=203.0.113.7
; node=198.51.100.23:8333


; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; Use the test network (version 3).
; testnet=1

; Use the test network (version 4).
; testnet4=1

; Use the default signet.
; signet=1

; Use the regression test network.
; regtest=1

; Connect via a SOCKS5 proxy.
; proxy=127.0.0.1:9050
; proxyuser=
; proxypass=

; Enable Tor stream isolation by randomizing proxy user credentials resulting in
; Tor creating a new circuit for each connection.  This makes it more difficult
; to correlate connections.
; torisolation=1

; The user agent name advertised in the version message.  The version part is
; always the cfcheck version.
; useragent=cfcheck


; ------------------------------------------------------------------------------
; Scan settings
; ------------------------------------------------------------------------------

; Maximum number of peers checked at the same time.
; maxconcurrent=8

; How long to wait for a connection to be established.  Valid time units are
; {ms, s, m, h}.
; dialtimeout=10s

; How long to wait on each read from a peer.
; readtimeout=30s

; Upper bound on the whole check of a single peer.
; probetimeout=1m


; ------------------------------------------------------------------------------
; Output and logging
; ------------------------------------------------------------------------------

; Write the report as JSON instead of one line per peer.
; json=1

; The directory to store log files.  Logs of each network go to their own
; subdirectory.
; logdir=~/.cfcheck/logs

; Only log to the console.
; nofilelogging=1

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use cfcheck --debuglevel=show to list
; available subsystems.
; debuglevel=info
`
