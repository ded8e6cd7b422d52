// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/cfcheck/peer"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxConcurrent is the number of probes run at once when the
	// config leaves it unset.
	DefaultMaxConcurrent = 8

	// DefaultProbeTimeout bounds a single probe from dial to decision.
	DefaultProbeTimeout = time.Minute
)

// ErrNoEndpoints is returned by New when there is nothing to scan.
var ErrNoEndpoints = errors.New("no endpoints to scan")

// Prober runs a single handshake against an endpoint.
type Prober interface {
	Probe(ctx context.Context, cfg *peer.Config, ep peer.Endpoint) peer.Result
}

// ProberFunc is an adapter to allow the use of ordinary functions as
// Probers.
type ProberFunc func(ctx context.Context, cfg *peer.Config, ep peer.Endpoint) peer.Result

// Probe calls f(ctx, cfg, ep).
func (f ProberFunc) Probe(ctx context.Context, cfg *peer.Config, ep peer.Endpoint) peer.Result {
	return f(ctx, cfg, ep)
}

// Config houses the options of a Scanner.
type Config struct {
	// Endpoints is the ordered list of peers to probe.
	Endpoints []peer.Endpoint

	// Peer is the configuration handed to every probe.
	Peer peer.Config

	// MaxConcurrent caps the number of probes in flight.  Values below one
	// run the probes one after another.
	MaxConcurrent int

	// ProbeTimeout bounds each probe.  Zero means DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// Prober runs the probes.  It defaults to peer.Probe.
	Prober Prober

	// OnResult is invoked as each probe finishes, in completion order.  It
	// may be called concurrently.
	OnResult func(index int, result *peer.Result)
}

// Scanner probes a fixed set of endpoints.
type Scanner struct {
	cfg Config
}

// New returns a Scanner for cfg.  Duplicate endpoints are probed once, at the
// position of their first occurrence.
func New(cfg *Config) (*Scanner, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	c := *cfg
	c.Endpoints = dedupEndpoints(cfg.Endpoints)
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Prober == nil {
		c.Prober = ProberFunc(peer.Probe)
	}

	return &Scanner{cfg: c}, nil
}

// dedupEndpoints returns eps with later duplicates removed.
func dedupEndpoints(eps []peer.Endpoint) []peer.Endpoint {
	seen := make(map[string]struct{}, len(eps))
	out := make([]peer.Endpoint, 0, len(eps))
	for _, ep := range eps {
		key := ep.String()
		if _, ok := seen[key]; ok {
			log.Debugf("Ignoring duplicate endpoint %s", key)
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ep)
	}
	return out
}

// Endpoints returns the endpoints the scanner will probe, in report order.
func (s *Scanner) Endpoints() []peer.Endpoint {
	return append([]peer.Endpoint(nil), s.cfg.Endpoints...)
}

// Scan probes every endpoint once and returns the report.  Cancelling ctx
// stops new probes from starting and unblocks the running ones.  Endpoints
// that were never probed are reported as unreachable with the context error.
func (s *Scanner) Scan(ctx context.Context) *Report {
	eps := s.cfg.Endpoints
	results := make([]peer.Result, len(eps))
	var done atomic.Int32

	log.Infof("Scanning %d %s with up to %d concurrent %s", len(eps),
		pickNoun(len(eps), "endpoint", "endpoints"), s.cfg.MaxConcurrent,
		pickNoun(s.cfg.MaxConcurrent, "probe", "probes"))

	report := &Report{Started: time.Now()}

	// The group context is not used so one failed probe can never cancel
	// the others.  Probes never return errors to the group.
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrent)
	ran := make([]bool, len(eps))

	for i, ep := range eps {
		if ctx.Err() != nil {
			break
		}

		i, ep := i, ep
		ran[i] = true
		g.Go(func() error {
			results[i] = s.probe(ctx, ep)
			n := done.Add(1)
			log.Debugf("Finished %d/%d: %v", n, len(eps), &results[i])
			if s.cfg.OnResult != nil {
				s.cfg.OnResult(i, &results[i])
			}
			return nil
		})
	}
	g.Wait()

	for i, ep := range eps {
		if ran[i] {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		results[i] = peer.Result{
			Endpoint: ep,
			Outcome:  peer.OutcomeUnreachable,
			State:    peer.StateConnecting,
			Err:      fmt.Errorf("scan stopped before probe: %w", err),
		}
	}

	report.Results = results
	report.Finished = time.Now()
	log.Infof("Scan finished in %v: %v", report.Finished.Sub(report.Started),
		report.Summary())

	return report
}

// probe runs one probe bounded by the probe timeout.  A task that was queued
// behind the concurrency limit while ctx was cancelled still yields a result.
func (s *Scanner) probe(ctx context.Context, ep peer.Endpoint) peer.Result {
	if err := ctx.Err(); err != nil {
		return peer.Result{
			Endpoint: ep,
			Outcome:  peer.OutcomeUnreachable,
			State:    peer.StateConnecting,
			Err:      fmt.Errorf("scan stopped before probe: %w", err),
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	cfg := s.cfg.Peer
	result := s.cfg.Prober.Probe(probeCtx, &cfg, ep)
	result.Endpoint = ep
	return result
}

// pickNoun returns the singular or plural form of a noun depending on the
// count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
