// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scanner

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/btcsuite/cfcheck/peer"
)

// Report is the result of one scan pass.
type Report struct {
	// Results holds exactly one result per scanned endpoint, in the order
	// the endpoints were configured.
	Results []peer.Result

	Started  time.Time
	Finished time.Time
}

// Summary tallies the outcomes of a report.
type Summary struct {
	Total  int
	counts map[peer.Outcome]int
}

// Count returns the number of results with outcome o.
func (s Summary) Count(o peer.Outcome) int {
	return s.counts[o]
}

// Map of outcomes to the phrase used for them in the summary line.
var summaryPhrases = map[peer.Outcome]string{
	peer.OutcomeSupported:     "supported",
	peer.OutcomeNotSupported:  "not supported",
	peer.OutcomeUnreachable:   "unreachable",
	peer.OutcomeProtocolError: "protocol error",
}

// String returns the summary line of a report.
func (s Summary) String() string {
	parts := make([]string, 0, len(summaryPhrases))
	for _, o := range peer.Outcomes() {
		parts = append(parts, fmt.Sprintf("%d %s", s.counts[o],
			summaryPhrases[o]))
	}
	return fmt.Sprintf("checked %d %s: %s", s.Total,
		pickNoun(s.Total, "endpoint", "endpoints"),
		strings.Join(parts, ", "))
}

// Summary counts the outcomes in the report.
func (r *Report) Summary() Summary {
	s := Summary{
		Total:  len(r.Results),
		counts: make(map[peer.Outcome]int, len(summaryPhrases)),
	}
	for i := range r.Results {
		s.counts[r.Results[i].Outcome]++
	}
	return s
}

// WriteText writes one line per result followed by the summary line.
func (r *Report) WriteText(w io.Writer) error {
	for i := range r.Results {
		if _, err := fmt.Fprintln(w, r.Results[i].String()); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Scan complete, %v (%v)\n", r.Summary(),
		r.Finished.Sub(r.Started).Round(time.Millisecond))
	return err
}

// jsonResult is the structured form of a single result.
type jsonResult struct {
	Endpoint        string  `json:"endpoint"`
	Outcome         string  `json:"outcome"`
	Services        *uint64 `json:"services,omitempty"`
	ServiceNames    string  `json:"servicenames,omitempty"`
	ProtocolVersion int32   `json:"protocolversion,omitempty"`
	Error           string  `json:"error,omitempty"`
	ElapsedMs       int64   `json:"elapsedms"`
}

// jsonReport is the structured form of a report.
type jsonReport struct {
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Summary  map[string]int `json:"summary"`
	Results  []jsonResult   `json:"results"`
}

// WriteJSON writes the report as a single indented JSON document.  Services
// are only present for peers whose version message was decoded.
func (r *Report) WriteJSON(w io.Writer) error {
	summary := r.Summary()
	out := jsonReport{
		Started:  r.Started,
		Finished: r.Finished,
		Summary:  make(map[string]int, len(summaryPhrases)+1),
		Results:  make([]jsonResult, 0, len(r.Results)),
	}
	out.Summary["total"] = summary.Total
	for _, o := range peer.Outcomes() {
		out.Summary[strings.ToLower(o.String())] = summary.Count(o)
	}

	for i := range r.Results {
		res := &r.Results[i]
		jr := jsonResult{
			Endpoint:  res.Endpoint.String(),
			Outcome:   res.Outcome.String(),
			ElapsedMs: res.Elapsed.Milliseconds(),
		}
		if res.State == peer.StateDecided {
			services := uint64(res.Services)
			jr.Services = &services
			jr.ServiceNames = res.Services.String()
			jr.ProtocolVersion = res.ProtocolVersion
		}
		if res.Err != nil {
			jr.Error = res.Err.Error()
		}
		out.Results = append(out.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}
