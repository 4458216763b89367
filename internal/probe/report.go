package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Totals counts terminal probe states. Skipped probes are neither passed
// nor failed.
type Totals struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Report is the aggregate of one harness run.
type Report struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Totals     Totals        `json:"totals"`
	Results    []ProbeResult `json:"results"`
}

// ServiceSummary rolls a report up per service.
type ServiceSummary struct {
	Service string `json:"service"`
	Group   string `json:"group,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Up      bool   `json:"up"`
	Failed  int    `json:"failed"`
}

// NewReport builds a report from finished results.
func NewReport(started, finished time.Time, results []ProbeResult) *Report {
	r := &Report{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		FinishedAt: finished,
		Results:    results,
	}
	for _, res := range results {
		switch res.State {
		case StatePassed:
			r.Totals.Passed++
		case StateSkipped:
			r.Totals.Skipped++
		default:
			r.Totals.Failed++
		}
	}
	return r
}

// Passed reports whether every non-skipped probe passed.
func (r *Report) Passed() bool { return r.Totals.Failed == 0 }

// ExitCode is 0 iff every non-skipped probe passed.
func (r *Report) ExitCode() int {
	if r.Passed() {
		return 0
	}
	return 1
}

// Failures returns the failed results in report order.
func (r *Report) Failures() []ProbeResult {
	var out []ProbeResult
	for _, res := range r.Results {
		if res.State == StateFailed {
			out = append(out, res)
		}
	}
	return out
}

// Services summarises the report per service, sorted by group then name.
func (r *Report) Services() []ServiceSummary {
	index := map[string]int{}
	var out []ServiceSummary
	for _, res := range r.Results {
		i, ok := index[res.Service]
		if !ok {
			i = len(out)
			index[res.Service] = i
			out = append(out, ServiceSummary{Service: res.Service, Group: res.Group, Owner: res.Owner, Up: true})
		}
		if res.State == StateFailed {
			out[i].Up = false
			out[i].Failed++
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Group != out[b].Group {
			return out[a].Group < out[b].Group
		}
		return out[a].Service < out[b].Service
	})
	return out
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable renders the report for terminals.
func (r *Report) WriteTable(w io.Writer) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"Service", "Owner", "Check", "Endpoint", "State", "Error", "Attempts", "Duration", "Message"})

	for _, res := range r.Results {
		state := string(res.State)
		switch res.State {
		case StatePassed:
			state = text.FgGreen.Sprint(state)
		case StateFailed:
			state = text.FgRed.Sprint(state)
		case StateSkipped:
			state = text.FgYellow.Sprint(state)
		}
		t.AppendRow(table.Row{
			res.Service,
			res.Owner,
			res.Check,
			res.Endpoint,
			state,
			string(res.ErrorKind),
			res.Attempts,
			res.Duration.Round(time.Millisecond),
			res.Message,
		})
	}
	t.AppendFooter(table.Row{
		"", "", "", "",
		fmt.Sprintf("%d passed", r.Totals.Passed),
		fmt.Sprintf("%d failed", r.Totals.Failed),
		fmt.Sprintf("%d skipped", r.Totals.Skipped),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		"run " + r.RunID,
	})
	t.Render()
	return nil
}
