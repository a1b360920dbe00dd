package conformance

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/montanaflynn/stats"
)

// Case records the outcome of a single battery step.
type Case struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration_ns"`
	Detail   string        `json:"detail,omitempty"`
}

// Report holds the ordered case results for one conformance run.
type Report struct {
	Endpoint  string    `json:"endpoint"`
	Bucket    string    `json:"bucket"`
	StartedAt time.Time `json:"started_at"`
	Cases     []Case    `json:"cases"`
}

func (r *Report) record(name string, passed bool, duration time.Duration, detail string) {
	r.Cases = append(r.Cases, Case{
		Name:     name,
		Passed:   passed,
		Duration: duration,
		Detail:   detail,
	})
}

// Passed reports whether every recorded case passed.
func (r *Report) Passed() bool {
	for _, c := range r.Cases {
		if !c.Passed {
			return false
		}
	}
	return true
}

// PassCount returns the number of passing cases.
func (r *Report) PassCount() int {
	n := 0
	for _, c := range r.Cases {
		if c.Passed {
			n++
		}
	}
	return n
}

// FailCount returns the number of failing cases.
func (r *Report) FailCount() int {
	return len(r.Cases) - r.PassCount()
}

// LatencySummary returns min/avg/p50/p90/max call latency in
// milliseconds across all recorded cases, or nil when no case ran.
func (r *Report) LatencySummary() map[string]float64 {
	if len(r.Cases) == 0 {
		return nil
	}

	points := make([]float64, len(r.Cases))
	for i, c := range r.Cases {
		points[i] = float64(c.Duration.Microseconds()) / 1000.0
	}

	summary := make(map[string]float64)
	summary["min"], _ = stats.Min(points)
	summary["avg"], _ = stats.Mean(points)
	summary["p50"], _ = stats.Percentile(points, 50)
	summary["p90"], _ = stats.Percentile(points, 90)
	summary["max"], _ = stats.Max(points)
	return summary
}

// Print writes the per-case report, tally and verdict to w.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintln(w, "Conformance Report")
	fmt.Fprintln(w, "============================================================")
	fmt.Fprintf(w, "Endpoint: %s\n", r.Endpoint)
	fmt.Fprintf(w, "Bucket:   %s\n", r.Bucket)
	fmt.Fprintln(w)

	for _, c := range r.Cases {
		status := "PASS"
		if !c.Passed {
			status = "FAIL"
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "%s: %s (%s)\n", status, c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "%s: %s\n", status, c.Name)
		}
	}

	fmt.Fprintf(w, "\nTotal: %d/%d cases passed\n", r.PassCount(), len(r.Cases))

	if s := r.LatencySummary(); s != nil {
		fmt.Fprintf(w, "Latency (ms): min=%.1f avg=%.1f p50=%.1f p90=%.1f max=%.1f\n",
			s["min"], s["avg"], s["p50"], s["p90"], s["max"])
	}

	if len(r.Cases) > 0 && r.Passed() {
		fmt.Fprintln(w, "All cases passed")
	} else {
		fmt.Fprintln(w, "Some cases failed")
	}
}

// WriteJSON writes the report as indented JSON to path.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
