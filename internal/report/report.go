// Package report holds the structured outcome of one job run.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report collects ordered information and warning lines for a single run.
// Lines are kept in the order they were added. Not safe for concurrent use:
// a job run is single-goroutine.
type Report struct {
	RunID     string
	Job       string
	StartedAt time.Time

	info     []string
	warnings []string
}

// New creates an empty report for the given job kind.
func New(job string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Job:       job,
		StartedAt: time.Now().UTC(),
	}
}

// Info appends an information line.
func (r *Report) Info(line string) {
	r.info = append(r.info, line)
}

// Infof appends a formatted information line.
func (r *Report) Infof(format string, args ...any) {
	r.Info(fmt.Sprintf(format, args...))
}

// Warn appends a warning line.
func (r *Report) Warn(line string) {
	r.warnings = append(r.warnings, line)
}

// Warnf appends a formatted warning line.
func (r *Report) Warnf(format string, args ...any) {
	r.Warn(fmt.Sprintf(format, args...))
}

// Information returns a copy of the information lines.
func (r *Report) Information() []string {
	return append([]string(nil), r.info...)
}

// Warnings returns a copy of the warning lines.
func (r *Report) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// HasWarnings reports whether any warning was recorded.
func (r *Report) HasWarnings() bool {
	return len(r.warnings) > 0
}

// String renders the report as plain text.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s started %s\n", r.Job, r.RunID, r.StartedAt.Format(time.RFC3339))
	if len(r.info) > 0 {
		b.WriteString("Information:\n")
		for _, line := range r.info {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	if len(r.warnings) > 0 {
		b.WriteString("Warnings:\n")
		for _, line := range r.warnings {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}
