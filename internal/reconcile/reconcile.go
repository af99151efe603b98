// Package reconcile compares what was published with what was accepted and
// renders the delivery report.
package reconcile

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Report is the outcome of one reconciliation. Counts are of distinct ids.
type Report struct {
	SentCount     int   `json:"sentCount"`
	AcceptedCount int   `json:"acceptedCount"`
	MissingIDs    []int `json:"missingIds"`
	// UnexpectedIDs were accepted but never sent in this run, which happens
	// when a shared ledger carries ids from an earlier run.
	UnexpectedIDs []int `json:"unexpectedIds,omitempty"`
}

// Lossy reports whether a sent id was never accepted. Unexpected ids alone
// are not loss.
func (r Report) Lossy() bool {
	return len(r.MissingIDs) > 0
}

// Reconcile computes the report. Duplicates in either input are ignored and
// the order of the inputs does not matter.
func Reconcile(sent, accepted []int) Report {
	s := distinct(sent)
	a := distinct(accepted)

	missing := []int{}
	var unexpected []int
	i, j := 0, 0
	for i < len(s) || j < len(a) {
		switch {
		case j >= len(a) || (i < len(s) && s[i] < a[j]):
			missing = append(missing, s[i])
			i++
		case i >= len(s) || a[j] < s[i]:
			unexpected = append(unexpected, a[j])
			j++
		default:
			i++
			j++
		}
	}
	return Report{
		SentCount:     len(s),
		AcceptedCount: len(a),
		MissingIDs:    missing,
		UnexpectedIDs: unexpected,
	}
}

func distinct(ids []int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// Render writes the console form of r.
func Render(w io.Writer, r Report) error {
	var b strings.Builder
	b.WriteString("\n--- MESSAGE DELIVERY REPORT ---\n")
	fmt.Fprintf(&b, "Total messages attempted to publish: %d\n", r.SentCount)
	fmt.Fprintf(&b, "Total messages successfully received: %d\n", r.AcceptedCount)
	if r.Lossy() {
		b.WriteString("\n!!! MESSAGE LOSS DETECTED !!!\n")
		fmt.Fprintf(&b, "Number of lost messages: %d\n", len(r.MissingIDs))
		fmt.Fprintf(&b, "Lost Order IDs: [%s]\n", joinIDs(r.MissingIDs))
	} else {
		b.WriteString("\nAll messages accounted for. No message loss detected.\n")
	}
	if len(r.UnexpectedIDs) > 0 {
		fmt.Fprintf(&b, "\nNote: %d received ID(s) were never sent in this run.\n", len(r.UnexpectedIDs))
		fmt.Fprintf(&b, "Unexpected Order IDs: [%s]\n", joinIDs(r.UnexpectedIDs))
	}
	b.WriteString("-------------------------------\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
