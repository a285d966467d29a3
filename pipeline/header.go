package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/medpipe/core/table"
	"github.com/YuminosukeSato/medpipe/preprocessing"
)

const timestampLayout = "2006-01-02 15:04"

// fileSummary is the common opening block of every matrix header.
func fileSummary(path, source, command string, now time.Time) []string {
	return []string{
		filepath.Base(path),
		"Created: " + now.Format(timestampLayout),
		"Source: " + source,
		"Command: " + command,
	}
}

func rawHeader(task Task, path string, rows int, now time.Time) []string {
	h := fileSummary(path, task.Name, task.command(rows), now)
	return append(h,
		"",
		"Overview:",
		fmt.Sprintf("This file is the raw feature matrix for %s with up to %d episodes.", task.Entity, rows),
	)
}

// processingNarrative lists what happened between the raw and processed matrix.
type processingNarrative struct {
	filters    []preprocessing.RowFilter
	added      []string
	ledger     *preprocessing.Ledger
	removed    []string
	eliminated []string
	target     int
	algorithm  string
}

func processedHeader(task Task, path, rawPath string, rows int, now time.Time, n processingNarrative) []string {
	h := fileSummary(path, task.Name, task.command(rows), now)
	h = append(h,
		"",
		"Overview:",
		"This file is a post-processed version of "+filepath.Base(rawPath)+".",
	)
	if len(task.Plan.DataOverview) > 0 {
		h = append(h, "")
		h = append(h, task.Plan.DataOverview...)
	}
	h = append(h, "", "This matrix is the result of the following processing steps on the raw matrix:")
	if len(n.filters) > 0 {
		h = append(h, "  * Dropping rows matching:")
		for _, f := range n.filters {
			if f.Missing {
				h = append(h, "      "+f.Column+" is missing")
			} else {
				h = append(h, "      "+f.Column+" == "+f.Value)
			}
		}
	}
	h = append(h, addingLine)
	for _, a := range n.added {
		h = append(h, "      "+a)
	}
	h = append(h, "  * Imputing missing values with values learned on the training rows:")
	if n.ledger != nil {
		for _, col := range n.ledger.Columns() {
			fill, _ := n.ledger.Get(col)
			h = append(h, fmt.Sprintf("      %s: %s (%s)", col, fill.Value.Format(fillKind(fill)), fill.Strategy))
		}
	}
	h = append(h,
		removingLine,
		"      "+bracketed(n.removed),
		fmt.Sprintf("  * Algorithmically selecting the top %d features via %s.", n.target, n.algorithm),
		eliminatedLine,
		"        "+bracketed(n.eliminated),
	)
	return h
}

const (
	addingLine     = "  * Adding the following features:"
	removingLine   = "  * Manually removing low-information features:"
	eliminatedLine = "      The following features were eliminated:"
)

// recoverNarrative reads the added, removed and eliminated column lists back
// out of a processed matrix header.
func recoverNarrative(header []string) (added, removed, eliminated []string) {
	for i := 0; i < len(header); i++ {
		switch header[i] {
		case addingLine:
			for i+1 < len(header) && strings.HasPrefix(header[i+1], "      ") {
				i++
				added = append(added, strings.TrimSpace(header[i]))
			}
		case removingLine:
			if i+1 < len(header) {
				removed = unbracketed(header[i+1])
			}
		case eliminatedLine:
			if i+1 < len(header) {
				eliminated = unbracketed(header[i+1])
			}
		}
	}
	return added, removed, eliminated
}

func unbracketed(line string) []string {
	inner := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(line), "["), "]")
	if inner == "" {
		return nil
	}
	return strings.Split(inner, ", ")
}

func fillKind(f preprocessing.Fill) table.Kind {
	if f.Value.Str != "" {
		return table.Categorical
	}
	return table.Numeric
}

func bracketed(xs []string) string {
	return "[" + strings.Join(xs, ", ") + "]"
}
