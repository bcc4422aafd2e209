// Package route provides the in-process router: the table of known routes
// with its redirects, and a browser-like location history with push and
// replace semantics.
package route

import (
	"slices"
	"strings"
)

// Well-known paths.
const (
	Root               = "/"
	Welcome            = "/welcome"
	PersonalWelcome    = "/personal-welcome"
	FinancialStatement = "/financial-statement"
	DSCRTrend          = "/dscr-trend"
	Y14Report          = "/y14-report/large"
	CovenantMonitoring = "/covenant-monitoring"
	BenefitsSummary    = "/benefits-summary"
	LoanService        = "/loan-service"
)

// Table is the set of routable paths plus redirects.
// "/" redirects to Index; anything unknown redirects to "/".
type Table struct {
	paths []string
	Index string
}

// DefaultTable returns the operate-experience route table.
func DefaultTable() *Table {
	return NewTable(Welcome,
		FinancialStatement,
		Y14Report,
		PersonalWelcome,
		Welcome,
		DSCRTrend,
		BenefitsSummary,
		CovenantMonitoring,
		LoanService,
	)
}

// NewTable builds a table from index and the known paths.
func NewTable(index string, paths ...string) *Table {
	t := &Table{Index: index}
	for _, p := range paths {
		p = Clean(p)
		if !slices.Contains(t.paths, p) {
			t.paths = append(t.paths, p)
		}
	}
	return t
}

// Paths returns the known paths in declaration order.
func (t *Table) Paths() []string {
	return slices.Clone(t.paths)
}

// Has reports whether path is a known route (redirects excluded).
func (t *Table) Has(path string) bool {
	return slices.Contains(t.paths, Clean(path))
}

// Resolve follows redirects and returns the path that would render.
func (t *Table) Resolve(path string) string {
	path = Clean(path)
	if t.Has(path) {
		return path
	}
	// unknown -> "/" -> index
	return t.Index
}

// Clean normalizes a route: query and fragment are dropped, a leading
// slash is ensured and a trailing slash removed.
func Clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = Root
		}
	}
	return path
}
