// Package page holds the per-page navigation listeners: the rendering-free
// part of each screen (toast, last navigation panel, active sidebar tab),
// the global navigation notifier and the mounter that keeps the page for
// the current route subscribed.
package page

import (
	"slices"

	"github.com/operate-experience/navsync/internal/route"
)

// Page describes one screen.
type Page struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Route string `json:"route"`
	// Tab is the sidebar tab the page selects, 0 when it has none.
	Tab int `json:"tab,omitempty"`
}

// Catalog is the set of screens in route order.
type Catalog struct {
	pages []Page
}

// DefaultCatalog returns the operate-experience screens.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Page{Name: "welcome", Title: "Welcome", Route: route.Welcome},
		Page{Name: "personal-welcome", Title: "Personal Welcome", Route: route.PersonalWelcome},
		Page{Name: "financial-statement", Title: "Financial Statement Scan", Route: route.FinancialStatement, Tab: 1},
		Page{Name: "dscr-trend", Title: "Operational Docx Scan", Route: route.DSCRTrend, Tab: 2},
		Page{Name: "y14-report", Title: "Y-14 Report Generation", Route: route.Y14Report, Tab: 3},
		Page{Name: "covenant-monitoring", Title: "Covenant Monitoring", Route: route.CovenantMonitoring, Tab: 4},
		Page{Name: "benefits-summary", Title: "Benefits Summary", Route: route.BenefitsSummary, Tab: 5},
		Page{Name: "loan-service", Title: "Loan Service", Route: route.LoanService},
	)
}

// NewCatalog builds a catalog. Later pages with a duplicate route are ignored.
func NewCatalog(pages ...Page) *Catalog {
	c := &Catalog{}
	for _, p := range pages {
		p.Route = route.Clean(p.Route)
		if _, ok := c.ByRoute(p.Route); ok {
			continue
		}
		c.pages = append(c.pages, p)
	}
	return c
}

// Pages returns all pages.
func (c *Catalog) Pages() []Page {
	return slices.Clone(c.pages)
}

// Routes returns the route of every page.
func (c *Catalog) Routes() []string {
	routes := make([]string, 0, len(c.pages))
	for _, p := range c.pages {
		routes = append(routes, p.Route)
	}
	return routes
}

// ByRoute finds the page rendered at path.
func (c *Catalog) ByRoute(path string) (Page, bool) {
	path = route.Clean(path)
	i := slices.IndexFunc(c.pages, func(p Page) bool { return p.Route == path })
	if i < 0 {
		return Page{}, false
	}
	return c.pages[i], true
}

// ByTab finds the page selected by a sidebar tab.
func (c *Catalog) ByTab(tab int) (Page, bool) {
	if tab <= 0 {
		return Page{}, false
	}
	i := slices.IndexFunc(c.pages, func(p Page) bool { return p.Tab == tab })
	if i < 0 {
		return Page{}, false
	}
	return c.pages[i], true
}

// Table returns a route table with the catalog routes, redirecting "/" to
// the first page.
func (c *Catalog) Table() *route.Table {
	index := route.Root
	if len(c.pages) > 0 {
		index = c.pages[0].Route
	}
	return route.NewTable(index, c.Routes()...)
}
