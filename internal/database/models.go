package database

import (
	"time"

	"descale-qc/internal/coalesce"
)

// Run is one recorded classification run.
type Run struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Source    string    `json:"source"`
	Alternate string    `json:"alternate,omitempty"`
	Base      string    `json:"base"`
	Frames    int       `json:"frames"`
	Scenes    int       `json:"scenes"`
	Params    string    `json:"params,omitempty"`
	Duration  string    `json:"duration"`
	CreatedAt time.Time `json:"createdAt"`

	Catalogues []CatalogueInfo `json:"catalogues,omitempty"`
}

// CatalogueInfo summarises a stored catalogue without its intervals.
type CatalogueInfo struct {
	Label     string `json:"label"`
	Path      string `json:"path,omitempty"`
	Frames    int    `json:"frames"`
	Intervals int    `json:"intervals"`
}

// NewRun describes a completed run to be recorded.
type NewRun struct {
	ID        string
	Kind      string
	Source    string
	Alternate string
	Base      string
	Frames    int
	Scenes    int
	Params    string
	Duration  time.Duration

	// Paths maps catalogue labels to the files they were written to.
	Paths      map[string]string
	Catalogues []*coalesce.Catalogue
}

// RunList is a page of runs, newest first.
type RunList struct {
	Items      []Run  `json:"items"`
	Kind       string `json:"kind,omitempty"`
	TotalItems int    `json:"totalItems"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
}
