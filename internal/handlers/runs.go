package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"descale-qc/internal/coalesce"
	"descale-qc/internal/database"
	"descale-qc/internal/logging"
)

// ListRuns returns a page of recorded runs.
//
// Query parameters: kind (single, multi, dual), page, pageSize.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", "single", "multi", "dual":
	default:
		writeJSONError(w, "unknown run kind: "+kind, http.StatusBadRequest)
		return
	}

	list, err := h.db.ListRuns(r.Context(), database.ListOptions{
		Kind:     kind,
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "pageSize", 50),
	})
	if err != nil {
		logging.Error("list runs failed: %v", err)
		writeJSONError(w, "failed to list runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, list)
}

// GetRun returns one run with its catalogue summaries.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := h.db.GetRun(r.Context(), id)
	if err != nil {
		h.storeError(w, "get run", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, run)
}

// DeleteRun removes a run from the history. Catalogue files already
// written to disk are left alone.
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.db.DeleteRun(r.Context(), id); err != nil {
		h.storeError(w, "delete run", err)
		return
	}
	writeJSONStatus(w, "deleted")
}

// CatalogueResponse is the JSON form of a stored catalogue.
type CatalogueResponse struct {
	RunID     string              `json:"runId"`
	Label     string              `json:"label"`
	Rejected  bool                `json:"rejected,omitempty"`
	Frames    int                 `json:"frames"`
	Line      string              `json:"line"`
	Intervals []coalesce.Interval `json:"intervals"`
}

// GetCatalogue returns a catalogue of a run.
//
// With format=text the plain catalogue line is returned, exactly as it was
// written to disk. With rejected=true the complement over the run's
// frames is returned instead.
func (h *Handlers) GetCatalogue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, label := vars["id"], vars["label"]
	q := r.URL.Query()

	cat, err := h.db.GetCatalogue(r.Context(), id, label)
	if err != nil {
		h.storeError(w, "get catalogue", err)
		return
	}

	rejected := q.Get("rejected") == "true" || q.Get("rejected") == "1"
	if rejected {
		run, err := h.db.GetRun(r.Context(), id)
		if err != nil {
			h.storeError(w, "get run", err)
			return
		}
		cat = &coalesce.Catalogue{Label: cat.Label, Intervals: cat.Complement(run.Frames)}
	}

	if q.Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := w.Write([]byte(cat.String())); err != nil {
			logging.Error("failed to write catalogue: %v", err)
		}
		return
	}

	intervals := cat.Intervals
	if intervals == nil {
		intervals = []coalesce.Interval{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, CatalogueResponse{
		RunID:     id,
		Label:     cat.Label,
		Rejected:  rejected,
		Frames:    cat.Frames(),
		Line:      cat.String(),
		Intervals: intervals,
	})
}

func (h *Handlers) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	logging.Error("%s failed: %v", op, err)
	writeJSONError(w, op+" failed", http.StatusInternalServerError)
}
