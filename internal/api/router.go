// Package api serves the state of running downloads over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"hdsfetch/internal/logger"
	"hdsfetch/internal/session"

	"github.com/samber/lo"
)

type API struct {
	downloads *session.Manager
	logger    logger.Logger
}

// Status is the JSON form of a download's latest event.
type Status struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Fraction float64 `json:"fraction"`
	Bytes    uint64  `json:"bytes"`
	Position float64 `json:"position"`
	Duration float64 `json:"duration,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func New(downloads *session.Manager, log logger.Logger) http.Handler {
	api := &API{
		downloads: downloads,
		logger:    log,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /downloads", api.handleList)
	mux.HandleFunc("GET /downloads/{id...}", api.handleGet)
	mux.HandleFunc("DELETE /downloads/{id...}", api.handleStop)

	return mux
}

func toStatus(ev session.Event) Status {
	s := Status{
		ID:       ev.ID,
		State:    string(ev.Kind),
		Fraction: ev.Fraction,
		Bytes:    ev.Bytes,
		Position: ev.Position,
		Duration: ev.Duration,
	}
	if ev.Err != nil {
		s.Error = ev.Err.Error()
	}
	return s
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	statuses := lo.Map(a.downloads.Statuses(), func(ev session.Event, _ int) Status { return toStatus(ev) })
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	a.writeJSON(w, statuses)
}

func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, found := a.downloads.Get(id)
	if !found {
		http.Error(w, fmt.Sprintf("Download %s not found", id), http.StatusNotFound)
		return
	}
	a.writeJSON(w, toStatus(d.Status()))
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.downloads.Stop(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	a.logger.Infof("Stop requested for %s", id)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warnf("Failed to write response: %v", err)
	}
}
