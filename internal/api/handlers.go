package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/ts-console/internal/conn"
	"github.com/technosupport/ts-console/internal/normalize"
)

// Reconciler is the engine surface the rendering layer consumes: reads are
// snapshot copies, commands are the only mutations the UI may issue.
type Reconciler interface {
	Incidents() []normalize.Incident
	Alerts() map[string]normalize.Incident
	MarkResolved(id string) bool
	Remove(id string) bool
	ClearAlert(sourceID string) bool
}

type Handler struct {
	Engine    Reconciler
	ConnState func() conn.State
	Metrics   http.Handler
}

func NewHandler(engine Reconciler, connState func() conn.State, metrics http.Handler) *Handler {
	return &Handler{Engine: engine, ConnState: connState, Metrics: metrics}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger)

	r.Get("/status", h.GetStatus)
	r.Get("/incidents", h.ListIncidents)
	r.Get("/alerts", h.ListAlerts)

	r.Post("/incidents/{id}/resolve", h.ResolveIncident)
	r.Delete("/incidents/{id}", h.RemoveIncident)
	r.Delete("/alerts/{sourceId}", h.ClearAlert)

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}
	return r
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	state := "disconnected"
	if h.ConnState != nil {
		state = h.ConnState().String()
	}
	writeJSON(w, map[string]interface{}{
		"connection": state,
		"incidents":  len(h.Engine.Incidents()),
		"alerts":     len(h.Engine.Alerts()),
	})
}

func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Engine.Incidents())
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Engine.Alerts())
}

func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.Engine.MarkResolved(id) {
		http.Error(w, "incident not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.Engine.Remove(id) {
		http.Error(w, "incident not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearAlert(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceId")
	if !h.Engine.ClearAlert(sourceID) {
		http.Error(w, "no active alert for source", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
