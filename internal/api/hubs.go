package api

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/vault-core/internal/registry"
)

// handleListHubs returns a summary of every known hub.
func (s *Server) handleListHubs(w http.ResponseWriter, _ *http.Request) {
	hubs := s.coordinator.Hubs()
	writeJSON(w, http.StatusOK, map[string]any{"hubs": hubs, "count": len(hubs)})
}

// handleGetHub returns a single hub's summary plus its full registry snapshot.
func (s *Server) handleGetHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	info, err := s.coordinator.Hub(id)
	if err != nil {
		if errors.Is(err, registry.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return
		}
		writeInternalError(w, "failed to get hub")
		return
	}

	snapshot, err := s.coordinator.Snapshot(id)
	if err != nil {
		// Hub removed between the two reads; treat as gone.
		writeNotFound(w, "hub not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hub":      info,
		"registry": snapshot,
	})
}

// sensorView is the API representation of a single reconciled sensor.
type sensorView struct {
	ID            string                         `json:"id"`
	BasicFields   map[string]registry.FieldValue `json:"basic_fields"`
	FullFields    map[string]registry.FieldValue `json:"full_fields,omitempty"`
	LastBasicSeen float64                        `json:"last_basic_seen"`
	LastFullSeen  float64                        `json:"last_full_seen,omitempty"`
	Stale         bool                           `json:"stale"`
	Retain        bool                           `json:"retain,omitempty"`
}

// handleListSensors returns the reconciled sensor set for a hub.
//
// Query parameters:
//   - stale: "true" returns only sensors currently flagged stale
func (s *Server) handleListSensors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snapshot, err := s.coordinator.Snapshot(id)
	if err != nil {
		if errors.Is(err, registry.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return
		}
		writeInternalError(w, "failed to get sensors")
		return
	}

	staleOnly := r.URL.Query().Get("stale") == "true"

	sensors := make([]sensorView, 0, len(snapshot.Sensors))
	for _, rec := range snapshot.Sensors {
		if staleOnly && !rec.Stale {
			continue
		}
		sensors = append(sensors, sensorView{
			ID:            rec.ID,
			BasicFields:   rec.BasicFields,
			FullFields:    rec.FullFields,
			LastBasicSeen: rec.LastBasicSeen,
			LastFullSeen:  rec.LastFullSeen,
			Stale:         rec.Stale,
			Retain:        rec.Retain,
		})
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"hub_id":     snapshot.HubID,
		"generation": snapshot.Generation,
		"sensors":    sensors,
		"count":      len(sensors),
	})
}

// handleListEvents returns recent lifecycle events for a hub.
//
// Query parameters:
//   - limit: maximum events to return (default 50, capped server-side)
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := s.coordinator.Events(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to get events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleDeprovisionHub permanently removes a hub.
//
// The hub's registry snapshot is archived before the live state is
// destroyed. This is the only operation that deletes reconciled state;
// a hub going offline never does.
func (s *Server) handleDeprovisionHub(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.coordinator.Deprovision(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrHubNotFound) {
			writeNotFound(w, "hub not found")
			return
		}
		writeInternalError(w, "failed to deprovision hub")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"hub_id": id, "deprovisioned": true})
}
