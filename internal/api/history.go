package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/homedash-core/internal/device"
)

// sensorDHT22 is the only sensor the dashboard reads.
const sensorDHT22 = "dht22"

// handleGetHistory returns recent entries of one state history series.
//
// Query parameters:
//   - series: e.g. light/dapur, fan/kamar, fan_speed/kamar, dht22/humidity
//   - limit: max results (default 50, max 500)
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "state history not configured")
		return
	}

	q := r.URL.Query()
	series := q.Get("series")
	if series == "" {
		writeBadRequest(w, "series is required")
		return
	}
	if !s.knownSeries(series) {
		writeNotFound(w, "unknown series: "+series)
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be a number")
			return
		}
		limit = n
	}

	entries, err := s.history.History(r.Context(), series, limit)
	if err != nil {
		s.logger.Error("reading state history failed", "series", series, "error", err)
		writeInternalError(w, "failed to read state history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series":  series,
		"entries": entries,
		"count":   len(entries),
	})
}

// knownSeries reports whether series belongs to a catalogued device.
func (s *Server) knownSeries(series string) bool {
	for _, room := range s.catalog.Rooms() {
		if series == device.SwitchSeries(device.SeriesLight, room) {
			return true
		}
	}
	for _, fan := range s.catalog.Fans() {
		if series == device.SwitchSeries(device.SeriesFan, fan) || series == device.FanSpeedSeries(fan) {
			return true
		}
	}
	return series == device.ReadingSeries(sensorDHT22, "temperature") ||
		series == device.ReadingSeries(sensorDHT22, "humidity")
}
