package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// proxy serves a cached upstream payload. Upstream failures with no cached
// fallback map to 502.
func (s *Server) proxy(what string, fetch func(r *http.Request) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := fetch(r)
		if err != nil {
			s.logger.Warn("proxy fetch failed",
				"resource", what,
				"path", r.URL.Path,
				"error", err.Error(),
			)
			writeError(w, http.StatusBadGateway, "failed to fetch "+what)
			return
		}
		writeRawJSON(w, http.StatusOK, body)
	}
}

// proxyWeek is proxy for routes with a {week} parameter.
func (s *Server) proxyWeek(what string, fetch func(r *http.Request, week int) (json.RawMessage, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		week, err := strconv.Atoi(chi.URLParam(r, "week"))
		if err != nil || week < 1 {
			writeError(w, http.StatusBadRequest, "week must be a positive number")
			return
		}
		s.proxy(what, func(r *http.Request) (json.RawMessage, error) {
			return fetch(r, week)
		})(w, r)
	}
}
