package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tailscale.com/tsweb"

	"github.com/banshee-data/wind.report/internal/httputil"
	"github.com/banshee-data/wind.report/internal/tracking"
	"github.com/banshee-data/wind.report/internal/vision"
)

// attachRoutes registers the live tracker's debug endpoints.
func attachRoutes(mux *http.ServeMux, p *tracking.Pipeline, tol vision.Tolerance) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("status", "Live tracker counters and colour range", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, p.Stats())
	})

	debug.HandleFunc("snapshot", "Latest frame with the tracked pair drawn on it", func(w http.ResponseWriter, r *http.Request) {
		png, err := p.Snapshot()
		if errors.Is(err, tracking.ErrNoSnapshot) {
			httputil.NotFound(w, err.Error())
			return
		}
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(png)
	})

	// Re-pick the pin colour from a pixel of the latest frame.
	debug.HandleSilentFunc("pick-color", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		x, errX := strconv.Atoi(r.FormValue("x"))
		y, errY := strconv.Atoi(r.FormValue("y"))
		if errX != nil || errY != nil {
			httputil.BadRequest(w, "x and y must be integers")
			return
		}
		rng, err := p.PickAt(x, y)
		switch {
		case errors.Is(err, tracking.ErrNoSnapshot):
			httputil.Conflict(w, err.Error())
			return
		case err != nil:
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rng)
	})

	// Set the colour window directly from an HSV centre.
	debug.HandleSilentFunc("set-range", func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodPost) {
			return
		}
		var center vision.HSV
		if err := json.NewDecoder(r.Body).Decode(&center); err != nil {
			httputil.BadRequest(w, "invalid HSV body: "+err.Error())
			return
		}
		if center != center.Clamp() {
			httputil.BadRequest(w, "HSV centre out of range")
			return
		}
		rng := vision.NewHSVRange(center, tol)
		p.SetRange(rng)
		httputil.WriteJSON(w, http.StatusOK, rng)
	})
}
