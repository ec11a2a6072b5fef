// Package api exposes the gateway over HTTP and streams fleet events to
// WebSocket clients.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/oceanlab/shipgate/internal/await"
	"github.com/oceanlab/shipgate/internal/emergency"
	"github.com/oceanlab/shipgate/internal/fleet"
	"github.com/oceanlab/shipgate/internal/gateway"
	"github.com/oceanlab/shipgate/internal/picture"
	"github.com/oceanlab/shipgate/internal/protocol"
	"github.com/oceanlab/shipgate/internal/report"
	"github.com/oceanlab/shipgate/internal/store"
	"github.com/oceanlab/shipgate/internal/upstream"
)

// launchRequest is the JSON body for POST /api/launch.
type launchRequest struct {
	Name   string `json:"name"`
	Sector [2]int `json:"sector"`
	Dir    [2]int `json:"dir"`
}

// navigateRequest is the JSON body for POST /api/navigate.
type navigateRequest struct {
	Rudder string `json:"rudder"`
	Course string `json:"course"`
}

// pilotRequest is the JSON body for POST /api/pilot. An empty ID steers
// any connected submarine.
type pilotRequest struct {
	ID     string `json:"id,omitempty"`
	Route  string `json:"route"`
	Action string `json:"action,omitempty"`
}

// startRequest is the JSON body for POST /api/submarines/start.
type startRequest struct {
	ID string `json:"id"`
}

// emergencyRequest is the JSON body for POST /api/emergency.
type emergencyRequest struct {
	Reason    string `json:"reason"`
	Initiator string `json:"initiator,omitempty"`
}

// gatewayState is the response for GET /api/state.
type gatewayState struct {
	Ship       upstream.State      `json:"ship"`
	Submarines []fleet.SessionInfo `json:"submarines"`
	Emergency  *emergency.State    `json:"emergency,omitempty"`
}

// Handler holds all dependencies for HTTP request handling.
type Handler struct {
	Gateway   *gateway.Gateway
	Store     *store.Store
	Hub       *Hub
	Emergency *emergency.Coordinator
}

// RegisterRoutes adds all API routes to the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.getState)
	mux.HandleFunc("POST /api/launch", h.launch)
	mux.HandleFunc("POST /api/navigate", h.navigate)
	mux.HandleFunc("POST /api/scan", h.scan)
	mux.HandleFunc("POST /api/radar", h.radar)
	mux.HandleFunc("POST /api/reset", h.reset)
	mux.HandleFunc("POST /api/emergency", h.triggerEmergency)
	mux.HandleFunc("POST /api/emergency/clear", h.clearEmergency)

	mux.HandleFunc("GET /api/submarines", h.listSubmarines)
	mux.HandleFunc("POST /api/submarines/start", h.startAgent)
	mux.HandleFunc("POST /api/pilot", h.pilot)
	mux.HandleFunc("POST /api/submarines/{id}/kill", h.kill)
	mux.HandleFunc("GET /api/submarines/{id}/picture", h.getPicture)
	mux.HandleFunc("GET /api/submarines/{id}/measurements", h.getMeasurements)
	mux.HandleFunc("GET /api/reports/{id}/csv", h.exportCSV)
	mux.HandleFunc("GET /api/reports/{id}/json", h.exportJSON)
	mux.HandleFunc("GET /api/reports/{id}/pdf", h.exportPDF)

	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWebSocket)
	}
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	state := gatewayState{
		Ship:       h.Gateway.State(),
		Submarines: h.Gateway.Sessions(),
	}
	if h.Emergency != nil {
		es := h.Emergency.GetState()
		state.Emergency = &es
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) triggerEmergency(w http.ResponseWriter, r *http.Request) {
	if h.Emergency == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "emergency surfacing not configured"})
		return
	}
	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}
	writeJSON(w, http.StatusOK, h.Emergency.Trigger(req.Reason, req.Initiator))
}

func (h *Handler) clearEmergency(w http.ResponseWriter, r *http.Request) {
	if h.Emergency == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "emergency surfacing not configured"})
		return
	}
	h.Emergency.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) launch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	sector := protocol.Vec2D{X: req.Sector[0], Y: req.Sector[1]}
	dir := protocol.Vec2D{X: req.Dir[0], Y: req.Dir[1]}
	if err := h.Gateway.Launch(req.Name, sector, dir); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("launch failed: %v", err)})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "launching"})
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.Gateway.Navigate(req.Rudder, req.Course); err != nil {
		if errors.Is(err, upstream.ErrNotConnected) {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	res, err := h.Gateway.Scan()
	if err != nil {
		writeQueryError(w, "scan", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) radar(w http.ResponseWriter, r *http.Request) {
	echos, err := h.Gateway.Radar()
	if err != nil {
		writeQueryError(w, "radar", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"echos": echos})
}

func writeQueryError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, await.ErrTimeout) {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": op + " timed out"})
		return
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("%s failed: %v", op, err)})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.Gateway.Reset(); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": fmt.Sprintf("reset failed: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) listSubmarines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Gateway.Sessions())
}

func (h *Handler) startAgent(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}
	if err := h.Gateway.StartAgent(req.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "id": req.ID})
}

func (h *Handler) pilot(w http.ResponseWriter, r *http.Request) {
	var req pilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	route, err := protocol.ParseRoute(req.Route)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.Gateway.Pilot(req.ID, route, req.Action); err != nil {
		if errors.Is(err, gateway.ErrNoSuchSession) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "submarine not found"})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) kill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Gateway.Kill(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "submarine not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "killed", "id": id})
}

func (h *Handler) getMeasurements(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ms, err := h.Store.QueryMeasurements(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "count": len(ms), "measurements": ms})
}

// getPicture serves the submarine's most recent camera frame as PNG. It
// prefers the live session cache and falls back to the store.
func (h *Handler) getPicture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	hexPayload, _, err := h.Gateway.LastPicture(id)
	if err != nil || hexPayload == "" {
		rec, dbErr := h.Store.LatestPicture(id)
		if dbErr != nil || rec == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no picture available"})
			return
		}
		hexPayload = rec.PictureHex
	}

	data, err := picture.DecodeHex(hexPayload)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stored picture is not decodable"})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", id))
	if err := report.ExportCSV(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) exportJSON(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.Header().Set("Content-Type", "application/json")
	if err := report.ExportJSON(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) exportPDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", id))
	if err := report.GeneratePDF(w, h.Store, id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
