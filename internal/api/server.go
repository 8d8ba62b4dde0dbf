// Package api exposes the coordinator over REST/JSON plus a websocket event
// stream and the Prometheus scrape endpoint.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartmove/fleet/internal/coordinator"
	"github.com/smartmove/fleet/internal/events"
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
	"github.com/smartmove/fleet/internal/policy"
)

// Server is the REST facade over the coordinator.
type Server struct {
	coord   *coordinator.Coordinator
	bus     events.Bus
	limiter *RateLimiter
}

// NewServer wires the handlers.
func NewServer(coord *coordinator.Coordinator, bus events.Bus, limiter *RateLimiter) *Server {
	return &Server{coord: coord, bus: bus, limiter: limiter}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	// CORS for dashboard clients.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if req.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	// Rentals
	r.HandleFunc("/api/rentals/reserve", s.handleReserve).Methods("POST")
	r.HandleFunc("/api/rentals/{id}/start", s.handleStart).Methods("POST")
	r.HandleFunc("/api/rentals/{id}/end", s.handleEnd).Methods("POST")
	r.HandleFunc("/api/rentals/{id}", s.handleGetRental).Methods("GET")

	// Vehicles
	r.HandleFunc("/api/vehicles", s.handleListVehicles).Methods("GET")
	r.HandleFunc("/api/vehicles/{id}", s.handleGetVehicle).Methods("GET")
	r.HandleFunc("/api/vehicles/{id}/gps-check", s.handleGPSCheck).Methods("POST")
	r.HandleFunc("/api/vehicles/{id}/telemetry", s.handleTelemetry).Methods("POST")
	r.HandleFunc("/api/vehicles/{id}/validate-transition", s.handleValidateTransition).Methods("POST")

	// Audit
	r.HandleFunc("/api/audit/logs", s.handleAuditLogs).Methods("GET")
	r.HandleFunc("/api/audit/verify", s.handleAuditVerify).Methods("GET")

	// Event stream
	r.HandleFunc("/ws/events", s.handleEventStream)

	// Ops
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start blocks serving HTTP on the port.
func (s *Server) Start(port string) error {
	addr := ":" + port
	log.Printf("[API] Listening on %s", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

// ===== RENTAL HANDLERS =====

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"user_id"`
		VehicleID string `json:"vehicle_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rental, err := s.coord.Reserve(req.UserID, req.VehicleID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rentalJSON(rental))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.coord.StartRental(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "rental_id": id})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	payment, err := s.coord.EndRental(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ended",
		"rental_id":   id,
		"payment_id":  payment.ID,
		"base_amount": payment.BaseAmount,
		"surcharges":  payment.Surcharges,
		"total":       payment.Total,
		"description": payment.Description,
	})
}

func (s *Server) handleGetRental(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rental, ok := s.coord.Rentals().Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("rental not found: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, rentalJSON(rental))
}

// ===== VEHICLE HANDLERS =====

func (s *Server) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	var vehicles []*fleet.Vehicle
	switch {
	case r.URL.Query().Get("city") != "":
		vehicles = s.coord.Vehicles().ByCity(r.URL.Query().Get("city"))
	case r.URL.Query().Get("state") != "":
		state, err := fleet.ParseState(r.URL.Query().Get("state"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		vehicles = s.coord.Vehicles().ByState(state)
	default:
		vehicles = s.coord.Vehicles().All()
	}

	out := make([]map[string]interface{}, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, vehicleJSON(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v, ok := s.coord.Vehicles().Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("vehicle not found: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, vehicleJSON(v))
}

func (s *Server) handleGPSCheck(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	allowed := s.coord.CheckGPS(id, geo.Coordinate{Lat: req.Lat, Lon: req.Lon})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle_id": id,
		"allowed":    allowed,
	})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Lat            float64 `json:"lat"`
		Lon            float64 `json:"lon"`
		BatteryPercent int     `json:"battery_percent"`
		TemperatureC   float64 `json:"temperature_c"`
		HelmetPresent  bool    `json:"helmet_present"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sample := fleet.TelemetrySample{
		Timestamp:      time.Now().UTC(),
		GPS:            geo.Coordinate{Lat: req.Lat, Lon: req.Lon},
		BatteryPercent: req.BatteryPercent,
		TemperatureC:   req.TemperatureC,
		HelmetPresent:  req.HelmetPresent,
	}
	if err := s.coord.SubmitTelemetry(id, sample); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued"})
}

func (s *Server) handleValidateTransition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := fleet.ParseState(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := s.coord.ValidateTransition(id, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicle_id": id, "to": req.To, "valid": ok})
}

// ===== AUDIT HANDLERS =====

func (s *Server) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.coord.AuditEntries()

	if v := r.URL.Query().Get("from_seq"); v != "" {
		from, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		filtered := entries[:0]
		for _, e := range entries {
			if e.SeqID >= from {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if limit >= 0 && limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}

	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"seq_id":        e.SeqID,
			"timestamp":     e.Timestamp,
			"event_type":    e.EventType,
			"payload":       e.Payload,
			"prev_checksum": e.PrevChecksum,
			"checksum":      e.Checksum,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":   s.coord.VerifyAuditChain(),
		"entries": len(s.coord.AuditEntries()),
	})
}

// ===== OPS =====

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"vehicles":        s.coord.Vehicles().Len(),
		"telemetry_queue": s.coord.Monitor().QueueLen(),
	})
}

// ===== HELPERS =====

func vehicleJSON(v *fleet.Vehicle) map[string]interface{} {
	loc := v.Location()
	return map[string]interface{}{
		"id":              v.ID,
		"type":            string(v.Kind),
		"city":            v.City,
		"state":           v.State().String(),
		"battery_percent": v.BatteryPercent(),
		"temperature_c":   v.TemperatureC(),
		"lat":             loc.Lat,
		"lon":             loc.Lon,
	}
}

func rentalJSON(rental *fleet.Rental) map[string]interface{} {
	out := map[string]interface{}{
		"id":         rental.ID,
		"user_id":    rental.UserID,
		"vehicle_id": rental.VehicleID,
		"start_time": rental.StartTime,
		"active":     rental.Active(),
	}
	if end := rental.EndTime(); !end.IsZero() {
		out["end_time"] = end
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps coordinator error types to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound     *coordinator.NotFoundError
		notAvailable *coordinator.NotAvailableError
		alreadyEnded *coordinator.AlreadyEndedError
		violation    *policy.Violation
		rolledBack   *coordinator.RolledBackError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err)
	case errors.As(err, &notAvailable), errors.As(err, &alreadyEnded):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &violation):
		writeError(w, http.StatusForbidden, err)
	case errors.As(err, &rolledBack):
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
