package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmove/fleet/internal/audit"
	"github.com/smartmove/fleet/internal/coordinator"
	"github.com/smartmove/fleet/internal/events"
	"github.com/smartmove/fleet/internal/fleet"
	"github.com/smartmove/fleet/internal/geo"
	"github.com/smartmove/fleet/internal/storage"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()

	vehicles, err := storage.OpenVehicleStore(dir)
	require.NoError(t, err)
	users, err := storage.OpenUserStore(dir)
	require.NoError(t, err)
	rentals, err := storage.OpenRentalStore(dir)
	require.NoError(t, err)
	payments, err := storage.OpenPaymentStore(dir)
	require.NoError(t, err)

	require.NoError(t, users.Save(&fleet.User{ID: "U001", Name: "Alice Johnson"}))
	vehicles.Put(fleet.NewVehicle("LON-ES001", fleet.KindScooter, "London", geo.Coordinate{Lat: 51.5155, Lon: -0.1168}, 90))
	vehicles.Put(fleet.NewVehicle("MIL-B001", fleet.KindBicycle, "Milan", geo.Coordinate{Lat: 45.4642, Lon: 9.1900}, 100))
	require.NoError(t, vehicles.SaveAll())

	auditLog, err := audit.NewLog(storage.NewAuditCSVStore(dir))
	require.NoError(t, err)

	bus := events.NewLocalBus()
	coord := coordinator.New(vehicles, users, rentals, payments, auditLog, bus)
	t.Cleanup(coord.Shutdown)

	srv := httptest.NewServer(NewServer(coord, bus, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestRentalLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/rentals/reserve", map[string]string{
		"user_id": "U001", "vehicle_id": "LON-ES001",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rental struct {
		ID string `json:"id"`
	}
	decode(t, resp, &rental)
	require.NotEmpty(t, rental.ID)

	resp = postJSON(t, fmt.Sprintf("%s/api/rentals/%s/start", srv.URL, rental.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, fmt.Sprintf("%s/api/rentals/%s/end", srv.URL, rental.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var receipt struct {
		Total      float64 `json:"total"`
		Surcharges float64 `json:"surcharges"`
	}
	decode(t, resp, &receipt)
	assert.Equal(t, 9.50, receipt.Total)
	assert.Equal(t, 3.50, receipt.Surcharges)

	// Audit endpoints reflect the trip.
	resp, err := http.Get(srv.URL + "/api/audit/verify")
	require.NoError(t, err)
	var verify struct {
		Valid   bool `json:"valid"`
		Entries int  `json:"entries"`
	}
	decode(t, resp, &verify)
	assert.True(t, verify.Valid)
	assert.Equal(t, 4, verify.Entries)
}

func TestReserveConflictsAndMissing(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/rentals/reserve", map[string]string{
		"user_id": "U001", "vehicle_id": "LON-ES001",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/rentals/reserve", map[string]string{
		"user_id": "U001", "vehicle_id": "LON-ES001",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/rentals/reserve", map[string]string{
		"user_id": "U001", "vehicle_id": "XXX-000",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestListVehiclesFiltering(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/vehicles?city=Milan")
	require.NoError(t, err)
	var vehicles []struct {
		ID   string `json:"id"`
		City string `json:"city"`
	}
	decode(t, resp, &vehicles)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "MIL-B001", vehicles[0].ID)

	resp, err = http.Get(srv.URL + "/api/vehicles?state=AVAILABLE")
	require.NoError(t, err)
	decode(t, resp, &vehicles)
	assert.Len(t, vehicles, 2)
}

func TestGPSCheckLocksOnViolation(t *testing.T) {
	srv := newTestServer(t)

	// Bicycle reporting from inside the Milan ZTL.
	resp := postJSON(t, srv.URL+"/api/vehicles/MIL-B001/gps-check", map[string]float64{
		"lat": 45.4642, "lon": 9.1900,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check struct {
		Allowed bool `json:"allowed"`
	}
	decode(t, resp, &check)
	assert.False(t, check.Allowed)

	resp, err := http.Get(srv.URL + "/api/vehicles/MIL-B001")
	require.NoError(t, err)
	var v struct {
		State string `json:"state"`
	}
	decode(t, resp, &v)
	assert.Equal(t, "EMERGENCY_LOCK", v.State)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health struct {
		Status   string `json:"status"`
		Vehicles int    `json:"vehicles"`
	}
	decode(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Vehicles)
}
