package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth() {
	healthChecker = newHealthChecker()
}

func TestRegisterComponent(t *testing.T) {
	resetHealth()

	RegisterComponent(ComponentLocalStore, true, "open")

	comp, ok := healthChecker.components[ComponentLocalStore]
	require.True(t, ok)
	assert.True(t, comp.Healthy)
	assert.Equal(t, "open", comp.Message)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
		wantComp   map[string]string
	}{
		{
			name: "all healthy",
			setup: func() {
				RegisterComponent(ComponentLocalStore, true, "")
				RegisterComponent(ComponentDataStore, true, "")
			},
			wantStatus: "healthy",
			wantComp: map[string]string{
				ComponentLocalStore: "healthy",
				ComponentDataStore:  "healthy",
			},
		},
		{
			name: "remote offline is degraded",
			setup: func() {
				RegisterComponent(ComponentLocalStore, true, "")
				MarkDegraded(ComponentRemote, "offline")
			},
			wantStatus: "degraded",
			wantComp: map[string]string{
				ComponentLocalStore: "healthy",
				ComponentRemote:     "degraded: offline",
			},
		},
		{
			name: "unhealthy wins over degraded",
			setup: func() {
				RegisterComponent(ComponentLocalStore, false, "disk full")
				MarkDegraded(ComponentRemote, "offline")
			},
			wantStatus: "unhealthy",
			wantComp: map[string]string{
				ComponentLocalStore: "unhealthy: disk full",
				ComponentRemote:     "degraded: offline",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth()
			tt.setup()

			health := GetHealth()
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, tt.wantComp, health.Components)
		})
	}
}

func TestGetReadiness(t *testing.T) {
	resetHealth()

	readiness := GetReadiness()
	assert.Equal(t, "not_ready", readiness.Status)
	assert.Equal(t, "not registered", readiness.Components[ComponentLocalStore])

	RegisterComponent(ComponentLocalStore, true, "")
	RegisterComponent(ComponentDataStore, true, "")
	MarkDegraded(ComponentRemote, "offline")

	readiness = GetReadiness()
	assert.Equal(t, "ready", readiness.Status)
	assert.NotContains(t, readiness.Components, ComponentRemote)
}

func TestHealthHandler(t *testing.T) {
	resetHealth()
	SetVersion("0.3.0")
	RegisterComponent(ComponentLocalStore, false, "closed")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "0.3.0", body.Version)
}

func TestReadyHandler(t *testing.T) {
	resetHealth()
	RegisterComponent(ComponentLocalStore, true, "")
	RegisterComponent(ComponentDataStore, true, "")

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
