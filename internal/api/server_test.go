package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"zcsmower/internal/coordinator"
	"zcsmower/internal/mower"
	"zcsmower/internal/router"
	"zcsmower/internal/zcs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testIMEI = "351111111111111"

func newTestServer(t *testing.T) (*Server, *zcs.MockAPI) {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	api := zcs.NewMockAPI()
	c := coordinator.New("garden", []mower.Registration{
		{IMEI: testIMEI, Name: "Front Lawn"},
	}, api, logger, nil)

	r := router.New(logger)
	r.Register(c)

	return NewServer(r, prometheus.NewRegistry(), logger, 0), api
}

func TestServer_Health(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestServer_Mowers(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/mowers", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	rows := response["garden"]
	require.Len(t, rows, 1)
	assert.Equal(t, testIMEI, rows[0]["imei"])
	assert.Equal(t, "Front Lawn", rows[0]["name"])
	assert.Equal(t, "unknown", rows[0]["state"])
	assert.Equal(t, false, rows[0]["connected"])
	assert.Equal(t, "Zucchetti Centro Sistemi", rows[0]["manufacturer"])

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/mowers", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_Service(t *testing.T) {
	t.Run("dispatches and reports the target count", func(t *testing.T) {
		server, api := newTestServer(t)

		body := `{"device_ids": ["` + testIMEI + `"]}`
		req := httptest.NewRequest(http.MethodPost, "/api/services/border_cut",
			strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		var response map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, 1, response["dispatched"])

		require.Eventually(t, func() bool {
			return len(api.CallsFor("method.exec")) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "border_cut", api.CallsFor("method.exec")[0].Params["method"])
	})

	t.Run("forwards service parameters", func(t *testing.T) {
		server, api := newTestServer(t)

		body := `{"device_ids": ["` + testIMEI + `"], "area": 3, "hours": 10, "minutes": 30}`
		req := httptest.NewRequest(http.MethodPost, "/api/services/work_until",
			strings.NewReader(body))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		require.Eventually(t, func() bool {
			return len(api.CallsFor("method.exec")) == 1
		}, 2*time.Second, 10*time.Millisecond)

		params := api.CallsFor("method.exec")[0].Params["params"].(map[string]any)
		assert.Equal(t, 2, params["area"])
		assert.Equal(t, 10, params["hh"])
		assert.Equal(t, 30, params["mm"])
	})

	t.Run("unknown service", func(t *testing.T) {
		server, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/services/explode",
			strings.NewReader(`{"device_ids": ["`+testIMEI+`"]}`))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing device_ids", func(t *testing.T) {
		server, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/services/border_cut",
			strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		server, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodPost, "/api/services/border_cut",
			strings.NewReader(`not json`))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		server, _ := newTestServer(t)

		req := httptest.NewRequest(http.MethodGet, "/api/services/border_cut", nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	registry := prometheus.NewRegistry()
	metrics := coordinator.NewMetrics("garden")
	registry.MustRegister(metrics.Collectors()...)

	r := router.New(logger)
	server := NewServer(r, registry, logger, 0)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zcsmower_refresh_total")
}
