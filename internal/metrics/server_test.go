package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(":0", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestServer_ClusterNotRegisteredWithoutStatus(t *testing.T) {
	srv := NewServer(":0", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cluster", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Cluster(t *testing.T) {
	var snapshot any
	srv := NewServer(":0", func() any { return snapshot })

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cluster", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	snapshot = map[string]any{"name": "ccm_abc", "contact_points": []string{"127.0.1.1"}}
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cluster", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ccm_abc", body["name"])
}

func TestServer_Metrics(t *testing.T) {
	ObserveCommand("status-test", ResultOK, 20*time.Millisecond)

	srv := NewServer(":0", nil)
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `ccm_command_total{command="status-test",result="ok"} 1`))
}

func TestObserveCommand(t *testing.T) {
	before := testutil.ToFloat64(commandTotal.WithLabelValues("observe-test", ResultFailed))
	ObserveCommand("observe-test", ResultFailed, time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(commandTotal.WithLabelValues("observe-test", ResultFailed)))
}

func TestClustersOpen(t *testing.T) {
	before := testutil.ToFloat64(clustersOpen)
	ClusterOpened()
	ClusterOpened()
	ClusterClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(clustersOpen))
}

func TestStartupFailed(t *testing.T) {
	before := testutil.ToFloat64(startupFailures)
	StartupFailed()
	assert.Equal(t, before+1, testutil.ToFloat64(startupFailures))
}
