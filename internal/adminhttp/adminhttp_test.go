package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	status Status
}

func (p stubProvider) Status() Status {
	return p.status
}

func TestStatusEndpointServesProviderSnapshot(t *testing.T) {
	want := Status{
		ServerName:    "hub.test",
		Role:          "main",
		LocalUsers:    3,
		LocalChannels: 1,
		Neighbors:     []string{"leaf.test"},
		Uptime:        "1h0m0s",
	}
	srv := New("127.0.0.1:0", stubProvider{status: want}, logrus.NewEntry(logrus.New()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, want, got)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	srv := New("127.0.0.1:0", stubProvider{}, logrus.NewEntry(logrus.New()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
