package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwire/ncbackend/internal/metrics"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	r := metrics.New()
	r.SessionsOpened.Inc()
	r.Commits.Inc()
	r.NACMDenials.WithLabelValues("read").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "ncbackend_session_opened_total 1")
	assert.Contains(t, string(body), "ncbackend_commit_success_total 1")
	assert.Contains(t, string(body), `ncbackend_nacm_denied_total{access="read"} 1`)
}

func TestStartServerAndShutdown(t *testing.T) {
	r := metrics.New()
	srv, err := metrics.StartServer("127.0.0.1:0", r)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
