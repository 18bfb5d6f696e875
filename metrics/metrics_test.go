package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreExported(t *testing.T) {
	c := NewCollector("vc")
	c.Connections.Inc()
	c.EventsDelivered.WithLabelValues("message").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.EventsDelivered.WithLabelValues("message")))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "vc_ws_connections 1")
	assert.Contains(t, string(body), `vc_ws_events_delivered_total{event="message"} 2`)
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector("vc"), NewCollector("vc")
	a.Rooms.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Rooms))
}
