package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	c := New()
	c.NodeState.WithLabelValues("n1").Set(1)
	c.ReplicationOps.WithLabelValues("success").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "solidb_registry_node_state")
	assert.Contains(t, body, "solidb_replication_ops_total")
}

func TestNodeStateValueMirrorsOrdinal(t *testing.T) {
	assert.Equal(t, float64(0), NodeStateValue(0))
	assert.Equal(t, float64(3), NodeStateValue(3))
}
