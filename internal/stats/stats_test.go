package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/npezzotti/go-roomchat/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux, testutil.TestLogger(t))
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	su.RegisterMetric(ActiveClients)
	su.RegisterMetric(Rooms)
	su.Run()

	su.Incr(ActiveClients)
	su.Incr(ActiveClients)
	su.Decr(ActiveClients)
	su.Set(Rooms, 3)
	su.Incr("unknown")

	readVars := func() map[string]any {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

		var vars map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &vars); err != nil {
			return nil
		}
		return vars
	}

	assert.Eventually(t, func() bool {
		vars := readVars()
		return vars[ActiveClients] == float64(1) && vars[Rooms] == float64(3)
	}, time.Second, 10*time.Millisecond, "expected counters to be updated")

	assert.Contains(t, readVars(), "Uptime")

	su.Stop()
	su.Stop()
}
