package stats

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	su.RegisterMetric("TestCounter")

	su.Incr("TestCounter")
	su.Incr("TestCounter")
	su.Decr("TestCounter")

	assert.Eventually(t, func() bool {
		return su.vars.Get("TestCounter").String() == "1"
	}, time.Second, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "TestCounter")
	assert.Contains(t, rec.Body.String(), "Uptime")
}
