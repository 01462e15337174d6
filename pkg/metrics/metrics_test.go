package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransfer(t *testing.T) {
	before := testutil.ToFloat64(transfersTotal.WithLabelValues("metrics-test", OutcomeDone))
	RecordTransfer("metrics-test", OutcomeDone, time.Second)
	RecordTransfer("metrics-test", OutcomeDone, 2*time.Second)
	assert.Equal(t, before+2, testutil.ToFloat64(transfersTotal.WithLabelValues("metrics-test", OutcomeDone)))
}

func TestInFlightGauge(t *testing.T) {
	before := testutil.ToFloat64(transfersInFlight)
	IncInFlight()
	IncInFlight()
	DecInFlight()
	assert.Equal(t, before+1, testutil.ToFloat64(transfersInFlight))
	DecInFlight()
}

func TestHandler(t *testing.T) {
	RecordBytes("metrics-test", 128)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `hoard_transfer_bytes_total{provider="metrics-test"}`))
}
