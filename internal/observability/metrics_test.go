package observability

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("", reg)

	m.RecordTick("buy", time.Second, nil)
	m.RecordTick("hold", time.Second, errors.New("quote failed"))
	m.RecordQuote("BUY", "ok")
	m.RecordRateLimitRetry()
	m.RecordSwap("SELL", "confirmed")
	m.RecordJanitorClose(true)
	m.RecordJanitorClose(false)
	m.SetHolding(500_000_000)
	m.SetLastPrice("SELL", 1_700_000)
	m.RecordRPC("getBalance", 10*time.Millisecond, errors.New("timeout"))
	m.RecordDBQuery("postgres", "insert_trade", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotesTotal.WithLabelValues("BUY", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRetries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SwapsTotal.WithLabelValues("SELL", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JanitorCloses.WithLabelValues("closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JanitorCloses.WithLabelValues("skipped")))
	assert.Equal(t, 500_000_000.0, testutil.ToFloat64(m.HoldingUnits))
	assert.Equal(t, 1_700_000.0, testutil.ToFloat64(m.LastPrice.WithLabelValues("SELL")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCallErrors.WithLabelValues("getBalance")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("postgres", "insert_trade")))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessfulTick), 0.0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordTick("skip", time.Second, nil)
	m.RecordQuote("BUY", "ok")
	m.RecordRateLimitRetry()
	m.RecordSwap("BUY", "confirmed")
	m.RecordJanitorClose(true)
	m.SetHolding(1)
	m.SetLastPrice("BUY", 1)
	m.RecordRPC("getSlot", time.Millisecond, nil)
	m.RecordDBQuery("clickhouse", "insert", time.Millisecond, nil)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.RecordQuote("BUY", "not_tradable")

	server := httptest.NewServer(Handler(reg))
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_aggregator_quotes_total{outcome="not_tradable",side="BUY"} 1`))
}
