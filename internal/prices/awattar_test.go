package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marketdataBody = `{
  "object": "list",
  "data": [
    {"start_timestamp": 1704074400000, "end_timestamp": 1704078000000, "marketprice": 95.5, "unit": "Eur/MWh"},
    {"start_timestamp": 1704067200000, "end_timestamp": 1704070800000, "marketprice": 80.1, "unit": "Eur/MWh"},
    {"start_timestamp": 1704070800000, "end_timestamp": 1704074400000, "marketprice": -12.0, "unit": "Eur/MWh"}
  ],
  "url": "/de/v1/marketdata"
}`

func TestMarketdata(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/marketdata", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketdataBody))
	}))
	defer srv.Close()

	client := NewAwattarClient(tariff.RegionDE, WithBaseURL(srv.URL))
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	series, err := client.Marketdata(context.Background(), from, from.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, "end=1704078000000&start=1704067200000", gotQuery)
	assert.Equal(t, from, series[0].Start)
	assert.InDelta(t, 8.01, series[0].Price, 1e-9)
	assert.InDelta(t, -1.2, series[1].Price, 1e-9)
	assert.InDelta(t, 9.55, series[2].Price, 1e-9)
	assert.NoError(t, series.Validate())
}

func TestMarketdataErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewAwattarClient(tariff.RegionAT, WithBaseURL(srv.URL))
	_, err := client.Marketdata(context.Background(), time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestMarketdataRejectsUnknownUnit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[{"start_timestamp":0,"end_timestamp":3600000,"marketprice":1,"unit":"ct/kWh"}]}`))
	}))
	defer srv.Close()

	client := NewAwattarClient(tariff.RegionDE, WithBaseURL(srv.URL))
	_, err := client.Marketdata(context.Background(), time.Unix(0, 0), time.Unix(3600, 0))
	assert.Error(t, err)
}

func TestRateLimitHonoursContext(t *testing.T) {
	client := NewAwattarClient(tariff.RegionDE, WithBaseURL("http://127.0.0.1:1"), WithRateLimit(1))
	client.limiter.Allow() // drain the burst

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.Marketdata(ctx, time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
}
