package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "awattprice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSettingsDefaultAndRoundTrip(t *testing.T) {
	st := newTestStore(t)

	got, err := st.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, tariff.RegionDE, got.Region)
	assert.True(t, got.IncludeVAT)

	want := Settings{Region: tariff.RegionAT, IncludeVAT: false, BaseFeeCent: decimal.RequireFromString("1.25"), PowerKW: 11}
	require.NoError(t, st.SaveSettings(want))

	got, err = st.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, want.Region, got.Region)
	assert.False(t, got.IncludeVAT)
	assert.True(t, want.BaseFeeCent.Equal(got.BaseFeeCent))
	assert.Equal(t, 11.0, got.PowerKW)
}

func TestSeedSettingsKeepsSaved(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SeedSettings(Settings{Region: tariff.RegionAT, IncludeVAT: true}))
	got, err := st.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, tariff.RegionAT, got.Region)

	require.NoError(t, st.SeedSettings(Settings{Region: tariff.RegionDE}))
	got, err = st.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, tariff.RegionAT, got.Region)
}

func TestPriceCache(t *testing.T) {
	st := newTestStore(t)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := st.GetCachedPrices(tariff.RegionDE, day)
	assert.ErrorIs(t, err, ErrNotFound)

	series := engine.Series{
		{Start: day, End: day.Add(time.Hour), Price: 8.01},
		{Start: day.Add(time.Hour), End: day.Add(2 * time.Hour), Price: -1.2},
	}
	require.NoError(t, st.CachePrices(tariff.RegionDE, day, series))

	got, fetchedAt, err := st.GetCachedPrices(tariff.RegionDE, day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Start.Equal(day))
	assert.Equal(t, -1.2, got[1].Price)
	assert.WithinDuration(t, time.Now(), fetchedAt, time.Minute)

	_, _, err = st.GetCachedPrices(tariff.RegionAT, day)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistory(t *testing.T) {
	st := newTestStore(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	req := engine.SearchRequest{Duration: 90 * time.Minute, RangeStart: start, RangeEnd: start.Add(4 * time.Hour)}
	w := engine.Window{
		Points:       []engine.PricePoint{{Start: start.Add(time.Hour), End: start.Add(150 * time.Minute), Price: 5}},
		AveragePrice: 5,
	}

	firstID, err := st.SaveResult(tariff.RegionDE, req, w)
	require.NoError(t, err)
	secondID, err := st.SaveResult(tariff.RegionAT, req, w)
	require.NoError(t, err)
	assert.NotEqual(t, firstID, secondID)

	records, err := st.History(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, secondID, records[0].ID)
	assert.Equal(t, tariff.RegionAT, records[0].Region)
	assert.Equal(t, req.Duration, records[1].Request.Duration)
	assert.True(t, req.RangeEnd.Equal(records[1].Request.RangeEnd))
	assert.Equal(t, 5.0, records[1].Window.AveragePrice)

	records, err = st.History(1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
