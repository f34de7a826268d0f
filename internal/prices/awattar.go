package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var defaultBaseURLs = map[tariff.Region]string{
	tariff.RegionDE: "https://api.awattar.de",
	tariff.RegionAT: "https://api.awattar.at",
}

// AwattarClient fetches hourly market prices from the aWATTar API
type AwattarClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
}

// Option configures an AwattarClient
type Option func(*AwattarClient)

// WithBaseURL points the client at another API host
func WithBaseURL(u string) Option {
	return func(c *AwattarClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithRateLimit caps outgoing requests per minute. aWATTar allows only a
// small number of calls per day per client.
func WithRateLimit(perMinute int) Option {
	return func(c *AwattarClient) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *AwattarClient) {
		c.logger = l
	}
}

// NewAwattarClient creates a client for the region's aWATTar endpoint
func NewAwattarClient(region tariff.Region, opts ...Option) *AwattarClient {
	c := &AwattarClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURLs[region],
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// marketdataResponse represents the API response structure
type marketdataResponse struct {
	Object string           `json:"object"`
	Data   []marketdataItem `json:"data"`
}

type marketdataItem struct {
	StartTimestamp int64   `json:"start_timestamp"` // unix millis
	EndTimestamp   int64   `json:"end_timestamp"`
	MarketPrice    float64 `json:"marketprice"`
	Unit           string  `json:"unit"`
}

// Marketdata fetches net prices in cent per kWh for points overlapping [from, to)
func (c *AwattarClient) Marketdata(ctx context.Context, from, to time.Time) (engine.Series, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	params := url.Values{}
	params.Add("start", strconv.FormatInt(from.UnixMilli(), 10))
	params.Add("end", strconv.FormatInt(to.UnixMilli(), 10))
	fullURL := fmt.Sprintf("%s/v1/marketdata?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var mdResp marketdataResponse
	if err := json.NewDecoder(resp.Body).Decode(&mdResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	series := make(engine.Series, 0, len(mdResp.Data))
	for _, item := range mdResp.Data {
		if item.Unit != "" && item.Unit != "Eur/MWh" {
			return nil, fmt.Errorf("unexpected price unit %q", item.Unit)
		}
		series = append(series, engine.PricePoint{
			Start: time.UnixMilli(item.StartTimestamp).UTC(),
			End:   time.UnixMilli(item.EndTimestamp).UTC(),
			Price: tariff.MarketToCent(item.MarketPrice),
		})
	}

	sort.Slice(series, func(i, j int) bool {
		return series[i].Start.Before(series[j].Start)
	})

	c.logger.WithFields(logrus.Fields{
		"from":   from.Format(time.RFC3339),
		"to":     to.Format(time.RFC3339),
		"points": len(series),
	}).Debug("Fetched aWATTar marketdata")

	return series, nil
}
