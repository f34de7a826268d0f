package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/awattprice/awattprice/internal/publish"
	"github.com/awattprice/awattprice/internal/store"
	"github.com/awattprice/awattprice/internal/tariff"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

// ErrPriceFetch means the upstream price feed could not deliver prices
var ErrPriceFetch = errors.New("price data unavailable")

// PriceSource fetches net market prices in cent per kWh
type PriceSource interface {
	Marketdata(ctx context.Context, from, to time.Time) (engine.Series, error)
}

// Store is the persistence the planner needs
type Store interface {
	GetSettings() (store.Settings, error)
	CachePrices(region tariff.Region, date time.Time, series engine.Series) error
	GetCachedPrices(region tariff.Region, date time.Time) (engine.Series, time.Time, error)
	SaveResult(region tariff.Region, req engine.SearchRequest, w engine.Window) (string, error)
}

// Publisher pushes results to home automation
type Publisher interface {
	Publish(ctx context.Context, msg publish.Message) error
}

// Query is a cheapest-window search as asked by a user. A zero range start
// means now and a zero range end means the end of the known prices.
type Query struct {
	Request engine.SearchRequest
	// PowerKW overrides the power from the settings for the cost estimate
	PowerKW float64
}

// Result is a found window with its history ID
type Result struct {
	ID      string               `json:"id"`
	Region  tariff.Region        `json:"region"`
	Request engine.SearchRequest `json:"request"`
	Window  engine.Window        `json:"window"`
}

// Planner wires price data, tariff policy and the search together. It is
// safe for concurrent use.
type Planner struct {
	sources   map[tariff.Region]PriceSource
	store     Store
	publisher Publisher
	cache     *lru.Cache
	metrics   *Metrics
	logger    logrus.FieldLogger
	now       func() time.Time

	mu        sync.Mutex
	seq       uint64
	latestSeq uint64
	latest    *Result
}

// Config collects the planner's collaborators. Publisher may be nil.
type Config struct {
	Sources   map[tariff.Region]PriceSource
	Store     Store
	Publisher Publisher
	Metrics   *Metrics
	Logger    logrus.FieldLogger
	CacheSize int
	Now       func() time.Time
}

// New creates a planner
func New(cfg Config) (*Planner, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Planner{
		sources:   cfg.Sources,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		cache:     cache,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// Prices returns the current and future points with the user's tariff
// policy applied, together with the settings used.
func (p *Planner) Prices(ctx context.Context) (engine.Series, store.Settings, error) {
	settings, err := p.store.GetSettings()
	if err != nil {
		return nil, store.Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	now := p.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var series engine.Series
	for _, day := range []time.Time{today, today.AddDate(0, 0, 1)} {
		dayPrices, err := p.dayPrices(ctx, settings.Region, day)
		if err != nil {
			// Tomorrow's prices are published in the afternoon
			if day.After(today) {
				p.logger.WithError(err).Debug("Prices for tomorrow not available")
				continue
			}
			return nil, settings, err
		}
		series = append(series, dayPrices...)
	}

	return settings.Policy().Apply(series.From(now)), settings, nil
}

// dayPrices serves a day from the store when the cached copy covers the
// whole day and falls back to the price source otherwise.
func (p *Planner) dayPrices(ctx context.Context, region tariff.Region, day time.Time) (engine.Series, error) {
	dayEnd := day.AddDate(0, 0, 1)

	cached, _, err := p.store.GetCachedPrices(region, day)
	if err == nil && len(cached) > 0 && !cached[len(cached)-1].End.Before(dayEnd) {
		p.countFetch("cache")
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.WithError(err).Warn("Reading price cache failed")
	}

	source, ok := p.sources[region]
	if !ok {
		return nil, fmt.Errorf("no price source for region %s", region)
	}

	fetched, err := source.Marketdata(ctx, day, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching prices for %s: %w", ErrPriceFetch, day.Format("2006-01-02"), err)
	}
	p.countFetch("api")

	if len(fetched) == 0 {
		return nil, fmt.Errorf("%w: no prices published for %s", ErrPriceFetch, day.Format("2006-01-02"))
	}
	if err := p.store.CachePrices(region, day, fetched); err != nil {
		p.logger.WithError(err).Warn("Caching prices failed")
	}

	return fetched, nil
}

// Cheapest runs the search for q against the upcoming prices. It returns
// engine.ErrNoWindow when the range is too short.
func (p *Planner) Cheapest(ctx context.Context, q Query) (*Result, error) {
	seq := p.nextSeq()

	series, settings, err := p.Prices(ctx)
	if err != nil {
		p.countSearch("error")
		return nil, err
	}

	// Every known point has ended and the next day is not published yet
	if len(series) == 0 {
		p.countSearch("not_found")
		return nil, engine.ErrNoWindow
	}

	if q.Request.RangeStart.IsZero() {
		q.Request.RangeStart = p.now().Truncate(time.Second)
	}
	if q.Request.RangeEnd.IsZero() {
		q.Request.RangeEnd = series[len(series)-1].End
	}

	window, err := p.search(series, settings, q.Request)
	if err != nil {
		if errors.Is(err, engine.ErrNoWindow) {
			p.countSearch("not_found")
		} else {
			p.countSearch("error")
		}
		return nil, err
	}
	p.countSearch("found")

	power := q.PowerKW
	if power <= 0 {
		power = settings.PowerKW
	}
	if power > 0 {
		window = window.WithCost(power)
	}

	id, err := p.store.SaveResult(settings.Region, q.Request, window)
	if err != nil {
		return nil, fmt.Errorf("saving result: %w", err)
	}

	result := &Result{ID: id, Region: settings.Region, Request: q.Request, Window: window}
	p.setLatest(seq, result)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, publish.NewMessage(string(settings.Region), window)); err != nil {
			p.logger.WithError(err).Warn("Publishing result failed")
		}
	}

	p.logger.WithFields(logrus.Fields{
		"id":            id,
		"start":         window.Start().Format(time.RFC3339),
		"end":           window.End().Format(time.RFC3339),
		"average_price": window.AveragePrice,
	}).Info("Found cheapest window")

	return result, nil
}

// search consults the result cache before running the engine
func (p *Planner) search(series engine.Series, settings store.Settings, req engine.SearchRequest) (engine.Window, error) {
	key := cacheKey(series, settings, req)
	if cached, ok := p.cache.Get(key); ok {
		return cached.(engine.Window), nil
	}

	start := time.Now()
	window, err := engine.FindCheapest(series, req)
	if p.metrics != nil {
		p.metrics.searchTime.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return engine.Window{}, err
	}

	p.cache.Add(key, window)
	return window, nil
}

// Latest returns the result of the most recently started search that
// succeeded. A slow older search never replaces a newer one.
func (p *Planner) Latest() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

func (p *Planner) nextSeq() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

func (p *Planner) setLatest(seq uint64, r *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq > p.latestSeq {
		p.latestSeq = seq
		p.latest = r
	}
}

func (p *Planner) countSearch(outcome string) {
	if p.metrics != nil {
		p.metrics.searches.WithLabelValues(outcome).Inc()
	}
}

func (p *Planner) countFetch(source string) {
	if p.metrics != nil {
		p.metrics.priceFetches.WithLabelValues(source).Inc()
	}
}

// cacheKey identifies a search by everything that affects its result
func cacheKey(series engine.Series, settings store.Settings, req engine.SearchRequest) string {
	payload, _ := json.Marshal(struct {
		Series   engine.Series        `json:"series"`
		Settings store.Settings       `json:"settings"`
		Request  engine.SearchRequest `json:"request"`
	}{series, settings, req})
	return string(payload)
}
