package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/awattprice/awattprice/internal/config"
	"github.com/awattprice/awattprice/internal/logging"
	"github.com/awattprice/awattprice/internal/planner"
	"github.com/awattprice/awattprice/internal/prices"
	"github.com/awattprice/awattprice/internal/publish"
	"github.com/awattprice/awattprice/internal/store"
	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// App bundles the long-lived components shared by the CLI and the server
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Store    *store.Store
	Planner  *planner.Planner
	Registry *prometheus.Registry

	publisher *publish.MQTTPublisher
}

// New opens the database, seeds settings from the configuration and wires
// the planner. Close must be called when done.
func New(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return nil, err
	}

	seed, err := seedSettings(cfg)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	st, err := store.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := st.SeedSettings(seed); err != nil {
		st.Close()
		return nil, fmt.Errorf("seeding settings: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, Store: st, Registry: prometheus.NewRegistry()}

	var publisher planner.Publisher
	if cfg.MQTT.Broker != "" {
		a.publisher, err = publish.Connect(publish.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, logger)
		if err != nil {
			// Searching still works without home automation
			logger.WithError(err).Warn("MQTT publishing disabled")
		} else {
			publisher = a.publisher
		}
	}

	sources := map[tariff.Region]planner.PriceSource{}
	for _, region := range []tariff.Region{tariff.RegionDE, tariff.RegionAT} {
		opts := []prices.Option{
			prices.WithRateLimit(cfg.Awattar.RequestsPerMinute),
			prices.WithLogger(logger.WithField("region", region)),
		}
		// A custom base URL only applies to the configured region
		if region == seed.Region {
			opts = append(opts, prices.WithBaseURL(cfg.Awattar.BaseURL))
		}
		sources[region] = prices.NewAwattarClient(region, opts...)
	}

	a.Planner, err = planner.New(planner.Config{
		Sources:   sources,
		Store:     st,
		Publisher: publisher,
		Metrics:   planner.NewMetrics(a.Registry),
		Logger:    logger,
		CacheSize: cfg.Cache.Size,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the database and the broker connection
func (a *App) Close() error {
	if a.publisher != nil {
		a.publisher.Close()
	}
	return a.Store.Close()
}

func seedSettings(cfg *config.Config) (store.Settings, error) {
	region, err := tariff.ParseRegion(cfg.Awattar.Region)
	if err != nil {
		return store.Settings{}, err
	}
	baseFee, err := decimal.NewFromString(cfg.Tariff.BaseFeeCent)
	if err != nil {
		return store.Settings{}, fmt.Errorf("parsing tariff.base_fee_cent: %w", err)
	}
	return store.Settings{Region: region, IncludeVAT: cfg.Tariff.IncludeVAT, BaseFeeCent: baseFee}, nil
}
