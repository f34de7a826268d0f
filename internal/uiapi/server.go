package uiapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/awattprice/awattprice/internal/planner"
	"github.com/awattprice/awattprice/internal/store"
	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const version = "1.0.0"

type Server struct {
	planner  *planner.Planner
	store    *store.Store
	gatherer prometheus.Gatherer
	logger   logrus.FieldLogger
}

func NewServer(p *planner.Planner, st *store.Store, gatherer prometheus.Gatherer, logger logrus.FieldLogger) *Server {
	return &Server{
		planner:  p,
		store:    st,
		gatherer: gatherer,
		logger:   logger,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/prices", s.handleGetPrices)
		r.Post("/cheapest", s.handleCheapest)
		r.Get("/cheapest/latest", s.handleLatest)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Get("/history", s.handleHistory)
	})

	return r
}

// requestLogger logs one line per request through logrus
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
		}).Info("Handled request")
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version,
		"region":  settings.Region,
	})
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	series, _, err := s.planner.Prices(r.Context())
	switch {
	case errors.Is(err, planner.ErrPriceFetch):
		respondError(w, http.StatusBadGateway, "failed to fetch prices: "+err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, series)
}

// CheapestRequest asks for the cheapest window. Either DurationMinutes or
// EnergyKWh together with PowerKW must be set.
type CheapestRequest struct {
	DurationMinutes float64   `json:"duration_minutes"`
	EnergyKWh       float64   `json:"energy_kwh"`
	PowerKW         float64   `json:"power_kw"`
	RangeStart      time.Time `json:"range_start"`
	RangeEnd        time.Time `json:"range_end"`
}

func (c CheapestRequest) query() (planner.Query, error) {
	if c.EnergyKWh > 0 {
		req, err := engine.NewEnergyRequest(c.EnergyKWh, c.PowerKW, c.RangeStart, c.RangeEnd)
		if err != nil {
			return planner.Query{}, err
		}
		return planner.Query{Request: req, PowerKW: c.PowerKW}, nil
	}

	if c.DurationMinutes <= 0 {
		return planner.Query{}, errors.New("duration_minutes or energy_kwh is required")
	}
	return planner.Query{
		Request: engine.SearchRequest{
			Duration:   time.Duration(c.DurationMinutes * float64(time.Minute)).Round(time.Second),
			RangeStart: c.RangeStart,
			RangeEnd:   c.RangeEnd,
		},
		PowerKW: c.PowerKW,
	}, nil
}

func (s *Server) handleCheapest(w http.ResponseWriter, r *http.Request) {
	var body CheapestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q, err := body.query()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.planner.Cheapest(r.Context(), q)
	switch {
	case errors.Is(err, engine.ErrNoWindow):
		respondError(w, http.StatusUnprocessableEntity, "the selected time range is too short for the requested duration")
		return
	case errors.Is(err, engine.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, planner.ErrPriceFetch):
		respondError(w, http.StatusBadGateway, "failed to fetch prices: "+err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest := s.planner.Latest()
	if latest == nil {
		respondError(w, http.StatusNotFound, "no search has completed yet")
		return
	}
	respondJSON(w, http.StatusOK, latest)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings store.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	region, err := tariff.ParseRegion(string(settings.Region))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	settings.Region = region

	if settings.PowerKW < 0 || settings.BaseFeeCent.LessThan(decimal.Zero) {
		respondError(w, http.StatusBadRequest, "power and base fee must not be negative")
		return
	}

	if err := s.store.SaveSettings(settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.store.History(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
