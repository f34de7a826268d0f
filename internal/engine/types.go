package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoWindow means the requested duration does not fit inside the range
	// with the price points available. Callers should ask the user to widen
	// the range.
	ErrNoWindow = errors.New("no price window fits the requested time range")

	ErrInvalidSeries  = errors.New("invalid price series")
	ErrInvalidRequest = errors.New("invalid search request")
)

// PricePoint is the price applicable during one interval [Start, End)
type PricePoint struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Price float64   `json:"price"` // cent per kWh, may be negative
}

// Duration returns the length of the interval
func (p PricePoint) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// Contains reports whether t lies strictly inside the interval
func (p PricePoint) Contains(t time.Time) bool {
	return t.After(p.Start) && t.Before(p.End)
}

// Series is an ordered run of price points
type Series []PricePoint

// Validate checks ordering and interval sanity. Gaps between points are
// allowed; overlaps are not.
func (s Series) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: series is empty", ErrInvalidSeries)
	}
	for i, p := range s {
		if !p.End.After(p.Start) {
			return fmt.Errorf("%w: point ends before it starts", ErrInvalidSeries)
		}
		if i > 0 && p.Start.Before(s[i-1].End) {
			return fmt.Errorf("%w: points overlap or are out of order", ErrInvalidSeries)
		}
	}
	return nil
}

// NominalInterval is the longest point length in the series. Points at the
// edges of a feed may be shorter than the rest.
func (s Series) NominalInterval() time.Duration {
	var nominal time.Duration
	for _, p := range s {
		if d := p.Duration(); d > nominal {
			nominal = d
		}
	}
	return nominal
}

// From returns the points that have not ended at t
func (s Series) From(t time.Time) Series {
	for i, p := range s {
		if p.End.After(t) {
			return s[i:]
		}
	}
	return nil
}

// SearchRequest describes one cheapest-window query
type SearchRequest struct {
	Duration   time.Duration `json:"duration"`
	RangeStart time.Time     `json:"range_start"`
	RangeEnd   time.Time     `json:"range_end"`
}

// NewEnergyRequest derives the usage duration from an energy amount and the
// power the appliance draws.
func NewEnergyRequest(energyKWh, powerKW float64, rangeStart, rangeEnd time.Time) (SearchRequest, error) {
	if energyKWh <= 0 || powerKW <= 0 {
		return SearchRequest{}, fmt.Errorf("%w: energy and power must be positive", ErrInvalidRequest)
	}
	hours := energyKWh / powerKW
	return SearchRequest{
		Duration:   time.Duration(hours * float64(time.Hour)).Round(time.Second),
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
	}, nil
}

// Validate checks the request parameters
func (r SearchRequest) Validate() error {
	if r.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	}
	if !r.RangeEnd.After(r.RangeStart) {
		return fmt.Errorf("%w: range end must be after range start", ErrInvalidRequest)
	}
	return nil
}

// Window is a contiguous run of price points considered as one usage period
type Window struct {
	Points       []PricePoint     `json:"points"`
	AveragePrice float64          `json:"average_price"`
	TotalCost    *decimal.Decimal `json:"total_cost,omitempty"`
}

func newWindow(points []PricePoint) Window {
	return Window{Points: points, AveragePrice: averagePrice(points)}
}

// Start returns the effective start of the window
func (w Window) Start() time.Time {
	return w.Points[0].Start
}

// End returns the effective end of the window
func (w Window) End() time.Time {
	return w.Points[len(w.Points)-1].End
}

// Duration sums the point lengths
func (w Window) Duration() time.Duration {
	var total time.Duration
	for _, p := range w.Points {
		total += p.Duration()
	}
	return total
}

// clone gives the window its own copy of the points so boundary trimming
// cannot reach back into the series.
func (w Window) clone() Window {
	points := make([]PricePoint, len(w.Points))
	copy(points, w.Points)
	return Window{Points: points, AveragePrice: w.AveragePrice}
}
