package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

var secondsPerHour = decimal.NewFromInt(int64(time.Hour / time.Second))

// ComputeCost returns what running at powerKW for the whole window costs, in
// cent. Flat per-interval fees are left to the caller.
func ComputeCost(w Window, powerKW float64) decimal.Decimal {
	power := decimal.NewFromFloat(powerKW)
	total := decimal.Zero
	for _, p := range w.Points {
		hours := decimal.NewFromInt(int64(p.Duration() / time.Second)).Div(secondsPerHour)
		total = total.Add(hours.Mul(decimal.NewFromFloat(p.Price)).Mul(power))
	}
	return total.Round(4)
}

// WithCost returns a copy of the window carrying its total cost
func (w Window) WithCost(powerKW float64) Window {
	cost := ComputeCost(w, powerKW)
	w.TotalCost = &cost
	return w
}
