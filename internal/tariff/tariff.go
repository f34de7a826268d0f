package tariff

import (
	"fmt"
	"strings"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/shopspring/decimal"
)

// Region is an aWATTar market area
type Region string

const (
	RegionDE Region = "DE"
	RegionAT Region = "AT"
)

var vatRates = map[Region]decimal.Decimal{
	RegionDE: decimal.RequireFromString("0.19"),
	RegionAT: decimal.RequireFromString("0.20"),
}

// ParseRegion accepts a region code in any case
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := vatRates[r]; !ok {
		return "", fmt.Errorf("unknown region %q (use DE or AT)", s)
	}
	return r, nil
}

// VATRate returns the value added tax rate of the region
func (r Region) VATRate() decimal.Decimal {
	return vatRates[r]
}

// Policy turns raw market prices into what the customer pays per kWh
type Policy struct {
	Region     Region
	IncludeVAT bool
	// BaseFeeCent is added to every kWh before tax
	BaseFeeCent decimal.Decimal
}

// Price applies the policy to one net market price in cent per kWh
func (p Policy) Price(netCent float64) float64 {
	price := decimal.NewFromFloat(netCent).Add(p.BaseFeeCent)
	if p.IncludeVAT {
		price = price.Mul(decimal.NewFromInt(1).Add(p.Region.VATRate()))
	}
	f, _ := price.Round(4).Float64()
	return f
}

// Apply returns a new series with the policy applied to every point
func (p Policy) Apply(series engine.Series) engine.Series {
	out := make(engine.Series, len(series))
	for i, point := range series {
		point.Price = p.Price(point.Price)
		out[i] = point
	}
	return out
}

// MarketToCent converts a marketprice in Eur/MWh to cent per kWh
func MarketToCent(eurPerMWh float64) float64 {
	f, _ := decimal.NewFromFloat(eurPerMWh).Div(decimal.NewFromInt(10)).Round(4).Float64()
	return f
}
