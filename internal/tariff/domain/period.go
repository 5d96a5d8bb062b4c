package tariff

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Period is a time-of-use pricing window.
type Period string

const (
	PeriodValley       Period = "valley"
	PeriodFlat         Period = "flat"
	PeriodPeak         Period = "peak"
	PeriodCriticalPeak Period = "critical-peak"
)

// Periods lists every period in ascending price order.
var Periods = []Period{PeriodValley, PeriodFlat, PeriodPeak, PeriodCriticalPeak}

// ParsePeriod validates a period label.
func ParsePeriod(value string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownPeriod, value)
}

// Classify maps an hour of day and a month to its period.
//
//	[0,6) [12,14)   valley
//	[6,12) [14,16)  flat
//	summer (Jul, Aug): [16,20) [22,24) peak, [20,22) critical-peak
//	otherwise:         [16,18) [20,24) peak, [18,20) critical-peak
func Classify(hour, month int) (Period, error) {
	if hour < 0 || hour >= 24 {
		return "", fmt.Errorf("%w: %d", ErrInvalidHour, hour)
	}
	if month < 1 || month > 12 {
		return "", fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	switch {
	case hour < 6, hour >= 12 && hour < 14:
		return PeriodValley, nil
	case hour < 16:
		return PeriodFlat, nil
	}
	if month == 7 || month == 8 {
		if hour >= 20 && hour < 22 {
			return PeriodCriticalPeak, nil
		}
		return PeriodPeak, nil
	}
	if hour >= 18 && hour < 20 {
		return PeriodCriticalPeak, nil
	}
	return PeriodPeak, nil
}

// PeriodAt classifies a wall-clock instant.
func PeriodAt(t time.Time) Period {
	p, _ := Classify(t.Hour(), int(t.Month()))
	return p
}

// PriceTable is the caller supplied price per period.
type PriceTable map[Period]decimal.Decimal

// NewPriceTable builds a table from float prices.
func NewPriceTable(valley, flat, peak, critical float64) PriceTable {
	return PriceTable{
		PeriodValley:       decimal.NewFromFloat(valley),
		PeriodFlat:         decimal.NewFromFloat(flat),
		PeriodPeak:         decimal.NewFromFloat(peak),
		PeriodCriticalPeak: decimal.NewFromFloat(critical),
	}
}

// Validate requires a non-negative price for every period.
func (t PriceTable) Validate() error {
	for _, p := range Periods {
		price, ok := t[p]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingPrice, p)
		}
		if price.IsNegative() {
			return fmt.Errorf("%w: %s", ErrNegativePrice, p)
		}
	}
	return nil
}

// Price returns the price of a period.
func (t PriceTable) Price(p Period) (decimal.Decimal, error) {
	price, ok := t[p]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingPrice, p)
	}
	return price, nil
}
