package tariff

import (
	"time"

	"github.com/shopspring/decimal"

	"load-analytics/internal/analysis/domain/series"
)

// TotalPlaces is the rounding applied to a valuation total.
const TotalPlaces = 3

// PricedInterval is the counter movement inside one (day, period, price)
// partition and its cost.
type PricedInterval struct {
	Day      time.Time       `json:"day"`
	Period   Period          `json:"period"`
	Price    decimal.Decimal `json:"price"`
	Min      float64         `json:"min"`
	Max      float64         `json:"max"`
	Energy   decimal.Decimal `json:"energy"`
	Amount   decimal.Decimal `json:"amount"`
	Readings int             `json:"readings"`
	// Decreases counts consecutive readings where the counter went down.
	Decreases int `json:"decreases"`
}

// Valuation is the period-priced value of a cumulative counter.
type Valuation struct {
	EntityID  string           `json:"entity_id"`
	Intervals []PricedInterval `json:"intervals"`
	Total     decimal.Decimal  `json:"total"`
	Decreases int              `json:"decreases"`
}

// ByPeriod sums interval amounts per period.
func (v Valuation) ByPeriod() map[Period]decimal.Decimal {
	out := make(map[Period]decimal.Decimal, len(Periods))
	for _, iv := range v.Intervals {
		out[iv.Period] = out[iv.Period].Add(iv.Amount)
	}
	return out
}

type partitionKey struct {
	day    time.Time
	period Period
	price  string
}

// Valuate prices a cumulative counter series. Readings are partitioned by
// calendar day, period and price; each partition contributes
// (max - min) * price. Counter resets are not corrected; a partition whose
// counter decreases reports it in Decreases.
func Valuate(s *series.Series, prices PriceTable) (Valuation, error) {
	if err := prices.Validate(); err != nil {
		return Valuation{}, err
	}
	out := Valuation{EntityID: s.EntityID(), Total: decimal.Zero}
	index := make(map[partitionKey]int)
	last := make(map[partitionKey]float64)
	for _, p := range s.Points() {
		period := PeriodAt(p.Timestamp)
		price, err := prices.Price(period)
		if err != nil {
			return Valuation{}, err
		}
		y, m, d := p.Timestamp.Date()
		key := partitionKey{
			day:    time.Date(y, m, d, 0, 0, 0, 0, p.Timestamp.Location()),
			period: period,
			price:  price.String(),
		}
		pos, ok := index[key]
		if !ok {
			index[key] = len(out.Intervals)
			out.Intervals = append(out.Intervals, PricedInterval{
				Day:    key.day,
				Period: period,
				Price:  price,
				Min:    p.Value,
				Max:    p.Value,
			})
			pos = len(out.Intervals) - 1
		} else if p.Value < last[key] {
			out.Intervals[pos].Decreases++
		}
		last[key] = p.Value
		iv := &out.Intervals[pos]
		iv.Readings++
		if p.Value < iv.Min {
			iv.Min = p.Value
		}
		if p.Value > iv.Max {
			iv.Max = p.Value
		}
	}
	for i := range out.Intervals {
		iv := &out.Intervals[i]
		iv.Energy = decimal.NewFromFloat(iv.Max).Sub(decimal.NewFromFloat(iv.Min))
		iv.Amount = iv.Energy.Mul(iv.Price)
		out.Total = out.Total.Add(iv.Amount)
		out.Decreases += iv.Decreases
	}
	out.Total = out.Total.Round(TotalPlaces)
	return out, nil
}
