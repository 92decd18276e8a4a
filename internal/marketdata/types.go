package marketdata

import "time"

// OptionQuote is one contract row from an option chain.
type OptionQuote struct {
	Symbol     string    `json:"symbol"`
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	LastPrice  float64   `json:"last_price"`
	ImpliedVol float64   `json:"implied_vol"`
}

// Mid returns the bid/ask midpoint, or 0 when either side is missing.
func (q OptionQuote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// Chain holds the calls and puts for one expiration.
type Chain struct {
	Ticker string        `json:"ticker"`
	Expiry time.Time     `json:"expiry"`
	Calls  []OptionQuote `json:"calls"`
	Puts   []OptionQuote `json:"puts"`
}

// Bar is one daily OHLCV record.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
