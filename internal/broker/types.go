package broker

import "time"

// OptionContract is one listed contract from the brokerage.
type OptionContract struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	StrikePrice float64 `json:"strike_price,string"`
	Expiration  string  `json:"expiration_date"`
	Type        string  `json:"type"`
}

// ExpiryDate parses the contract expiration date.
func (c OptionContract) ExpiryDate() (time.Time, error) {
	return time.Parse("2006-01-02", c.Expiration)
}

// OrderLeg is one leg of a multi-leg order request.
type OrderLeg struct {
	Side           string `json:"side"`
	PositionIntent string `json:"position_intent"`
	Symbol         string `json:"symbol"`
	RatioQty       string `json:"ratio_qty"`
}

// OrderRequest is the multi-leg market order payload.
type OrderRequest struct {
	Type        string     `json:"type"`
	TimeInForce string     `json:"time_in_force"`
	OrderClass  string     `json:"order_class"`
	Qty         string     `json:"qty"`
	Legs        []OrderLeg `json:"legs"`
}

// FilledLeg is one leg record in an order confirmation.
type FilledLeg struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	FilledAvgPrice string `json:"filled_avg_price"`
	Status         string `json:"status"`
}

// OrderResult is the brokerage's order confirmation.
type OrderResult struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	Legs      []FilledLeg `json:"legs"`
}

// Position is one open position.
type Position struct {
	Symbol       string `json:"symbol"`
	Qty          string `json:"qty"`
	Side         string `json:"side"`
	AvgEntry     string `json:"avg_entry_price"`
	CurrentPrice string `json:"current_price"`
	AssetClass   string `json:"asset_class"`
}
