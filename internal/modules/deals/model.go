// Package deals stores executed MT5 deal history.
package deals

import "time"

// Deal is one executed-trade record. Immutable once recorded except for
// administrative re-sync; the ticket is the global idempotency key.
type Deal struct {
	Ticket     int64     `json:"ticket"`
	Account    int64     `json:"account"`
	OrderID    int64     `json:"order_id"`
	Time       time.Time `json:"time"`
	Type       string    `json:"type"`
	Entry      string    `json:"entry"`
	Symbol     string    `json:"symbol"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Commission float64   `json:"commission"`
	Swap       float64   `json:"swap"`
	PositionID int64     `json:"position_id"`
	Comment    string    `json:"comment"`
}

// MonthlyProfit is an aggregated profit total for one calendar month
type MonthlyProfit struct {
	Month  string  // "2006-01"
	Profit float64
}
