// Package mt5 abstracts the MetaTrader 5 terminal behind a narrow interface.
// The terminal itself is a proprietary, Windows-only process; this service
// only ever talks to it through the bridge service's REST API and never
// reimplements the vendor SDK.
package mt5

import (
	"context"
	"time"
)

// AccountInfo is the live account snapshot reported by the terminal
type AccountInfo struct {
	Login       int64   `json:"login"`
	Balance     float64 `json:"balance"`
	Equity      float64 `json:"equity"`
	Margin      float64 `json:"margin"`
	MarginFree  float64 `json:"margin_free"`
	MarginLevel float64 `json:"margin_level"`
	Currency    string  `json:"currency"`
}

// Position is an open position on the terminal
type Position struct {
	Ticket int64   `json:"ticket"`
	Symbol string  `json:"symbol"`
	Volume float64 `json:"volume"`
	Profit float64 `json:"profit"`
}

// Deal is an immutable executed-trade record. Ticket is the global unique
// identifier across all accounts.
type Deal struct {
	Ticket     int64     `json:"ticket"`
	Order      int64     `json:"order"`
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

// Terminal is the opaque external capability of the vendor trading terminal.
// Implementations are expected to be stateful: Login selects the active
// account for the subsequent calls.
type Terminal interface {
	Login(ctx context.Context, login int64, password, server string) error
	AccountInfo(ctx context.Context) (*AccountInfo, error)
	Positions(ctx context.Context) ([]Position, error)
	DealsInRange(ctx context.Context, from, to time.Time) ([]Deal, error)
	Close()
}
