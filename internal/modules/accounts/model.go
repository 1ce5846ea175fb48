// Package accounts stores live MT5 account snapshots.
package accounts

import "time"

// Account is the latest snapshot for one MT5 login. There is no history:
// every sync cycle overwrites the row.
type Account struct {
	Account       int64      `json:"account"`
	Name          string     `json:"name"`
	Fund          string     `json:"fund"`
	TargetAmount  float64    `json:"target_amount"`
	Balance       float64    `json:"balance"`
	Equity        float64    `json:"equity"`
	Margin        float64    `json:"margin"`
	MarginFree    float64    `json:"margin_free"`
	MarginLevel   float64    `json:"margin_level"`
	OpenPositions int        `json:"open_positions"`
	Connected     bool       `json:"connected"`
	UpdatedAt     *time.Time `json:"updated_at"`
}
