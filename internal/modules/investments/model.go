// Package investments stores CRM investment records, the inputs of the
// recalculation sequencer.
package investments

import "time"

// Investment is one client commitment into a FIDUS fund
type Investment struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	FundCode    string    `json:"fund_code"`
	Principal   float64   `json:"principal"`
	DepositDate time.Time `json:"deposit_date"`
	MT5Account  *int64    `json:"mt5_account,omitempty"`
	Status      string    `json:"status"`
}
