// Package funds holds the FIDUS fund catalog: guaranteed interest rates,
// contract terms and account classifications. Everything here is pure data
// and pure functions so the recalculation passes stay deterministic.
package funds

import "strings"

// Contract terms shared by all interest-bearing funds.
const (
	// IncubationMonths is the initial period during which no interest accrues.
	IncubationMonths = 2
	// ContractMonths is the total commitment period per investment.
	ContractMonths = 14
)

// annualRates maps fund code to guaranteed simple interest, percent per year.
// FIDUS UNLIMITED is a performance-fee fund and accrues no fixed interest.
var annualRates = map[string]float64{
	"FIDUS CORE":      18.0,
	"FIDUS BALANCE":   30.0,
	"FIDUS DYNAMIC":   42.0,
	"FIDUS UNLIMITED": 0.0,
}

// AnnualRate returns the guaranteed annual interest rate in percent for a
// fund code. Unknown codes return 0.0.
func AnnualRate(code string) float64 {
	return annualRates[code]
}

// MonthlyRate returns the guaranteed monthly interest rate in percent for a
// fund code. Unknown codes return 0.0.
func MonthlyRate(code string) float64 {
	return annualRates[code] / 12.0
}

// InterestMonths returns how many interest-bearing months the contract has.
func InterestMonths() int {
	return ContractMonths - IncubationMonths
}

// IsSeparation reports whether an account classification is a separation
// account. Separation accounts hold interest or gains rather than trading
// capital, so they are excluded from the all-accounts-at-zero disconnect
// heuristic.
func IsSeparation(fund string) bool {
	return strings.Contains(strings.ToUpper(fund), "SEPARATION")
}
