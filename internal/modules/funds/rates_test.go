package funds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonthlyRate_KnownFunds(t *testing.T) {
	assert.Equal(t, 18.0/12, MonthlyRate("FIDUS CORE"))
	assert.Equal(t, 30.0/12, MonthlyRate("FIDUS BALANCE"))
	assert.Equal(t, 42.0/12, MonthlyRate("FIDUS DYNAMIC"))
	assert.Equal(t, 0.0, MonthlyRate("FIDUS UNLIMITED"))
}

func TestMonthlyRate_UnknownFundFallsBackToZero(t *testing.T) {
	assert.Equal(t, 0.0, MonthlyRate("UNKNOWN_CODE"))
	assert.Equal(t, 0.0, MonthlyRate(""))
	assert.Equal(t, 0.0, MonthlyRate("fidus balance")) // codes are case-sensitive
}

func TestAnnualRate(t *testing.T) {
	assert.Equal(t, 30.0, AnnualRate("FIDUS BALANCE"))
	assert.Equal(t, 0.0, AnnualRate("NOPE"))
}

func TestIsSeparation(t *testing.T) {
	assert.True(t, IsSeparation("INTEREST_SEPARATION"))
	assert.True(t, IsSeparation("gains_separation"))
	assert.False(t, IsSeparation("FIDUS BALANCE"))
	assert.False(t, IsSeparation(""))
}

func TestInterestMonths(t *testing.T) {
	assert.Equal(t, 12, InterestMonths())
}
