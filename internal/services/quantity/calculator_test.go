package quantity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/rangebot/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		amount string
		step   string
		want   string
	}{
		{"three decimals", "50", "10", "0.001", "0.2"},
		{"zero step rounds to integer", "0.0399430", "0.1", "0", "3"},
		{"integral step", "3", "10", "1", "3"},
		{"half to even down", "1", "0.125", "0.01", "0.12"},
		{"half to even up", "1", "0.135", "0.01", "0.14"},
		{"scenario buy", "0.039942", "0.0359469", "0.0001", "0.9"},
		{"step with trailing zeros", "7", "100", "0.0100", "14.29"},
		{"tail beyond sixteen digits breaks the tie", "1", "0.03250000000000000001", "0.001", "0.033"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(d(tt.price), d(tt.amount), d(tt.step))
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestCalculate_Invalid(t *testing.T) {
	_, err := Calculate(decimal.Zero, d("10"), d("0.001"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Calculate(d("-1"), d("10"), d("0.001"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Calculate(d("10"), decimal.Zero, d("0.001"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCalculate_Idempotent(t *testing.T) {
	step := d("0.001")
	price := d("1")

	first, err := Calculate(price, d("0.1234567"), step)
	require.NoError(t, err)

	second, err := Calculate(price, first, step)
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.True(t, fitsStep(first, step))
}

func TestStepPrecision(t *testing.T) {
	assert.Equal(t, int32(3), StepPrecision(d("0.001")))
	assert.Equal(t, int32(3), StepPrecision(d("0.00100000")))
	assert.Equal(t, int32(8), StepPrecision(d("0.00000001")))
	assert.Equal(t, int32(0), StepPrecision(d("1.0")))
	assert.Equal(t, int32(0), StepPrecision(d("10")))
	assert.Equal(t, int32(0), StepPrecision(decimal.Zero))
	assert.Equal(t, int32(0), StepPrecision(d("-0.01")))
}

// fitsStep reports whether qty is already a multiple of the step precision.
func fitsStep(qty, stepSize decimal.Decimal) bool {
	return qty.Equal(qty.RoundBank(StepPrecision(stepSize)))
}
