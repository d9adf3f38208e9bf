package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	calc := NewCalculator()

	tests := []struct {
		name           string
		amount         int64
		wantProcessing int64
		wantCharge     int64
		wantPlatform   int64
		wantPayout     int64
	}{
		{
			name:           "round amount",
			amount:         10000,
			wantProcessing: 320, // 30 + 2.9%
			wantCharge:     10320,
			wantPlatform:   1500,
			wantPayout:     8500,
		},
		{
			name:           "rounding up",
			amount:         999,
			wantProcessing: 59, // 30 + round(28.97)
			wantCharge:     1058,
			wantPlatform:   150, // round(149.85)
			wantPayout:     849,
		},
		{
			name:           "zero amount carries no fees",
			amount:         0,
			wantProcessing: 0,
			wantCharge:     0,
			wantPlatform:   0,
			wantPayout:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := calc.Calculate(tt.amount)
			assert.Equal(t, tt.amount, b.BaseCents)
			assert.Equal(t, tt.wantProcessing, b.ProcessingFeeCents)
			assert.Equal(t, tt.wantCharge, b.CustomerChargeCents)
			assert.Equal(t, tt.wantPlatform, b.PlatformShareCents)
			assert.Equal(t, tt.wantPayout, b.MerchantPayoutCents)
		})
	}
}

func TestCalculateDecomposition(t *testing.T) {
	calc := NewCalculator()
	for _, amount := range []int64{1, 50, 550, 12345, 999999} {
		b := calc.Calculate(amount)
		assert.Equal(t, b.BaseCents+b.ProcessingFeeCents, b.CustomerChargeCents)
		assert.Equal(t, b.BaseCents, b.PlatformShareCents+b.MerchantPayoutCents)
	}
}

func TestCustomRates(t *testing.T) {
	calc := NewCalculatorWithRates(0, 0, 0.5)
	b := calc.Calculate(200)
	assert.Equal(t, int64(200), b.CustomerChargeCents)
	assert.Equal(t, int64(100), b.PlatformShareCents)
}
