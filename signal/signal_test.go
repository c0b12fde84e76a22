package signal

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/atrbot/errs"
	"github.com/rustyeddy/atrbot/indicators"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGenerateLevels(t *testing.T) {
	t.Parallel()

	sig, err := Generate("BTCUSDT", d("100"), 2, d("2.5"))
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, "105", sig.TakeProfit.String())
	assert.Equal(t, "98", sig.StopLoss.String())
	assert.Equal(t, "2.5", sig.RiskRewardRatio.String())
	assert.Equal(t, "2", sig.ATR.String())
}

func TestGenerateDefaultMultiplier(t *testing.T) {
	t.Parallel()

	sig, err := Generate("ETHUSDT", d("100"), 2, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "105", sig.TakeProfit.String())
}

func TestGenerateStopIsFixedOneATR(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"1", "2.5", "4"} {
		sig, err := Generate("BTCUSDT", d("200"), 5, d(m))
		require.NoError(t, err)
		assert.Equal(t, "195", sig.StopLoss.String(), "multiplier %s", m)
		assert.True(t, d(m).Equal(sig.RiskRewardRatio))
	}
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		price string
		atr   float64
		mult  string
	}{
		{"nan atr", "100", math.NaN(), "2.5"},
		{"zero atr", "100", 0, "2.5"},
		{"negative atr", "100", -1, "2.5"},
		{"inf atr", "100", math.Inf(1), "2.5"},
		{"zero price", "0", 2, "2.5"},
		{"negative price", "-5", 2, "2.5"},
		{"negative multiplier", "100", 2, "-1"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Generate("BTCUSDT", d(tt.price), tt.atr, d(tt.mult))
			assert.ErrorIs(t, err, errs.Input)
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	tests := []struct {
		name string
		atrs indicators.Series
		want Volatility
	}{
		{"rising", indicators.Series{nan, 1, 1, 1, 1, 2}, VolatilityHigh},
		{"falling", indicators.Series{nan, 3, 3, 3, 3, 1}, VolatilityLow},
		{"flat", indicators.Series{2, 2, 2, 2, 2}, VolatilityLow},
		{"only recent window counts", indicators.Series{100, 100, 1, 1, 1, 1, 1.5}, VolatilityHigh},
		{"empty", indicators.Series{nan, nan}, VolatilityLow},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.atrs))
		})
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	trs := indicators.Series{nan, 1, 2, 3, 4, 5, 6}
	atrs := indicators.Series{nan, nan, 1.5, 2.5, 3.5, 4.5, 5.5}

	sig, err := Analyze("BTCUSDT", d("100"), trs, atrs, d("2"))
	require.NoError(t, err)

	assert.Equal(t, "111", sig.TakeProfit.String())
	assert.Equal(t, "94.5", sig.StopLoss.String())
	assert.Equal(t, VolatilityHigh, sig.Volatility)
	assert.Equal(t, []float64{2, 3, 4, 5, 6}, sig.TRValues)
	assert.Equal(t, []float64{1.5, 2.5, 3.5, 4.5, 5.5}, sig.ATRValues)
}

func TestAnalyzeUndefinedATR(t *testing.T) {
	t.Parallel()

	nan := math.NaN()
	_, err := Analyze("BTCUSDT", d("100"), indicators.Series{nan, 1}, indicators.Series{nan, nan}, decimal.Zero)
	assert.ErrorIs(t, err, errs.InsufficientData)
}
