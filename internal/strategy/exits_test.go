package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/covered_calls/internal/config"
	"github.com/eddiefleurent/covered_calls/internal/models"
	"github.com/eddiefleurent/covered_calls/internal/util"
)

func openCall(t *testing.T, spot, strike, premium float64) *models.Position {
	t.Helper()
	pos, err := models.OpenPosition(models.OpenParams{
		Symbol:     "RELIANCE",
		EntryDate:  date(2024, 3, 1),
		ExpiryDate: date(2024, 3, 28),
		Spot:       spot,
		Strike:     strike,
		Premium:    premium,
		Delta:      0.3,
		IV:         0.2,
		LotSize:    250,
	})
	require.NoError(t, err)
	return pos
}

func policyFor(strategy config.ExitStrategy, mutate func(*config.ExitConfig)) *ExitPolicy {
	cfg := config.DefaultRunConfig()
	cfg.ExitStrategy = strategy
	if mutate != nil {
		mutate(&cfg.Exit)
	}
	return NewExitPolicy(cfg)
}

func TestReasonFormats(t *testing.T) {
	assert.Equal(t, "DTE_EXIT_5D", DTEExitReason(5))
	assert.Equal(t, "TRAILING_STOP_62PCT_HWM", TrailingStopReason(62.9))
	assert.Equal(t, "PROFIT_TARGET_50PCT", ProfitTargetReason(50))
	assert.Equal(t, "PROFIT_TARGET_33PCT", ProfitTargetReason(33.7))
	assert.Equal(t, "STOP_LOSS_2.0X", StopLossReason(2, false))
	assert.Equal(t, "STOP_LOSS_1.5X", StopLossReason(1.5, false))
	assert.Equal(t, "STOP_LOSS_3.0X_AFTER_ADJ", StopLossReason(3, true))
}

func TestExitPolicy_Active(t *testing.T) {
	assert.False(t, policyFor(config.ExitHoldToExpiry, nil).Active())
	assert.True(t, policyFor(config.ExitProfitTarget, nil).Active())
	assert.True(t, policyFor(config.ExitHoldToExpiry, func(e *config.ExitConfig) { e.DTE.Enabled = true }).Active())
	assert.True(t, policyFor(config.ExitHoldToExpiry, func(e *config.ExitConfig) { e.TrailingStop.Enabled = true }).Active())
}

func TestExitPolicy_HoldsAtOrPastExpiry(t *testing.T) {
	pos := openCall(t, 1000, 1100, 20)
	p := policyFor(config.ExitProfitTargetAndStopLoss, nil)

	for _, d := range []int{28, 29} {
		dec, err := p.Evaluate(pos, 1000, date(2024, 3, d))
		require.NoError(t, err)
		assert.Equal(t, Hold, dec.Kind)
	}
}

func TestExitPolicy_ProfitTarget(t *testing.T) {
	pos := openCall(t, 1000, 1100, 20)

	dec, err := policyFor(config.ExitProfitTarget, nil).Evaluate(pos, 1000, date(2024, 3, 26))
	require.NoError(t, err)
	assert.Equal(t, Close, dec.Kind)
	assert.Equal(t, "PROFIT_TARGET_50PCT", dec.Reason)
	assert.Equal(t, 1000.0, dec.Spot)
	assert.Less(t, dec.OptionPrice, 1.0)

	// A stop-loss-only strategy ignores the same gain.
	dec, err = policyFor(config.ExitStopLoss, nil).Evaluate(pos, 1000, date(2024, 3, 26))
	require.NoError(t, err)
	assert.Equal(t, Hold, dec.Kind)
}

func TestExitPolicy_DTEExitTakesPrecedence(t *testing.T) {
	pos := openCall(t, 1000, 1100, 20)
	p := policyFor(config.ExitProfitTarget, func(e *config.ExitConfig) {
		e.DTE.Enabled = true
		e.DTE.Threshold = 7
	})

	dec, err := p.Evaluate(pos, 1000, date(2024, 3, 26))
	require.NoError(t, err)
	assert.Equal(t, Close, dec.Kind)
	assert.Equal(t, "DTE_EXIT_2D", dec.Reason)

	dec, err = p.Evaluate(pos, 1000, date(2024, 3, 10))
	require.NoError(t, err)
	assert.NotEqual(t, "DTE_EXIT_18D", dec.Reason)
}

func TestExitPolicy_StopLoss(t *testing.T) {
	t.Run("close", func(t *testing.T) {
		pos := openCall(t, 1000, 1050, 10)
		dec, err := policyFor(config.ExitStopLoss, nil).Evaluate(pos, 1100, date(2024, 3, 10))
		require.NoError(t, err)
		assert.Equal(t, Close, dec.Kind)
		assert.Equal(t, "STOP_LOSS_2.0X", dec.Reason)
		assert.Greater(t, dec.OptionPrice, 50.0)
	})

	t.Run("adjust", func(t *testing.T) {
		pos := openCall(t, 1000, 1050, 10)
		p := policyFor(config.ExitStopLoss, func(e *config.ExitConfig) { e.AllowSLAdjustment = true })
		dec, err := p.Evaluate(pos, 1100, date(2024, 3, 10))
		require.NoError(t, err)
		assert.Equal(t, Adjust, dec.Kind)
		assert.InDelta(t, dec.OptionPrice-10, dec.PremiumLost, 1e-9)
		assert.InDelta(t, 18.0/365, dec.TimeToExpiry, 1e-12)
		assert.Equal(t, 0.2, dec.IV)
	})

	t.Run("close after adjustment", func(t *testing.T) {
		pos := openCall(t, 1000, 1050, 10)
		require.NoError(t, pos.RollUp(date(2024, 3, 5), 1075, 5, 0.3, 30))
		p := policyFor(config.ExitStopLoss, func(e *config.ExitConfig) { e.AllowSLAdjustment = true })
		dec, err := p.Evaluate(pos, 1150, date(2024, 3, 10))
		require.NoError(t, err)
		assert.Equal(t, Close, dec.Kind)
		assert.Equal(t, "STOP_LOSS_2.0X_AFTER_ADJ", dec.Reason)
	})

	t.Run("within tolerance holds", func(t *testing.T) {
		pos := openCall(t, 1000, 1100, 20)
		dec, err := policyFor(config.ExitStopLoss, nil).Evaluate(pos, 1000, date(2024, 3, 10))
		require.NoError(t, err)
		assert.Equal(t, Hold, dec.Kind)
	})
}

func TestExitPolicy_TrailingStop(t *testing.T) {
	p := policyFor(config.ExitHoldToExpiry, func(e *config.ExitConfig) { e.TrailingStop.Enabled = true })

	t.Run("activates and tracks high-water mark", func(t *testing.T) {
		pos := openCall(t, 1000, 1100, 20)
		dec, err := p.Evaluate(pos, 1000, date(2024, 3, 26))
		require.NoError(t, err)
		assert.Equal(t, Hold, dec.Kind)
		assert.True(t, pos.TrailingStopActive)
		assert.Greater(t, pos.ProfitHighWaterMark, 95.0)
	})

	t.Run("closes on giveback", func(t *testing.T) {
		pos := openCall(t, 1000, 1000, 20)
		pos.ProfitHighWaterMark = 90
		pos.TrailingStopActive = true
		dec, err := p.Evaluate(pos, 1000, date(2024, 3, 8))
		require.NoError(t, err)
		assert.Equal(t, Close, dec.Kind)
		assert.Equal(t, "TRAILING_STOP_90PCT_HWM", dec.Reason)
	})

	t.Run("inactive below activation", func(t *testing.T) {
		pos := openCall(t, 1000, 1000, 20)
		pos.ProfitHighWaterMark = 20
		dec, err := p.Evaluate(pos, 1000, date(2024, 3, 8))
		require.NoError(t, err)
		assert.Equal(t, Hold, dec.Kind)
		assert.False(t, pos.TrailingStopActive)
	})
}

func TestExitPolicy_RollUp(t *testing.T) {
	p := policyFor(config.ExitStopLoss, func(e *config.ExitConfig) { e.AllowSLAdjustment = true })
	pos := openCall(t, 1000, 1050, 10)

	tests := []struct {
		name string
		lost float64
		want float64
	}{
		{"next strike above loss", 60, 1125},
		{"exact ladder hit", 75, 1125},
		{"beyond ladder uses max", 500, 1325},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decision{Kind: Adjust, Spot: 1100, OptionPrice: 70, PremiumLost: tt.lost, TimeToExpiry: 18.0 / 365, IV: 0.2}
			plan, err := p.RollUp(pos, d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.NewStrike)
			assert.True(t, util.Contains(util.StrikeLadder(1100), plan.NewStrike))
			assert.Equal(t, 1050.0, plan.OldStrike)
			assert.Equal(t, 70.0, plan.Buyback)
			assert.Greater(t, plan.NewPremium, 0.0)
			assert.Less(t, plan.NewPremium, plan.Buyback)
			assert.InDelta(t, plan.Buyback-plan.NewPremium, plan.NetCost(), 1e-12)
		})
	}
}
