package txmanager

import (
	"context"
	"fmt"
	"math/big"
)

// FeeCaps are the EIP-1559 fee parameters of a transaction.
type FeeCaps struct {
	TipCap *big.Int // maxPriorityFeePerGas
	FeeCap *big.Int // maxFeePerGas
}

const (
	minTipBumpGwei    = int64(2)
	minFeeCapBumpGwei = int64(5)

	// bump factor x1.125
	bumpFactorNum = int64(1125)
	bumpFactorDen = int64(1000)
)

// SuggestInitialFees builds fee caps from the latest base fee: the fee cap
// is twice the base fee plus the suggested tip. The result is clamped to
// Config.MaxFeeCap when set.
func (tm *Manager) SuggestInitialFees(ctx context.Context) (FeeCaps, error) {
	var fees FeeCaps
	tip, err := tm.cli.SuggestGasTipCap(ctx)
	if err != nil {
		return fees, fmt.Errorf("suggest tip: %w", err)
	}
	h, err := tm.cli.HeaderByNumber(ctx, nil)
	if err != nil {
		return fees, fmt.Errorf("header by number: %w", err)
	}
	if h.BaseFee == nil {
		return fees, fmt.Errorf("no base fee in latest header (pre-london?)")
	}
	feeCap := new(big.Int).Mul(h.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	fees.TipCap = tip
	fees.FeeCap = feeCap
	return tm.clamp(fees), nil
}

// BumpFees raises both caps by at least 12.5% and keeps the fee cap above
// twice the current base fee plus the new tip.
func (tm *Manager) BumpFees(ctx context.Context, fees FeeCaps) (FeeCaps, error) {
	suggestedTip, err := tm.cli.SuggestGasTipCap(ctx)
	if err != nil {
		return fees, fmt.Errorf("suggest tip: %w", err)
	}
	// tip' = max(tip * 1.125, tip + 2gwei, suggestedTip)
	tipBumped := maxBig(
		mulFrac(fees.TipCap, bumpFactorNum, bumpFactorDen),
		new(big.Int).Add(fees.TipCap, gwei(minTipBumpGwei)),
		suggestedTip,
	)
	h, err := tm.cli.HeaderByNumber(ctx, nil)
	if err != nil {
		return fees, fmt.Errorf("header by number: %w", err)
	}
	baseTarget := new(big.Int).Mul(h.BaseFee, big.NewInt(2))
	baseTarget.Add(baseTarget, tipBumped)
	// feeCap' = max(feeCap * 1.125, feeCap + 5gwei, baseTarget)
	feeCapBumped := maxBig(
		mulFrac(fees.FeeCap, bumpFactorNum, bumpFactorDen),
		new(big.Int).Add(fees.FeeCap, gwei(minFeeCapBumpGwei)),
		baseTarget,
	)
	return tm.clamp(FeeCaps{TipCap: tipBumped, FeeCap: feeCapBumped}), nil
}

func (tm *Manager) clamp(fees FeeCaps) FeeCaps {
	limit := tm.config.MaxFeeCap
	if limit == nil || fees.FeeCap.Cmp(limit) <= 0 {
		return fees
	}
	fees.FeeCap = new(big.Int).Set(limit)
	if fees.TipCap.Cmp(limit) > 0 {
		fees.TipCap = new(big.Int).Set(limit)
	}
	return fees
}

func mulFrac(x *big.Int, num, den int64) *big.Int {
	if x == nil {
		return nil
	}
	xx := new(big.Int).Mul(x, big.NewInt(num))
	return xx.Div(xx, big.NewInt(den))
}

func maxBig(vals ...*big.Int) *big.Int {
	var best *big.Int
	for _, v := range vals {
		if v == nil {
			continue
		}
		if best == nil || v.Cmp(best) > 0 {
			best = new(big.Int).Set(v)
		}
	}
	if best == nil {
		return big.NewInt(0)
	}
	return best
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}
