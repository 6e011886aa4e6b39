package txmanager

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/vocdoni/zkvote/log"
)

// GasEstimateOpts allows tuning of estimator behavior
type GasEstimateOpts struct {
	MinGas    uint64        // minimum possible gas limit (default 21,000)
	MaxGas    uint64        // maximum possible gas limit (default 5,000,000)
	SafetyBps int           // safety margin in basis points (default +10%)
	Retries   int           // retry count for RPC errors (default 3)
	Backoff   time.Duration // delay between retries (default 250ms)
	Fallback  uint64        // gas used when every attempt fails
}

// DefaultGasEstimateOpts returns the default estimator configuration.
func DefaultGasEstimateOpts() *GasEstimateOpts {
	return &GasEstimateOpts{
		MinGas:    21_000,
		MaxGas:    5_000_000,
		SafetyBps: 1000,
		Retries:   3,
		Backoff:   250 * time.Millisecond,
		Fallback:  DefaultGasFallback,
	}
}

// validate fills zero values with defaults.
func (o *GasEstimateOpts) validate() {
	def := DefaultGasEstimateOpts()
	if o.MinGas == 0 {
		o.MinGas = def.MinGas
	}
	if o.MaxGas == 0 {
		o.MaxGas = def.MaxGas
	}
	if o.SafetyBps == 0 {
		o.SafetyBps = def.SafetyBps
	}
	if o.Retries == 0 {
		o.Retries = def.Retries
	}
	if o.Backoff == 0 {
		o.Backoff = def.Backoff
	}
	if o.Fallback == 0 {
		o.Fallback = def.Fallback
	}
}

// EstimateGas estimates the gas limit of msg with a safety margin, retrying
// transient failures. A revert is returned as an error; any other failure
// falls back to the configured gas limit.
func (tm *Manager) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	opts := tm.config.Gas
	var err error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(opts.Backoff):
			}
		}
		var gas uint64
		gas, err = tm.cli.EstimateGas(ctx, msg)
		if err == nil {
			return applySafetyMargin(gas, opts), nil
		}
		if IsPermanentError(err) {
			return 0, fmt.Errorf("estimate gas: %w", err)
		}
	}
	log.Warnw("gas estimation failed, using fallback", "error", err, "fallback", opts.Fallback)
	return opts.Fallback, nil
}

// applySafetyMargin adds a safety buffer and clamps to limits
func applySafetyMargin(gas uint64, o *GasEstimateOpts) uint64 {
	gas += (gas * uint64(o.SafetyBps)) / 10_000
	return min(max(gas, o.MinGas), o.MaxGas)
}
