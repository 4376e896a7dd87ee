package reclaim

import (
	"time"

	"github.com/code-payments/reclaim-server/pkg/config"
	"github.com/code-payments/reclaim-server/pkg/config/env"
	"github.com/code-payments/reclaim-server/pkg/config/memory"
	"github.com/code-payments/reclaim-server/pkg/config/wrapper"
)

// todo: The cutoff, value floor and batch sizes are empirical and should be
//       calibrated against measured transaction sizes.
const (
	envConfigPrefix = "RECLAIM_"

	EmptyBatchSizeConfigEnvName = envConfigPrefix + "EMPTY_BATCH_SIZE"
	defaultEmptyBatchSize       = 15

	ValueBatchSizeConfigEnvName = envConfigPrefix + "VALUE_BATCH_SIZE"
	defaultValueBatchSize       = 5

	ComplexityCutoffConfigEnvName = envConfigPrefix + "COMPLEXITY_CUTOFF"
	defaultComplexityCutoff       = 0.8

	MinConversionLamportsConfigEnvName = envConfigPrefix + "MIN_CONVERSION_LAMPORTS"
	defaultMinConversionLamports       = 5_000

	MaxPriceImpactConfigEnvName = envConfigPrefix + "MAX_PRICE_IMPACT"
	defaultMaxPriceImpact       = 0.5

	SlippageBpsConfigEnvName = envConfigPrefix + "SLIPPAGE_BPS"
	defaultSlippageBps       = 100

	MaxSwapAccountsConfigEnvName = envConfigPrefix + "MAX_SWAP_ACCOUNTS"
	defaultMaxSwapAccounts       = 20

	ComputeUnitLimitConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_LIMIT"
	defaultComputeUnitLimit       = 1_400_000

	ComputeUnitPriceConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_PRICE"
	defaultComputeUnitPrice       = 1_000

	MaxTransientRetriesConfigEnvName = envConfigPrefix + "MAX_TRANSIENT_RETRIES"
	defaultMaxTransientRetries       = 2

	BatchPacingDelayConfigEnvName = envConfigPrefix + "BATCH_PACING_DELAY"
	defaultBatchPacingDelay       = 1500 * time.Millisecond

	ConfirmationTimeoutConfigEnvName = envConfigPrefix + "CONFIRMATION_TIMEOUT"
	defaultConfirmationTimeout       = 60 * time.Second

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	defaultPollInterval       = time.Second

	StatusCheckDelayConfigEnvName = envConfigPrefix + "STATUS_CHECK_DELAY"
	defaultStatusCheckDelay       = 2 * time.Second
)

type conf struct {
	emptyBatchSize        config.Uint64
	valueBatchSize        config.Uint64
	complexityCutoff      config.Float64
	minConversionLamports config.Uint64
	maxPriceImpact        config.Float64
	slippageBps           config.Uint64
	maxSwapAccounts       config.Uint64
	computeUnitLimit      config.Uint64
	computeUnitPrice      config.Uint64
	maxTransientRetries   config.Uint64
	batchPacingDelay      config.Duration
	confirmationTimeout   config.Duration
	pollInterval          config.Duration
	statusCheckDelay      config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			emptyBatchSize:        env.NewUint64Config(EmptyBatchSizeConfigEnvName, defaultEmptyBatchSize),
			valueBatchSize:        env.NewUint64Config(ValueBatchSizeConfigEnvName, defaultValueBatchSize),
			complexityCutoff:      env.NewFloat64Config(ComplexityCutoffConfigEnvName, defaultComplexityCutoff),
			minConversionLamports: env.NewUint64Config(MinConversionLamportsConfigEnvName, defaultMinConversionLamports),
			maxPriceImpact:        env.NewFloat64Config(MaxPriceImpactConfigEnvName, defaultMaxPriceImpact),
			slippageBps:           env.NewUint64Config(SlippageBpsConfigEnvName, defaultSlippageBps),
			maxSwapAccounts:       env.NewUint64Config(MaxSwapAccountsConfigEnvName, defaultMaxSwapAccounts),
			computeUnitLimit:      env.NewUint64Config(ComputeUnitLimitConfigEnvName, defaultComputeUnitLimit),
			computeUnitPrice:      env.NewUint64Config(ComputeUnitPriceConfigEnvName, defaultComputeUnitPrice),
			maxTransientRetries:   env.NewUint64Config(MaxTransientRetriesConfigEnvName, defaultMaxTransientRetries),
			batchPacingDelay:      env.NewDurationConfig(BatchPacingDelayConfigEnvName, defaultBatchPacingDelay),
			confirmationTimeout:   env.NewDurationConfig(ConfirmationTimeoutConfigEnvName, defaultConfirmationTimeout),
			pollInterval:          env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
			statusCheckDelay:      env.NewDurationConfig(StatusCheckDelayConfigEnvName, defaultStatusCheckDelay),
		}
	}
}

type testOverrides struct {
	emptyBatchSize      uint64
	valueBatchSize      uint64
	maxTransientRetries uint64
	confirmationTimeout time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	emptyBatchSize := uint64(defaultEmptyBatchSize)
	if overrides.emptyBatchSize > 0 {
		emptyBatchSize = overrides.emptyBatchSize
	}
	valueBatchSize := uint64(defaultValueBatchSize)
	if overrides.valueBatchSize > 0 {
		valueBatchSize = overrides.valueBatchSize
	}
	confirmationTimeout := 200 * time.Millisecond
	if overrides.confirmationTimeout > 0 {
		confirmationTimeout = overrides.confirmationTimeout
	}

	return func() *conf {
		return &conf{
			emptyBatchSize:        wrapper.NewUint64Config(memory.NewConfig(emptyBatchSize), defaultEmptyBatchSize),
			valueBatchSize:        wrapper.NewUint64Config(memory.NewConfig(valueBatchSize), defaultValueBatchSize),
			complexityCutoff:      wrapper.NewFloat64Config(memory.NewConfig(defaultComplexityCutoff), defaultComplexityCutoff),
			minConversionLamports: wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMinConversionLamports)), defaultMinConversionLamports),
			maxPriceImpact:        wrapper.NewFloat64Config(memory.NewConfig(defaultMaxPriceImpact), defaultMaxPriceImpact),
			slippageBps:           wrapper.NewUint64Config(memory.NewConfig(uint64(defaultSlippageBps)), defaultSlippageBps),
			maxSwapAccounts:       wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxSwapAccounts)), defaultMaxSwapAccounts),
			computeUnitLimit:      wrapper.NewUint64Config(memory.NewConfig(uint64(defaultComputeUnitLimit)), defaultComputeUnitLimit),
			computeUnitPrice:      wrapper.NewUint64Config(memory.NewConfig(uint64(defaultComputeUnitPrice)), defaultComputeUnitPrice),
			maxTransientRetries:   wrapper.NewUint64Config(memory.NewConfig(overrides.maxTransientRetries), defaultMaxTransientRetries),
			batchPacingDelay:      wrapper.NewDurationConfig(memory.NewConfig(time.Duration(0)), defaultBatchPacingDelay),
			confirmationTimeout:   wrapper.NewDurationConfig(memory.NewConfig(confirmationTimeout), defaultConfirmationTimeout),
			pollInterval:          wrapper.NewDurationConfig(memory.NewConfig(10*time.Millisecond), defaultPollInterval),
			statusCheckDelay:      wrapper.NewDurationConfig(memory.NewConfig(10*time.Millisecond), defaultStatusCheckDelay),
		}
	}
}
