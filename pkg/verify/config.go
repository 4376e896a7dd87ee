package verify

import (
	"time"

	"github.com/code-payments/reclaim-server/pkg/config"
	"github.com/code-payments/reclaim-server/pkg/config/env"
	"github.com/code-payments/reclaim-server/pkg/config/memory"
	"github.com/code-payments/reclaim-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "VERIFY_"

	EnforceMinimumFeeConfigEnvName = envConfigPrefix + "ENFORCE_MINIMUM_FEE"
	defaultEnforceMinimumFee       = true

	// Conversions can settle above their quoted output, which the submitted
	// transfer was computed from
	TransferToleranceBpsConfigEnvName = envConfigPrefix + "TRANSFER_TOLERANCE_BPS"
	defaultTransferToleranceBps       = 200

	MaxTransactionAgeConfigEnvName = envConfigPrefix + "MAX_TRANSACTION_AGE"
	defaultMaxTransactionAge       = 24 * time.Hour

	NotFoundRetriesConfigEnvName = envConfigPrefix + "NOT_FOUND_RETRIES"
	defaultNotFoundRetries       = 5

	NotFoundRetryDelayConfigEnvName = envConfigPrefix + "NOT_FOUND_RETRY_DELAY"
	defaultNotFoundRetryDelay       = time.Second
)

type conf struct {
	enforceMinimumFee    config.Bool
	transferToleranceBps config.Uint64
	maxTransactionAge    config.Duration
	notFoundRetries      config.Uint64
	notFoundRetryDelay   config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			enforceMinimumFee:    env.NewBoolConfig(EnforceMinimumFeeConfigEnvName, defaultEnforceMinimumFee),
			transferToleranceBps: env.NewUint64Config(TransferToleranceBpsConfigEnvName, defaultTransferToleranceBps),
			maxTransactionAge:    env.NewDurationConfig(MaxTransactionAgeConfigEnvName, defaultMaxTransactionAge),
			notFoundRetries:      env.NewUint64Config(NotFoundRetriesConfigEnvName, defaultNotFoundRetries),
			notFoundRetryDelay:   env.NewDurationConfig(NotFoundRetryDelayConfigEnvName, defaultNotFoundRetryDelay),
		}
	}
}

type testOverrides struct {
	disableMinimumFee bool
	maxTransactionAge time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	maxTransactionAge := overrides.maxTransactionAge
	if maxTransactionAge == 0 {
		maxTransactionAge = defaultMaxTransactionAge
	}

	return func() *conf {
		return &conf{
			enforceMinimumFee:    wrapper.NewBoolConfig(memory.NewConfig(!overrides.disableMinimumFee), defaultEnforceMinimumFee),
			transferToleranceBps: wrapper.NewUint64Config(memory.NewConfig(uint64(defaultTransferToleranceBps)), defaultTransferToleranceBps),
			maxTransactionAge:    wrapper.NewDurationConfig(memory.NewConfig(maxTransactionAge), defaultMaxTransactionAge),
			notFoundRetries:      wrapper.NewUint64Config(memory.NewConfig(uint64(2)), defaultNotFoundRetries),
			notFoundRetryDelay:   wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultNotFoundRetryDelay),
		}
	}
}
