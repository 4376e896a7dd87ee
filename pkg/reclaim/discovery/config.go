package discovery

import (
	"time"

	"github.com/code-payments/reclaim-server/pkg/config"
	"github.com/code-payments/reclaim-server/pkg/config/env"
	"github.com/code-payments/reclaim-server/pkg/config/memory"
	"github.com/code-payments/reclaim-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "DISCOVERY_"

	TimeoutConfigEnvName = envConfigPrefix + "TIMEOUT"
	defaultTimeout       = 30 * time.Second

	DecimalsCacheTtlConfigEnvName = envConfigPrefix + "DECIMALS_CACHE_TTL"
	defaultDecimalsCacheTtl       = time.Hour
)

type conf struct {
	timeout          config.Duration
	decimalsCacheTtl config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			timeout:          env.NewDurationConfig(TimeoutConfigEnvName, defaultTimeout),
			decimalsCacheTtl: env.NewDurationConfig(DecimalsCacheTtlConfigEnvName, defaultDecimalsCacheTtl),
		}
	}
}

type testOverrides struct {
	timeout time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	timeout := overrides.timeout
	if timeout == 0 {
		timeout = time.Second
	}

	return func() *conf {
		return &conf{
			timeout:          wrapper.NewDurationConfig(memory.NewConfig(timeout), defaultTimeout),
			decimalsCacheTtl: wrapper.NewDurationConfig(memory.NewConfig(time.Minute), defaultDecimalsCacheTtl),
		}
	}
}
