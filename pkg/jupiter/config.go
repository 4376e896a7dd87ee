package jupiter

import (
	"time"

	"github.com/code-payments/reclaim-server/pkg/config"
	"github.com/code-payments/reclaim-server/pkg/config/env"
	"github.com/code-payments/reclaim-server/pkg/config/memory"
	"github.com/code-payments/reclaim-server/pkg/config/wrapper"
)

const (
	envConfigPrefix = "JUPITER_"

	RequestsPerSecondConfigEnvName = envConfigPrefix + "REQUESTS_PER_SECOND"
	defaultRequestsPerSecond       = 5.0

	RequestTimeoutConfigEnvName = envConfigPrefix + "REQUEST_TIMEOUT"
	defaultRequestTimeout       = 10 * time.Second

	MaxRetriesConfigEnvName = envConfigPrefix + "MAX_RETRIES"
	defaultMaxRetries       = 2

	QuoteCacheTtlConfigEnvName = envConfigPrefix + "QUOTE_CACHE_TTL"
	defaultQuoteCacheTtl       = 15 * time.Second
)

type conf struct {
	requestsPerSecond config.Float64
	requestTimeout    config.Duration
	maxRetries        config.Uint64
	quoteCacheTtl     config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			requestsPerSecond: env.NewFloat64Config(RequestsPerSecondConfigEnvName, defaultRequestsPerSecond),
			requestTimeout:    env.NewDurationConfig(RequestTimeoutConfigEnvName, defaultRequestTimeout),
			maxRetries:        env.NewUint64Config(MaxRetriesConfigEnvName, defaultMaxRetries),
			quoteCacheTtl:     env.NewDurationConfig(QuoteCacheTtlConfigEnvName, defaultQuoteCacheTtl),
		}
	}
}

type testOverrides struct {
	requestsPerSecond float64
	maxRetries        uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			requestsPerSecond: wrapper.NewFloat64Config(memory.NewConfig(overrides.requestsPerSecond), defaultRequestsPerSecond),
			requestTimeout:    wrapper.NewDurationConfig(memory.NewConfig(time.Second), defaultRequestTimeout),
			maxRetries:        wrapper.NewUint64Config(memory.NewConfig(overrides.maxRetries), defaultMaxRetries),
			quoteCacheTtl:     wrapper.NewDurationConfig(memory.NewConfig(time.Minute), defaultQuoteCacheTtl),
		}
	}
}
