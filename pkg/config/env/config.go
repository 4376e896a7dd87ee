package env

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/code-payments/reclaim-server/pkg/config"
	"github.com/code-payments/reclaim-server/pkg/config/wrapper"
)

type conf struct {
	val string
}

// NewConfig snapshots the upper-cased environment variable. Surrounding
// whitespace is ignored and a blank variable is treated as unset.
func NewConfig(key string) config.Config {
	return &conf{
		val: strings.TrimSpace(os.Getenv(strings.ToUpper(key))),
	}
}

// Get implements config.Config.Get
func (c *conf) Get(_ context.Context) (interface{}, error) {
	if c.val == "" {
		return nil, config.ErrNoValue
	}
	return []byte(c.val), nil
}

// Shutdown implements config.Config.Shutdown
func (c *conf) Shutdown() {}

// NewUint64Config creates a env-based uint64 config
func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

// NewFloat64Config creates a env-based float64 config
func NewFloat64Config(key string, defaultValue float64) config.Float64 {
	return wrapper.NewFloat64Config(NewConfig(key), defaultValue)
}

// NewBoolConfig creates a env-based bool config
func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

// NewDurationConfig creates a env-based duration config
func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}
