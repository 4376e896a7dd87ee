package app

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	pg "github.com/code-payments/reclaim-server/pkg/database/postgres"
	"github.com/code-payments/reclaim-server/pkg/osutil"
	"github.com/code-payments/reclaim-server/pkg/solana"
)

// BaseConfig contains the configuration shared by every command
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	// Metrics configuration across many providers
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	SolanaEndpoint  string `mapstructure:"solana_endpoint"`
	JupiterEndpoint string `mapstructure:"jupiter_endpoint"`

	// KeypairPath is a solana-keygen JSON file, or a file containing a base58
	// encoded private key
	KeypairPath string `mapstructure:"keypair_path"`

	// Destination receives the fee in direct mode, and the full reclaimed
	// value in wager mode
	Destination string `mapstructure:"destination"`
	Mode        string `mapstructure:"mode"`

	// Lookup caches use redis when an address is set, and an in memory LRU
	// bounded by CacheBudget bytes otherwise. A zero budget is sized from
	// available memory.
	CacheBudget   int    `mapstructure:"cache_budget"`
	RedisAddress  string `mapstructure:"redis_address"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDb       int    `mapstructure:"redis_db"`

	// Credits are kept in memory when no database host is set
	Database DatabaseConfig `mapstructure:"database"`
}

type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	DbName             string `mapstructure:"db_name"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
	UseAwsIam          bool   `mapstructure:"use_aws_iam"`
}

// PostgresConfig returns the database config, or nil if no database is set
func (c *BaseConfig) PostgresConfig() *pg.Config {
	if len(c.Database.Host) == 0 {
		return nil
	}

	return &pg.Config{
		User:               c.Database.User,
		Host:               c.Database.Host,
		Password:           c.Database.Password,
		Port:               c.Database.Port,
		DbName:             c.Database.DbName,
		MaxOpenConnections: c.Database.MaxOpenConnections,
		MaxIdleConnections: c.Database.MaxIdleConnections,
		UseAwsIam:          c.Database.UseAwsIam,
	}
}

// MemoryCacheBudget is the byte budget for in memory lookup caches
func (c *BaseConfig) MemoryCacheBudget() int {
	if c.CacheBudget > 0 {
		return c.CacheBudget
	}

	budget := osutil.GetTotalMemory() / defaultCacheMemoryFraction
	if budget > maxDefaultCacheBudget {
		budget = maxDefaultCacheBudget
	}
	return int(budget)
}

const (
	defaultCacheMemoryFraction = 64
	maxDefaultCacheBudget      = 256 << 20
)

var defaultConfig = BaseConfig{
	LogLevel: "info",

	AppName: "reclaim",

	SolanaEndpoint:  string(solana.EnvironmentProd),
	JupiterEndpoint: "https://quote-api.jup.ag/v6/",

	KeypairPath: "id.json",
	Mode:        "direct",

	Database: DatabaseConfig{
		Port: 5432,
	},
}

func init() {
	_ = viper.BindEnv("log_level", "LOG_LEVEL")

	_ = viper.BindEnv("app_name", "APP_NAME")

	_ = viper.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")

	_ = viper.BindEnv("solana_endpoint", "SOLANA_ENDPOINT")
	_ = viper.BindEnv("jupiter_endpoint", "JUPITER_ENDPOINT")

	_ = viper.BindEnv("keypair_path", "KEYPAIR_PATH")
	_ = viper.BindEnv("destination", "DESTINATION")
	_ = viper.BindEnv("mode", "MODE")

	_ = viper.BindEnv("cache_budget", "CACHE_BUDGET")
	_ = viper.BindEnv("redis_address", "REDIS_ADDRESS")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis_db", "REDIS_DB")

	_ = viper.BindEnv("database.host", "DATABASE_HOST")
	_ = viper.BindEnv("database.port", "DATABASE_PORT")
	_ = viper.BindEnv("database.user", "DATABASE_USER")
	_ = viper.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = viper.BindEnv("database.db_name", "DATABASE_NAME")
	_ = viper.BindEnv("database.max_open_connections", "DATABASE_MAX_OPEN_CONNECTIONS")
	_ = viper.BindEnv("database.max_idle_connections", "DATABASE_MAX_IDLE_CONNECTIONS")
	_ = viper.BindEnv("database.use_aws_iam", "DATABASE_USE_AWS_IAM")
}

// LoadConfig reads the config file at path, if it exists, with environment
// variables taking precedence
func LoadConfig(path string) (*BaseConfig, error) {
	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file because one hasn't been explicitly set. That is,
	// if we explicitly set a config file, and it does not exist, viper will not
	// return a ConfigFileNotFoundError, so we do it ourselves.
	if _, err := os.Stat(path); err == nil {
		viper.SetConfigFile(path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return nil, errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		return nil, errors.New("must specify an application name")
	}

	return &config, nil
}
