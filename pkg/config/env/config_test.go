package env

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/code-payments/reclaim-server/pkg/config"
)

func TestConfigDoesntExist(t *testing.T) {
	const env = "ENV_CONFIG_TEST_VAR"
	os.Setenv(env, "default")

	v, err := NewConfig(env).Get(context.Background())
	assert.Equal(t, []byte("default"), v)
	assert.Nil(t, err)

	os.Unsetenv(env)

	v, err = NewConfig(env).Get(context.Background())
	assert.Nil(t, v)
	assert.Equal(t, config.ErrNoValue, err)

	os.Setenv(env, "   ")
	defer os.Unsetenv(env)

	_, err = NewConfig(env).Get(context.Background())
	assert.Equal(t, config.ErrNoValue, err)
}

func TestTypedConfigFromEnv(t *testing.T) {
	const env = "RECLAIM_TEST_CONFIRMATION_TIMEOUT"
	os.Setenv(env, " 45s\n")
	defer os.Unsetenv(env)

	assert.Equal(t, 45*time.Second, NewDurationConfig(env, time.Minute).Get(context.Background()))
	assert.Equal(t, uint64(15), NewUint64Config("RECLAIM_TEST_UNSET_BATCH_SIZE", 15).Get(context.Background()))

	// Lower case keys resolve to the upper case variable
	assert.Equal(t, 45*time.Second, NewDurationConfig("reclaim_test_confirmation_timeout", time.Minute).Get(context.Background()))
}
