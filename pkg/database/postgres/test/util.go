package test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v4/stdlib" //nolint:revive

	"github.com/code-payments/reclaim-server/pkg/retry"
	"github.com/code-payments/reclaim-server/pkg/retry/backoff"
)

const (
	image         = "postgres"
	imageTag      = "15-alpine"
	containerTTL  = 2 * time.Minute
	readyAttempts = 50
	readyInterval = 500 * time.Millisecond
	containerPort = "5432/tcp"
	testUser      = "localtest"
	testPassword  = "localpassword"
	testDatabase  = "testdb"
)

// StartPostgresDB runs a throwaway postgres container, waits for it to accept
// connections and applies the schema statements in order. closeFunc purges
// the container, and is safe to call when an error is returned.
func StartPostgresDB(pool *dockertest.Pool, schema ...string) (db *sql.DB, closeFunc func(), err error) {
	log := logrus.StandardLogger().WithField("type", "postgres/test")
	closeFunc = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: image,
		Tag:        imageTag,
		Env: []string{
			"listen_addresses = '*'",
			"POSTGRES_USER=" + testUser,
			"POSTGRES_PASSWORD=" + testPassword,
			"POSTGRES_DB=" + testDatabase,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, closeFunc, errors.Wrap(err, "failed to start postgres container")
	}

	closeFunc = func() {
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Warn("failed to purge postgres container")
		}
	}

	// Expire() never returns an error
	_ = resource.Expire(uint(containerTTL.Seconds()))

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		testUser,
		testPassword,
		resource.GetHostPort(containerPort),
		testDatabase,
	)

	_, err = retry.Retry(
		func() error {
			db, err = sql.Open("pgx", dsn)
			if err != nil {
				return err
			}
			return db.Ping()
		},
		retry.Limit(readyAttempts),
		retry.Backoff(backoff.Constant(readyInterval), readyInterval),
	)
	if err != nil {
		closeFunc()
		return nil, func() {}, errors.Wrap(err, "timed out waiting for postgres container")
	}

	for _, statement := range schema {
		if _, err := db.Exec(statement); err != nil {
			db.Close()
			closeFunc()
			return nil, func() {}, errors.Wrap(err, "failed to apply schema")
		}
	}

	return db, closeFunc, nil
}
