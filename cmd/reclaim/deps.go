package main

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/reclaim-server/pkg/cache"
	"github.com/code-payments/reclaim-server/pkg/cache/redis"
	"github.com/code-payments/reclaim-server/pkg/data/credit"
	credit_memory "github.com/code-payments/reclaim-server/pkg/data/credit/memory"
	credit_postgres "github.com/code-payments/reclaim-server/pkg/data/credit/postgres"
	pg "github.com/code-payments/reclaim-server/pkg/database/postgres"
	"github.com/code-payments/reclaim-server/pkg/jupiter"
	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/reclaim/discovery"
	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/wallet"
)

type reclaimDeps struct {
	client       solana.Client
	wallet       *wallet.Keypair
	settlement   reclaim.Settlement
	finder       *discovery.Finder
	orchestrator *reclaim.Orchestrator
}

func newReclaimDeps(ctx context.Context) (*reclaimDeps, error) {
	key, err := wallet.LoadPrivateKey(config.KeypairPath)
	if err != nil {
		return nil, errors.Wrap(err, "error loading keypair")
	}

	settlement, err := parseSettlement()
	if err != nil {
		return nil, err
	}

	store, err := newCacheStore(ctx)
	if err != nil {
		return nil, err
	}

	client := solana.New(solana.ResolveEndpoint(config.SolanaEndpoint))

	jupiterClient := jupiter.NewClient(config.JupiterEndpoint, jupiter.WithEnvConfigs())
	quoter := jupiter.NewCachedQuoter(jupiterClient, store)

	tokens := discovery.NewTokenInfo(client, store, discovery.WithEnvConfigs())

	planner := reclaim.NewPlanner(quoter, jupiterClient, reclaim.WithEnvConfigs())
	submitter := reclaim.NewSubmitter(reclaim.WithEnvConfigs())

	return &reclaimDeps{
		client:       client,
		wallet:       wallet.NewKeypair(client, key),
		settlement:   settlement,
		finder:       discovery.NewFinder(client, tokens, discovery.WithEnvConfigs()),
		orchestrator: reclaim.NewOrchestrator(planner, submitter, reclaim.WithEnvConfigs()),
	}, nil
}

func parseSettlement() (reclaim.Settlement, error) {
	mode, err := reclaim.ParseMode(config.Mode)
	if err != nil {
		return reclaim.Settlement{}, err
	}

	destination, err := parsePublicKey(config.Destination)
	if err != nil {
		return reclaim.Settlement{}, errors.Wrap(err, "invalid destination")
	}

	return reclaim.Settlement{
		Mode:        mode,
		Destination: destination,
	}, nil
}

func newCacheStore(ctx context.Context) (cache.Store, error) {
	if len(config.RedisAddress) > 0 {
		return redis.NewFromAddress(ctx, config.RedisAddress, config.RedisPassword, config.RedisDb)
	}
	return cache.NewMemoryStore(config.MemoryCacheBudget()), nil
}

func newCreditStore() (credit.Store, error) {
	pgConfig := config.PostgresConfig()
	if pgConfig == nil {
		return credit_memory.New(), nil
	}

	db, err := pg.Open(pgConfig)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to database")
	}
	return credit_postgres.New(db), nil
}

func parsePublicKey(value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid public key length: %d", len(decoded))
	}
	return decoded, nil
}

func parseSignature(value string) (solana.Signature, error) {
	var sig solana.Signature

	decoded, err := base58.Decode(value)
	if err != nil {
		return sig, err
	}
	if len(decoded) != len(sig) {
		return sig, errors.Errorf("invalid signature length: %d", len(decoded))
	}

	copy(sig[:], decoded)
	return sig, nil
}
