package discovery

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/metrics"
	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

const metricsStructName = "reclaim.discovery"

// TokenAccountSource lists token accounts by owner. solana.Client satisfies it.
type TokenAccountSource interface {
	GetTokenAccountsByOwner(owner, program ed25519.PublicKey) ([]solana.KeyedAccountInfo, error)
}

// Finder discovers the reclamation candidates of a wallet
type Finder struct {
	log    *logrus.Entry
	conf   *conf
	source TokenAccountSource
	tokens reclaim.TokenInfoProvider
}

func NewFinder(source TokenAccountSource, tokens reclaim.TokenInfoProvider, configProvider ConfigProvider) *Finder {
	return &Finder{
		log:    logrus.StandardLogger().WithField("type", "reclaim/discovery/finder"),
		conf:   configProvider(),
		source: source,
		tokens: tokens,
	}
}

// FindCandidates returns every token account owned by owner under both token
// programs. Wrapped SOL accounts holding a balance are excluded.
func (f *Finder) FindCandidates(ctx context.Context, owner ed25519.PublicKey) ([]*reclaim.CandidateAccount, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "FindCandidates")
	defer tracer.End()

	ctx, cancel := context.WithTimeout(ctx, f.conf.timeout.Get(ctx))
	defer cancel()

	log := f.log.WithField("owner", base58.Encode(owner))

	var candidates []*reclaim.CandidateAccount
	for _, program := range []ed25519.PublicKey{token.ProgramKey, token.Program2022Key} {
		accounts, err := f.getTokenAccounts(ctx, owner, program)
		if err != nil {
			tracer.OnError(err)
			return nil, err
		}

		for _, keyed := range accounts {
			accountLog := log.WithField("account", base58.Encode(keyed.PublicKey))

			var account token.Account
			if !account.Unmarshal(keyed.Data) {
				accountLog.Warn("ignoring account with unexpected data")
				continue
			}
			if !bytes.Equal(account.Owner, owner) {
				continue
			}

			var decimals uint8
			switch {
			case isNativeMint(account.Mint) && account.Amount > 0:
				continue
			case isNativeMint(account.Mint):
				decimals = nativeDecimals
			case account.Amount > 0:
				// Decimals only affect display, so a failed lookup isn't fatal
				decimals, err = f.tokens.GetDecimals(ctx, account.Mint)
				if err != nil {
					accountLog.WithError(err).Warn("failure getting mint decimals")
				}
			}

			candidates = append(candidates, reclaim.NewCandidateAccount(keyed.PublicKey, program, &account, decimals))
		}
	}

	log.WithField("candidates", len(candidates)).Debug("discovered candidates")
	return candidates, nil
}

func (f *Finder) getTokenAccounts(ctx context.Context, owner, program ed25519.PublicKey) ([]solana.KeyedAccountInfo, error) {
	type result struct {
		accounts []solana.KeyedAccountInfo
		err      error
	}

	resultCh := make(chan result, 1)
	go func() {
		accounts, err := f.source.GetTokenAccountsByOwner(owner, program)
		resultCh <- result{accounts, err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "timed out listing accounts for program %s", base58.Encode(program))
	case r := <-resultCh:
		if r.err != nil {
			return nil, errors.Wrapf(r.err, "error listing accounts for program %s", base58.Encode(program))
		}
		return r.accounts, nil
	}
}
