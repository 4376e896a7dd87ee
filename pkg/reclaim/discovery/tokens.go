package discovery

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/cache"
	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

// ErrInvalidMint indicates an account isn't a token mint
var ErrInvalidMint = errors.New("account is not a valid token mint")

// MintSource reads mint accounts. solana.Client satisfies it.
type MintSource interface {
	GetAccountInfo(ed25519.PublicKey, solana.Commitment) (solana.AccountInfo, error)
}

// TokenInfo describes mints from chain state, with decimals cached since
// they're immutable
type TokenInfo struct {
	log      *logrus.Entry
	source   MintSource
	decimals *cache.TTLCache[uint8]
}

func NewTokenInfo(source MintSource, store cache.Store, configProvider ConfigProvider) *TokenInfo {
	conf := configProvider()
	return &TokenInfo{
		log:      logrus.StandardLogger().WithField("type", "reclaim/discovery/token_info"),
		source:   source,
		decimals: cache.NewTTLCache[uint8](store, "mint:decimals", conf.decimalsCacheTtl.Get(context.Background())),
	}
}

// GetDecimals returns the number of decimals of mint
func (t *TokenInfo) GetDecimals(ctx context.Context, mint ed25519.PublicKey) (uint8, error) {
	key := base58.Encode(mint)
	log := t.log.WithField("mint", key)

	decimals, ok, err := t.decimals.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("failure getting cached decimals")
	} else if ok {
		return decimals, nil
	}

	info, err := t.source.GetAccountInfo(mint, solana.CommitmentConfirmed)
	if err != nil {
		return 0, errors.Wrapf(err, "error getting mint %s", key)
	}
	if !token.IsTokenProgram(info.Owner) {
		return 0, errors.Wrapf(ErrInvalidMint, "unexpected owner %s", base58.Encode(info.Owner))
	}

	var m token.Mint
	if !m.Unmarshal(info.Data) || !m.IsInitialized {
		return 0, ErrInvalidMint
	}

	if err := t.decimals.Set(ctx, key, m.Decimals); err != nil {
		log.WithError(err).Warn("failure caching decimals")
	}
	return m.Decimals, nil
}

// nativeDecimals is the precision of wrapped SOL, which is known ahead of time
const nativeDecimals = 9

func isNativeMint(mint ed25519.PublicKey) bool {
	return bytes.Equal(mint, token.NativeMint)
}
