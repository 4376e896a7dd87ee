package jupiter

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/cache"
)

type cachedQuote struct {
	Quote   *Quote `json:"quote,omitempty"`
	NoRoute bool   `json:"noRoute,omitempty"`
}

// CachedQuoter serves repeated quote requests from a short lived cache. Missing
// routes are cached as well, since they're the common case for dust tokens.
type CachedQuoter struct {
	log    *logrus.Entry
	client *Client
	quotes *cache.TTLCache[*cachedQuote]
}

// NewCachedQuoter wraps client with a quote cache over store
func NewCachedQuoter(client *Client, store cache.Store) *CachedQuoter {
	return &CachedQuoter{
		log:    logrus.StandardLogger().WithField("type", "jupiter/cached_quoter"),
		client: client,
		quotes: cache.NewTTLCache[*cachedQuote](store, "jupiter:quote", client.conf.quoteCacheTtl.Get(context.Background())),
	}
}

// GetQuote returns a cached quote for an identical request, or fetches and
// caches a new one
func (q *CachedQuoter) GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	log := q.log.WithField("input_mint", req.InputMint)
	key := quoteCacheKey(req)

	cached, ok, err := q.quotes.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("failure getting cached quote")
	} else if ok {
		if cached.NoRoute {
			return nil, ErrNoRoute
		}
		if cached.Quote != nil {
			return cached.Quote, nil
		}
	}

	quote, err := q.client.GetQuote(ctx, req)
	switch {
	case errors.Is(err, ErrNoRoute):
		cached = &cachedQuote{NoRoute: true}
	case err != nil:
		return nil, err
	default:
		cached = &cachedQuote{Quote: quote}
	}

	if err := q.quotes.Set(ctx, key, cached); err != nil {
		log.WithError(err).Warn("failure caching quote")
	}

	if cached.NoRoute {
		return nil, ErrNoRoute
	}
	return quote, nil
}

func quoteCacheKey(req *QuoteRequest) string {
	return fmt.Sprintf(
		"%s:%s:%d:%d:%v:%d:%v",
		req.InputMint,
		req.OutputMint,
		req.Amount,
		req.SlippageBps,
		req.OnlyDirectRoutes,
		req.MaxAccounts,
		req.AsLegacyTransaction,
	)
}
