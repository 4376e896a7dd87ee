package reclaim

import (
	"context"
	"crypto/ed25519"

	"github.com/code-payments/reclaim-server/pkg/jupiter"
	"github.com/code-payments/reclaim-server/pkg/solana"
)

// Connection is the subset of the Solana RPC API a session reads from.
// solana.Client satisfies it.
type Connection interface {
	GetMultipleAccounts([]ed25519.PublicKey, solana.Commitment) ([]*solana.AccountInfo, error)
	GetLatestBlockhashAndHeight(solana.Commitment) (solana.Blockhash, uint64, error)
	GetBlockHeight(solana.Commitment) (uint64, error)
	GetSignatureStatuses([]solana.Signature) ([]*solana.SignatureStatus, error)
}

// Wallet is the signing capability of the wallet holder. Implementations
// wrap refusals with ErrSignerRejected and connectivity problems with
// ErrSignerUnavailable. A definite on-chain or preflight failure is returned
// as a *solana.TransactionError, and a node's size rejection may be returned
// as a *SizeExceededError.
type Wallet interface {
	Connection() Connection
	PublicKey() ed25519.PublicKey
	IsConnected() bool
	SignAndSendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error)
}

// Quoter prices a conversion. jupiter.Client and jupiter.CachedQuoter
// satisfy it. A missing route is reported as jupiter.ErrNoRoute.
type Quoter interface {
	GetQuote(ctx context.Context, req *jupiter.QuoteRequest) (*jupiter.Quote, error)
}

// SwapInstructionProvider resolves a quote into executable instructions.
// jupiter.Client satisfies it.
type SwapInstructionProvider interface {
	GetSwapInstructions(ctx context.Context, req *jupiter.SwapInstructionsRequest) (*jupiter.SwapInstructions, error)
}

// TokenInfoProvider describes mints
type TokenInfoProvider interface {
	GetDecimals(ctx context.Context, mint ed25519.PublicKey) (uint8, error)
}
