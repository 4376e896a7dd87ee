package reclaim

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/code-payments/reclaim-server/pkg/solana"
)

var (
	// ErrSizeExceeded indicates a batch did not fit in a single transaction.
	// The orchestrator shrinks the batch and retries.
	ErrSizeExceeded = errors.New("reclaim: transaction size exceeded")

	// ErrRouteNotFound indicates no conversion route exists for a mint. The
	// account is burned and closed instead.
	ErrRouteNotFound = errors.New("reclaim: conversion route not found")

	// ErrInsufficientLiquidity indicates a conversion isn't worth executing,
	// because its output is negligible or its price impact is too high.
	ErrInsufficientLiquidity = errors.New("reclaim: insufficient liquidity")

	// ErrConversionInstructionInvalid indicates conversion instructions could
	// not be obtained or decoded.
	ErrConversionInstructionInvalid = errors.New("reclaim: conversion instruction invalid")

	// ErrComputeBudgetExceeded indicates a transaction ran out of compute units.
	// It is often transient, so the same batch is retried.
	ErrComputeBudgetExceeded = errors.New("reclaim: compute budget exceeded")

	// ErrSubmissionRejected indicates a definite failure of a batch.
	ErrSubmissionRejected = errors.New("reclaim: submission rejected")

	// ErrConfirmationTimeout indicates a submitted transaction could not be
	// observed on chain, successfully or otherwise.
	ErrConfirmationTimeout = errors.New("reclaim: confirmation timeout")

	// ErrSignerRejected indicates the wallet refused to sign. It ends the
	// session.
	ErrSignerRejected = errors.New("reclaim: signer rejected transaction")

	// ErrSignerUnavailable indicates the wallet is not connected or cannot
	// sign. It ends the session.
	ErrSignerUnavailable = errors.New("reclaim: signer unavailable")
)

var kinds = []error{
	ErrSignerRejected,
	ErrSignerUnavailable,
	ErrSizeExceeded,
	ErrComputeBudgetExceeded,
	ErrConfirmationTimeout,
	ErrSubmissionRejected,
	ErrConversionInstructionInvalid,
	ErrRouteNotFound,
	ErrInsufficientLiquidity,
}

// SizeExceededError is returned when a batch exceeds the transaction size
// limit, either locally or as reported by the network.
type SizeExceededError struct {
	// Size is the serialized size in bytes, if known.
	Size int

	// RecommendedBatchSize is the number of operations that fit, or zero if
	// unknown.
	RecommendedBatchSize int
}

func (e *SizeExceededError) Error() string {
	if e.RecommendedBatchSize > 0 {
		return fmt.Sprintf("%s: %d bytes, recommended batch size %d", ErrSizeExceeded, e.Size, e.RecommendedBatchSize)
	}
	return fmt.Sprintf("%s: %d bytes", ErrSizeExceeded, e.Size)
}

func (e *SizeExceededError) Unwrap() error {
	return ErrSizeExceeded
}

// SubmissionError is a failed batch submission, classified by Kind.
type SubmissionError struct {
	Kind  error
	Cause error

	// Signature is set when the transaction was sent but its outcome could
	// not be observed, so it may still land.
	Signature solana.Signature
}

func newSubmissionError(kind, cause error) *SubmissionError {
	return &SubmissionError{Kind: kind, Cause: cause}
}

func newUnconfirmedError(sig solana.Signature, cause error) *SubmissionError {
	return &SubmissionError{Kind: ErrConfirmationTimeout, Cause: cause, Signature: sig}
}

// unconfirmedSignature returns the signature of a sent transaction whose
// outcome is unknown, if err carries one
func unconfirmedSignature(err error) (solana.Signature, bool) {
	var submissionErr *SubmissionError
	if !errors.As(err, &submissionErr) || submissionErr.Signature == (solana.Signature{}) {
		return solana.Signature{}, false
	}
	return submissionErr.Signature, true
}

func (e *SubmissionError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

func (e *SubmissionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Kind classifies err as one of the package's sentinel errors, or nil if it
// is not one of them.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsSessionFatal returns whether err must end a reclamation session.
func IsSessionFatal(err error) bool {
	return errors.Is(err, ErrSignerRejected) || errors.Is(err, ErrSignerUnavailable)
}
