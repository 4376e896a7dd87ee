package reclaim

import (
	"bytes"
	"context"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/reclaim-server/pkg/jupiter"
	"github.com/code-payments/reclaim-server/pkg/metrics"
	"github.com/code-payments/reclaim-server/pkg/solana"
	compute_budget "github.com/code-payments/reclaim-server/pkg/solana/computebudget"
	"github.com/code-payments/reclaim-server/pkg/solana/token"
)

const planMetricsStructName = "reclaim.planner"

var (
	errFrozen                  = errors.New("account is frozen")
	errWrappedSol              = errors.New("wrapped sol accounts with a balance are not reclaimed")
	errUnsupportedTokenProgram = errors.New("unsupported token program")
	errConversionTooComplex    = errors.New("batch too large to add a conversion")
	errNotAssociatedAccount    = errors.New("conversions require the associated token account")
	errConversionDoesNotFit    = errors.New("conversion does not fit in the batch")
)

// Planner decides, per candidate, how an account is reclaimed
type Planner struct {
	log    *logrus.Entry
	conf   *conf
	quoter Quoter
	swaps  SwapInstructionProvider
}

func NewPlanner(quoter Quoter, swaps SwapInstructionProvider, configProvider ConfigProvider) *Planner {
	return &Planner{
		log:    logrus.StandardLogger().WithField("type", "reclaim/planner"),
		conf:   configProvider(),
		quoter: quoter,
		swaps:  swaps,
	}
}

// Plan resolves the operation for candidate given the batch being filled.
// Missing routes and conversion failures fall back to burning the balance
// and closing the account. An error is only returned when ctx is done.
func (p *Planner) Plan(ctx context.Context, candidate *CandidateAccount, draft *Batch) (*PlannedOperation, error) {
	tracer := metrics.TraceMethodCall(ctx, planMetricsStructName, "Plan")
	defer tracer.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := p.log.WithFields(logrus.Fields{
		"account": candidate.String(),
		"mint":    base58.Encode(candidate.Mint),
		"amount":  candidate.Amount,
	})

	if candidate.Frozen {
		return p.skip(candidate, errFrozen), nil
	}
	if !token.IsTokenProgram(candidate.TokenProgram) {
		return p.skip(candidate, errUnsupportedTokenProgram), nil
	}
	if !candidate.IsEmpty() && bytes.Equal(candidate.Mint, token.NativeMint) {
		return p.skip(candidate, errWrappedSol), nil
	}

	payer := draft.Payer()
	closeIxn := token.CloseAccount(candidate.TokenProgram, candidate.Address, payer, payer)

	if candidate.IsEmpty() {
		return p.finalize(draft, &PlannedOperation{
			Kind:         OperationDirectClose,
			Candidate:    candidate,
			Instructions: []solana.Instruction{closeIxn},
		}), nil
	}

	conversion, quotedLamports, reason := p.planConversion(ctx, candidate, draft)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if reason != nil {
		log.WithError(reason).Debug("burning balance instead of converting")
		return p.burnAndClose(draft, candidate, closeIxn, reason), nil
	}

	if !draft.Fits(conversion...) {
		return p.burnAndClose(draft, candidate, closeIxn, errConversionDoesNotFit), nil
	}

	withClose := append(append([]solana.Instruction{}, conversion...), closeIxn)
	if draft.Fits(withClose...) {
		return p.finalize(draft, &PlannedOperation{
			Kind:              OperationConvertAndClose,
			Candidate:         candidate,
			Instructions:      withClose,
			ConvertedLamports: quotedLamports,
		}), nil
	}

	log.Info("close does not fit after conversion, account will be left open")
	return p.finalize(draft, &PlannedOperation{
		Kind:              OperationConvertOnly,
		Candidate:         candidate,
		Instructions:      conversion,
		ConvertedLamports: quotedLamports,
		Reason:            ErrSizeExceeded,
	}), nil
}

// planConversion returns the instructions converting the candidate's balance
// to SOL and the quoted output, or the reason no conversion is possible.
func (p *Planner) planConversion(ctx context.Context, candidate *CandidateAccount, draft *Batch) ([]solana.Instruction, uint64, error) {
	maxSize := p.conf.complexityCutoff.Get(ctx) * solana.MaxTransactionSize
	if float64(draft.Size()) > maxSize {
		return nil, 0, errConversionTooComplex
	}

	// Swaps draw from the wallet's associated account for the input mint
	isAta, err := token.IsAssociatedAccount(candidate.Address, draft.Payer(), candidate.Mint, candidate.TokenProgram)
	if err != nil || !isAta {
		return nil, 0, errNotAssociatedAccount
	}

	floor := p.conf.minConversionLamports.Get(ctx)
	if candidate.QuotedLamports != nil {
		if !candidate.HasRoute {
			return nil, 0, ErrRouteNotFound
		}
		if *candidate.QuotedLamports < floor {
			return nil, 0, errors.Wrapf(ErrInsufficientLiquidity, "quoted %d lamports", *candidate.QuotedLamports)
		}
	}

	quote, err := p.quoter.GetQuote(ctx, &jupiter.QuoteRequest{
		InputMint:           base58.Encode(candidate.Mint),
		OutputMint:          base58.Encode(token.NativeMint),
		Amount:              candidate.Amount,
		SlippageBps:         uint32(p.conf.slippageBps.Get(ctx)),
		MaxAccounts:         uint8(p.conf.maxSwapAccounts.Get(ctx)),
		AsLegacyTransaction: true,
	})
	if errors.Is(err, jupiter.ErrNoRoute) {
		return nil, 0, ErrRouteNotFound
	} else if err != nil {
		return nil, 0, errors.Wrap(ErrRouteNotFound, err.Error())
	}

	if quote.OutAmount < floor {
		return nil, 0, errors.Wrapf(ErrInsufficientLiquidity, "quoted %d lamports", quote.OutAmount)
	}
	if quote.PriceImpactPct >= p.conf.maxPriceImpact.Get(ctx) {
		return nil, 0, errors.Wrapf(ErrInsufficientLiquidity, "price impact %f", quote.PriceImpactPct)
	}

	swap, err := p.swaps.GetSwapInstructions(ctx, &jupiter.SwapInstructionsRequest{
		Quote:            quote,
		UserPublicKey:    base58.Encode(draft.Payer()),
		WrapAndUnwrapSol: true,
	})
	if err != nil {
		return nil, 0, errors.Wrap(ErrConversionInstructionInvalid, err.Error())
	}
	if len(swap.SwapInstruction.Program) == 0 {
		return nil, 0, errors.Wrap(ErrConversionInstructionInvalid, "swap instruction missing")
	}

	// The batch carries its own compute budget framing
	var conversion []solana.Instruction
	for _, ixn := range swap.SetupInstructions {
		if !compute_budget.IsComputeBudgetInstruction(ixn) {
			conversion = append(conversion, ixn)
		}
	}
	conversion = append(conversion, swap.SwapInstruction)
	if swap.CleanupInstruction != nil {
		conversion = append(conversion, *swap.CleanupInstruction)
	}

	return conversion, quote.OutAmount, nil
}

func (p *Planner) burnAndClose(draft *Batch, candidate *CandidateAccount, closeIxn solana.Instruction, reason error) *PlannedOperation {
	payer := draft.Payer()
	return p.finalize(draft, &PlannedOperation{
		Kind:      OperationDirectClose,
		Candidate: candidate,
		Instructions: []solana.Instruction{
			token.Burn(candidate.TokenProgram, candidate.Address, candidate.Mint, payer, candidate.Amount),
			closeIxn,
		},
		Burned: true,
		Reason: reason,
	})
}

func (p *Planner) skip(candidate *CandidateAccount, reason error) *PlannedOperation {
	return &PlannedOperation{
		Kind:      OperationSkip,
		Candidate: candidate,
		Reason:    reason,
	}
}

func (p *Planner) finalize(draft *Batch, op *PlannedOperation) *PlannedOperation {
	op.EstimatedBytes = draft.SizeWith(op.Instructions...) - draft.Size()
	return op
}
