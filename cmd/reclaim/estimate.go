package main

import (
	"fmt"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/code-payments/reclaim-server/pkg/solana"
)

func newEstimateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate",
		Short: "Plan batches for the wallet's token accounts without submitting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			deps, err := newReclaimDeps(ctx)
			if err != nil {
				return err
			}

			candidates, err := deps.finder.FindCandidates(ctx, deps.wallet.PublicKey())
			if err != nil {
				return errors.Wrap(err, "error finding candidates")
			}

			batches, skipped, err := deps.orchestrator.Estimate(ctx, deps.wallet.PublicKey(), deps.settlement, candidates)
			if err != nil {
				return err
			}

			var value, transfer uint64
			for i, batch := range batches {
				value += batch.Value()
				transfer += batch.TransferAmount()

				fmt.Fprintf(out, "batch %d: %d operation(s), %d/%d bytes, %d lamports, %d transferred\n",
					i+1, batch.Len(), batch.Size(), solana.MaxTransactionSize, batch.Value(), batch.TransferAmount())
				for _, op := range batch.Operations() {
					fmt.Fprintf(out, "  %-16s %s (%d bytes)\n", op.Kind.String(), op.Candidate.String(), op.EstimatedBytes)
				}
			}
			for _, s := range skipped {
				fmt.Fprintf(out, "skipped %s: %v\n", base58.Encode(s.Address), s.Reason)
			}
			fmt.Fprintf(out, "%d candidate(s), %d batch(es), %d lamports reclaimable, %d transferred\n",
				len(candidates), len(batches), value, transfer)

			return nil
		},
	}
}
