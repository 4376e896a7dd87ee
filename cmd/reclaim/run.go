package main

import (
	"fmt"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/verify"
)

func newRunCommand() *cobra.Command {
	var credit bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover and reclaim the wallet's token accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			deps, err := newReclaimDeps(ctx)
			if err != nil {
				return err
			}

			candidates, err := deps.finder.FindCandidates(ctx, deps.wallet.PublicKey())
			if err != nil {
				return errors.Wrap(err, "error finding candidates")
			}

			result, runErr := deps.orchestrator.Run(ctx, deps.wallet, deps.settlement, candidates)
			printSessionResult(cmd, result)

			if credit && len(result.Signatures) > 0 {
				credits, err := newCreditStore()
				if err != nil {
					return err
				}
				verifier := verify.NewVerifier(deps.client, credits, deps.settlement.Destination, verify.WithEnvConfigs())

				for _, sig := range result.Signatures {
					record, err := verifier.VerifyAndCredit(ctx, &verify.Request{
						Owner:     deps.wallet.PublicKey(),
						Mode:      deps.settlement.Mode,
						Signature: sig,
					})
					if err != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s: verification failed: %v\n", sig.String(), err)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: credited %d lamports\n", sig.String(), record.CreditedLamports)
				}
			}

			return runErr
		},
	}
	cmd.Flags().BoolVar(&credit, "credit", false, "verify and credit each confirmed transaction after the session")

	return cmd
}

func printSessionResult(cmd *cobra.Command, result *reclaim.SessionResult) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s (%s)\n", result.Message, result.Status.String())
	fmt.Fprintf(out, "session:      %s\n", result.Id.String())
	fmt.Fprintf(out, "closed:       %d\n", result.ClosedCount)
	fmt.Fprintf(out, "reclaimed:    %d lamports\n", result.ReclaimedLamports)
	fmt.Fprintf(out, "transferred:  %d lamports\n", result.TransferredLamports)
	fmt.Fprintf(out, "net:          %d lamports\n", result.NetLamports)

	for _, sig := range result.Signatures {
		fmt.Fprintf(out, "signature:    %s\n", sig.String())
	}
	for _, sig := range result.UnconfirmedSignatures {
		fmt.Fprintf(out, "unconfirmed:  %s\n", sig.String())
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(out, "skipped:      %s (%v)\n", base58.Encode(skipped.Address), skipped.Reason)
	}
}
