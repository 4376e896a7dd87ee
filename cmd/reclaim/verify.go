package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/code-payments/reclaim-server/pkg/reclaim"
	"github.com/code-payments/reclaim-server/pkg/solana"
	"github.com/code-payments/reclaim-server/pkg/verify"
)

func newVerifyCommand() *cobra.Command {
	var owner, feeSignature string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "verify <signature>",
		Short: "Verify a reclaim transaction on chain and credit it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sig, err := parseSignature(args[0])
			if err != nil {
				return errors.Wrap(err, "invalid signature")
			}
			ownerKey, err := parsePublicKey(owner)
			if err != nil {
				return errors.Wrap(err, "invalid owner")
			}
			settlement, err := parseSettlement()
			if err != nil {
				return err
			}

			req := &verify.Request{
				Owner:     ownerKey,
				Mode:      settlement.Mode,
				Signature: sig,
			}
			if len(feeSignature) > 0 {
				feeSig, err := parseSignature(feeSignature)
				if err != nil {
					return errors.Wrap(err, "invalid fee signature")
				}
				req.FeeSignature = &feeSig
			}

			credits, err := newCreditStore()
			if err != nil {
				return err
			}
			client := solana.New(solana.ResolveEndpoint(config.SolanaEndpoint))
			verifier := verify.NewVerifier(client, credits, settlement.Destination, verify.WithEnvConfigs())

			if dryRun {
				verification, err := verifier.Verify(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "closed %d account(s), reclaimed %d lamports, transferred %d (required %d)\n",
					verification.ClosedAccounts, verification.ReclaimedLamports, verification.TransferredLamports, verification.RequiredLamports)
				return nil
			}

			record, err := verifier.VerifyAndCredit(ctx, req)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "credit %d: closed %d account(s), transferred %d lamports", record.Id, record.ClosedAccounts, record.TransferredLamports)
			if record.Mode == reclaim.ModeWager {
				fmt.Fprintf(out, ", credited %d lamports", record.CreditedLamports)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "wallet that submitted the transaction")
	cmd.Flags().StringVar(&feeSignature, "fee-signature", "", "separate transaction carrying the destination transfer")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "verify without crediting")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
