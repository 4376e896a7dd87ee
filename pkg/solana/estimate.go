package solana

import (
	"crypto/ed25519"

	"github.com/code-payments/reclaim-server/pkg/solana/shortvec"
)

const (
	signatureSize = ed25519.SignatureSize
	publicKeySize = ed25519.PublicKeySize
	blockhashSize = len(Blockhash{})
	headerSize    = 3
)

// EstimateTransactionSize returns the exact serialized size, in bytes, of the
// signed legacy transaction NewTransaction would produce for the payer and
// instructions. Nothing is serialized.
func EstimateTransactionSize(payer ed25519.PublicKey, instructions ...Instruction) int {
	accounts := compileAccounts(payer, instructions)

	var numSigners int
	for _, account := range accounts {
		if account.IsSigner {
			numSigners++
		}
	}

	size := shortvec.EncodedLen(numSigners) + numSigners*signatureSize
	size += headerSize
	size += shortvec.EncodedLen(len(accounts)) + len(accounts)*publicKeySize
	size += blockhashSize
	size += shortvec.EncodedLen(len(instructions))
	for _, ixn := range instructions {
		size += InstructionSize(ixn)
	}
	return size
}

// InstructionSize returns the compiled size of a single instruction, excluding
// the accounts it contributes to the transaction's account list.
func InstructionSize(ixn Instruction) int {
	return 1 +
		shortvec.EncodedLen(len(ixn.Accounts)) + len(ixn.Accounts) +
		shortvec.EncodedLen(len(ixn.Data)) + len(ixn.Data)
}

// FitsInTransaction returns whether the instructions fit within
// MaxTransactionSize when paid for by payer.
func FitsInTransaction(payer ed25519.PublicKey, instructions ...Instruction) bool {
	return EstimateTransactionSize(payer, instructions...) <= MaxTransactionSize
}
