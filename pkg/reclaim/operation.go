package reclaim

import (
	"github.com/code-payments/reclaim-server/pkg/solana"
)

type OperationKind uint8

const (
	OperationUnknown OperationKind = iota
	OperationDirectClose
	OperationConvertAndClose
	OperationConvertOnly
	OperationSkip
)

func (k OperationKind) String() string {
	switch k {
	case OperationDirectClose:
		return "direct_close"
	case OperationConvertAndClose:
		return "convert_and_close"
	case OperationConvertOnly:
		return "convert_only"
	case OperationSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// PlannedOperation is the set of instructions resolved for one candidate
type PlannedOperation struct {
	Kind      OperationKind
	Candidate *CandidateAccount

	Instructions []solana.Instruction

	// Burned is set when a DirectClose burns a remaining balance first
	Burned bool

	// ConvertedLamports is the quoted output of a planned conversion
	ConvertedLamports uint64

	// EstimatedBytes is the growth of the batch size when the operation was
	// planned against it
	EstimatedBytes int

	// Reason explains a fallback to DirectClose, or a Skip
	Reason error
}

// Closes returns whether the operation closes the account
func (op *PlannedOperation) Closes() bool {
	return op.Kind == OperationDirectClose || op.Kind == OperationConvertAndClose
}

// Converts returns whether the operation converts the balance to SOL
func (op *PlannedOperation) Converts() bool {
	return op.Kind == OperationConvertAndClose || op.Kind == OperationConvertOnly
}

// Value is the lamports the operation is expected to reclaim
func (op *PlannedOperation) Value() uint64 {
	var value uint64
	if op.Closes() {
		value += RentExemptLamports
	}
	if op.Converts() {
		value += op.ConvertedLamports
	}
	return value
}
