package execution

import (
	"errors"
	"fmt"
)

// ErrBlockhashExpired is returned when the block height passes the plan's
// last valid height before the transaction is seen.
var ErrBlockhashExpired = errors.New("blockhash expired before confirmation")

// ErrConfirmationUnknown is returned when the block height stays
// unreadable long enough that expiry can no longer be judged.
var ErrConfirmationUnknown = errors.New("confirmation outcome unknown")

// ErrSignerNotRequired is returned when the signer is not among the
// transaction's required signers.
var ErrSignerNotRequired = errors.New("signer is not a required signer of the transaction")

// SubmissionError is a transaction rejected before it reached the chain.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission rejected: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// OnChainFailure is a transaction that landed but whose execution failed.
type OnChainFailure struct {
	Signature string
	Detail    string
	Logs      []string
}

func (e *OnChainFailure) Error() string {
	return fmt.Sprintf("transaction %s failed on-chain: %s", e.Signature, e.Detail)
}
