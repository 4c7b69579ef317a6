package ledger

import (
	"errors"
	"fmt"
)

// Code is the ledger engine's outcome for an accepted transaction.
type Code string

const (
	CodeSuccess           Code = "SUCCESS"
	CodeTooEarly          Code = "TOO_EARLY"
	CodeNoEntry           Code = "NO_ENTRY"
	CodeNoPermission      Code = "NO_PERMISSION"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeRejected          Code = "REJECTED"
)

func (c Code) Success() bool { return c == CodeSuccess }

// Retryable reports whether resubmitting the identical transaction later can
// succeed. Only time-gated rejections qualify; everything else needs fresh
// parameters or is terminal.
func (c Code) Retryable() bool { return c == CodeTooEarly }

// SubmitError is a transport or validation failure before the ledger accepted
// the transaction. Safe to retry with the same parameters.
type SubmitError struct {
	Op  string
	Err error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("ledger submit %s: %v", e.Op, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// ExecutionError means the ledger accepted the transaction but its outcome
// code signals failure. Not retryable verbatim.
type ExecutionError struct {
	TxHash string
	Code   Code
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ledger rejected tx %s: %s", e.TxHash, e.Code)
}

// ErrPollBudgetExhausted means the polling budget ran out before the
// transaction validated. The transaction may still confirm later; callers
// report pending, never failed.
var ErrPollBudgetExhausted = errors.New("polling budget exhausted before validation")

// SubmitResult is the local acknowledgment of a submitted transaction.
type SubmitResult struct {
	TxHash   string
	Code     Code
	Sequence uint32
}

// TxStatus is the result of a finality query for one transaction.
type TxStatus struct {
	TxHash      string
	Validated   bool
	Code        Code
	LedgerIndex uint64
	CloseTime   Time
}

// Object is a ledger-held object returned by QueryObjects.
type Object struct {
	Kind       string
	ID         string
	Issuer     string
	Subject    string
	Type       string
	Accepted   bool
	Expiration Time
	Metadata   map[string]string
}

const (
	ObjectKindCredential = "credential"
	ObjectKindEscrow     = "escrow"
	ObjectKindToken      = "token"
)
