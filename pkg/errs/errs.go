// Package errs provides the coded error taxonomy from the protocol's error
// handling design: every error surfaced across a component boundary carries a
// stable Code() alongside the usual Go error message, so callers can switch
// on kind without string matching, the same way database/errors.go gives each
// not-found condition its own sentinel.
package errs

import "fmt"

// Code identifies one error kind from the error-handling design.
type Code string

const (
	// Input validation
	CodeMalformedMessage Code = "MALFORMED_MESSAGE"
	CodeUnknownType      Code = "UNKNOWN_TYPE"
	CodeVersionMismatch  Code = "VERSION_MISMATCH"

	// Admission
	CodeDuplicateSubmitter Code = "DUPLICATE_SUBMITTER"
	CodeInvalidSignature   Code = "INVALID_SIGNATURE"
	CodeStructuralInvalid  Code = "STRUCTURAL_INVALID"

	// Ledger
	CodeOverlap                 Code = "OVERLAP"
	CodeInsufficientBalance     Code = "INSUFFICIENT_BALANCE"
	CodeStateTransitionIllegal  Code = "STATE_TRANSITION_ILLEGAL"
	CodeIndexOverflow           Code = "INDEX_OVERFLOW"

	// Chain
	CodeMissingParent Code = "MISSING_PARENT"
	CodeInvalidLink   Code = "INVALID_LINK"
	CodeInvalidBlock  Code = "INVALID_BLOCK"

	// Persistence
	CodeIntegrityChecksumMismatch Code = "INTEGRITY_CHECKSUM_MISMATCH"
	CodeCorruptRecord             Code = "CORRUPT_RECORD"
	CodeDiskFull                  Code = "DISK_FULL"

	// Scheduling
	CodeSendTimeout Code = "SEND_TIMEOUT"
	CodeCancelled   Code = "CANCELLED"

	// Verification (§4.8 taxonomy)
	CodeMissingGenesisValueDistribution Code = "MISSING_GENESIS_VALUE_DISTRIBUTION"
	CodeNoValidTargetValueTransfer      Code = "NO_VALID_TARGET_VALUE_TRANSFER"
	CodeDoubleSpendDetected             Code = "DOUBLE_SPEND_DETECTED"
	CodeMerkleProofVerificationFailed   Code = "MERKLE_PROOF_VERIFICATION_FAILED"
	CodeBloomFilterValidationFailed     Code = "BLOOM_FILTER_VALIDATION_FAILED"
	CodeDataStructureValidationFailed   Code = "DATA_STRUCTURE_VALIDATION_FAILED"
	CodeProofUnitValidationFailed       Code = "PROOF_UNIT_VALIDATION_FAILED"
	CodeVerificationException          Code = "VERIFICATION_EXCEPTION"
)

// CodedError is an error that carries a stable machine-readable Code.
type CodedError interface {
	error
	Code() Code
}

// E is the concrete CodedError implementation used across ezchain.
type E struct {
	code Code
	msg  string
	err  error
}

// New builds a coded error with a message.
func New(code Code, msg string) *E {
	return &E{code: code, msg: msg}
}

// Wrap builds a coded error that wraps an underlying error.
func Wrap(code Code, msg string, err error) *E {
	return &E{code: code, msg: msg, err: err}
}

// Code implements CodedError.
func (e *E) Code() Code { return e.code }

// Error implements error.
func (e *E) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Unwrap supports errors.Is / errors.As against the wrapped cause.
func (e *E) Unwrap() error { return e.err }

// Is reports whether target is an *E with the same Code, so
// errors.Is(err, errs.New(errs.CodeOverlap, "")) works as a kind check.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok {
		return false
	}
	return other.code == e.code
}

// HasCode reports whether err is a CodedError carrying the given code.
func HasCode(err error, code Code) bool {
	ce, ok := err.(CodedError)
	return ok && ce.Code() == code
}
