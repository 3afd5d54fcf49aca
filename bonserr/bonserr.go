// Package bonserr implements the opaque error taxonomy of spec §7. Codes
// are locale-independent; the surrounding collaborator (httpapi) maps them
// to status codes and localizes messages. It replaces the teacher's
// convention of returning ad-hoc http.Error strings (e.g. pay/pay.go's
// "Amount must be positive") with a typed, inspectable error value.
package bonserr

import "fmt"

// Code is one of the taxonomy entries from spec §7.
type Code string

const (
	// Input validation
	InvalidInput              Code = "INVALID_INPUT"
	AmountMustBePositive      Code = "AMOUNT_MUST_BE_POSITIVE"
	ContributionRequired      Code = "CONTRIBUTION_REQUIRED"
	TotalWeightMustBePositive Code = "TOTAL_WEIGHT_MUST_BE_POSITIVE"
	InvalidPayer              Code = "INVALID_PAYER"
	InvalidReceiver           Code = "INVALID_RECEIVER"
	InvalidDateFormat         Code = "INVALID_DATE_FORMAT"
	InvalidImageFormat        Code = "INVALID_IMAGE_FORMAT"
	ImageTooLarge             Code = "IMAGE_TOO_LARGE"
	ImageEmpty                Code = "IMAGE_EMPTY"
	InvalidBase64Image        Code = "INVALID_BASE64_IMAGE"

	// Referential
	ProjectNotFound     Code = "PROJECT_NOT_FOUND"
	PaymentNotFound     Code = "PAYMENT_NOT_FOUND"
	ParticipantNotFound Code = "PARTICIPANT_NOT_FOUND"

	// Domain
	InvalidSplit                 Code = "INVALID_SPLIT"
	PoolWarningOnlyForPools      Code = "POOL_WARNING_ONLY_FOR_POOLS"
	LinkedUserCannotBePool       Code = "LINKED_USER_CANNOT_BE_POOL"
	InvalidWarningHorizon        Code = "INVALID_WARNING_HORIZON"
	PayerExpectationRequiresPool Code = "PAYER_EXPECTATION_REQUIRES_POOL"

	// Integrity
	ChainBroken Code = "CHAIN_BROKEN"

	// Storage
	DatabaseError Code = "DATABASE_ERROR"
	InternalError Code = "INTERNAL_ERROR"
)

// Error is the typed failure every core operation returns in place of a
// bare error, so callers (httpapi, cmd) can switch on Code without string
// matching.
type Error struct {
	Code    Code
	Message string
	Err     error // wrapped cause, if any; never part of Code's identity
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error carrying an underlying cause, for storage/
// internal failures where the cause should remain inspectable via
// errors.Unwrap but never reach the caller as raw text.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Err: err}
}

// Is allows errors.Is(err, bonserr.New(SomeCode, "")) to match purely on
// Code, ignoring Message/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
