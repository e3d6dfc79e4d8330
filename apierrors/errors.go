// Package apierrors defines the request-scoped outcomes shared between the
// core services and any transport exposing them. All of them are
// recoverable; none indicates a system fault.
package apierrors

import (
	"errors"
	"fmt"

	"github.com/SukhnandanMalhotra/addons-server/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrTermsNotAccepted   = errors.New("terms of use have not been accepted")
	ErrForbiddenAnonymous = errors.New("anonymous submissions cannot be used")
	ErrForbiddenNotOwner  = errors.New("submission belongs to another user")
	ErrAlreadyConsumed    = errors.New("upload has already been used")
	ErrConflict           = errors.New("concurrent modification detected")
)

// ValidationError is a field-scoped rejection, used both for intake policy
// violations and publication state machine guard violations.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidSubmissionError reports a consume attempt against an upload that
// is not in the valid state. Report carries the stored validation report
// when the upload failed validation; it is nil while validation is still
// pending.
type InvalidSubmissionError struct {
	Report *domain.ValidationReport
}

func (e *InvalidSubmissionError) Error() string {
	if e.Report == nil {
		return "upload not yet validated"
	}
	return "upload not valid"
}
