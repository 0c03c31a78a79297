package errors

import (
	stderrors "errors"
	"fmt"
)

// Reason codes carried by ConflictError and BadRequestError.
const (
	ReasonTableOccupied      = "TABLE_OCCUPIED"
	ReasonProductNotFound    = "PRODUCT_NOT_FOUND"
	ReasonProductUnavailable = "PRODUCT_UNAVAILABLE"
	ReasonUnknownStatus      = "UNKNOWN_STATUS"
)

type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Message string
	Details []ValidationDetail
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(message string, details ...ValidationDetail) *ValidationError {
	return &ValidationError{
		Message: message,
		Details: details,
	}
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// BadRequestError rejects a well-formed request whose content cannot be honored,
// such as an order line for a product the catalog does not know.
type BadRequestError struct {
	Reason  string
	Message string
}

func (e *BadRequestError) Error() string {
	return e.Message
}

func NewBadRequestError(reason, message string) *BadRequestError {
	return &BadRequestError{Reason: reason, Message: message}
}

func IsBadRequestError(err error) (*BadRequestError, bool) {
	var be *BadRequestError
	if stderrors.As(err, &be) {
		return be, true
	}
	return nil, false
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

func IsNotFoundError(err error) (*NotFoundError, bool) {
	var nf *NotFoundError
	if stderrors.As(err, &nf) {
		return nf, true
	}
	return nil, false
}

type ConflictError struct {
	Reason  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func NewConflictError(reason, message string) *ConflictError {
	return &ConflictError{Reason: reason, Message: message}
}

func IsConflictError(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// InvalidStateError reports an operation attempted on an entity whose lifecycle
// state does not allow it, e.g. approving a session that is no longer pending.
type InvalidStateError struct {
	Message string
	Current string
}

func (e *InvalidStateError) Error() string {
	return e.Message
}

func NewInvalidStateError(current, message string) *InvalidStateError {
	return &InvalidStateError{Current: current, Message: message}
}

func IsInvalidStateError(err error) (*InvalidStateError, bool) {
	var ise *InvalidStateError
	if stderrors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}

type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func NewInvalidTransitionError(from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{From: from, To: to}
}

func IsInvalidTransitionError(err error) (*InvalidTransitionError, bool) {
	var ite *InvalidTransitionError
	if stderrors.As(err, &ite) {
		return ite, true
	}
	return nil, false
}

type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{Message: message}
}

func IsUnauthorizedError(err error) (*UnauthorizedError, bool) {
	var ue *UnauthorizedError
	if stderrors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

func NewForbiddenError(message string) *ForbiddenError {
	return &ForbiddenError{Message: message}
}

func IsForbiddenError(err error) (*ForbiddenError, bool) {
	var fe *ForbiddenError
	if stderrors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// DeadlockError is returned once the store keeps aborting a transaction after
// every retry attempt has been spent.
type DeadlockError struct {
	Message string
}

func (e *DeadlockError) Error() string {
	return e.Message
}

func NewDeadlockError(message string) *DeadlockError {
	return &DeadlockError{Message: message}
}

func IsDeadlockError(err error) (*DeadlockError, bool) {
	var de *DeadlockError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{
		Message: message,
		Cause:   cause,
	}
}
