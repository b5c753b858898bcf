package domain

import (
	"errors"
	"strings"
)

// Kind classifies a domain failure for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindValidation
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is the only error type the auction rules produce. Two Errors match
// under errors.Is when kind and reason are equal; Fields is informational.
type Error struct {
	Kind   Kind
	Reason string
	Fields []string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Fields, ", ")
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Reason == e.Reason
}

var (
	ErrNotFound = &Error{Kind: KindNotFound, Reason: "auction not found"}

	ErrInvalidFields     = &Error{Kind: KindValidation, Reason: "invalid fields"}
	ErrNumberOutOfRange  = &Error{Kind: KindValidation, Reason: "number out of range"}
	ErrAmountInvalid     = &Error{Kind: KindValidation, Reason: "amount invalid"}
	ErrBelowMinimum      = &Error{Kind: KindValidation, Reason: "below minimum"}
	ErrWinnerOutOfRange  = &Error{Kind: KindValidation, Reason: "winner number out of range"}
	ErrAuctionFinished   = &Error{Kind: KindConflict, Reason: "auction finished"}
	ErrNumberUnavailable = &Error{Kind: KindConflict, Reason: "number unavailable"}
	ErrNotNewMaximum     = &Error{Kind: KindConflict, Reason: "not a new maximum"}
	ErrAlreadyFinished   = &Error{Kind: KindConflict, Reason: "already finished"}
	ErrWinnerNotReserved = &Error{Kind: KindConflict, Reason: "winner number not reserved"}
	ErrFinished          = &Error{Kind: KindConflict, Reason: "finished"}
)

// InvalidFields builds a validation error naming the offending fields.
func InvalidFields(fields ...string) *Error {
	return &Error{Kind: KindValidation, Reason: ErrInvalidFields.Reason, Fields: fields}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
