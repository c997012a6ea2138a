package engine

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at the boundary
type Kind int

const (
	KindInputValidation Kind = iota
	KindUnknownEntity
	KindUnknownProperty
	KindNotANavigation
	KindPlanComposition
	KindStoreExecution
	KindUnexpected
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindInputValidation:
		return "InputValidation"
	case KindUnknownEntity:
		return "UnknownEntity"
	case KindUnknownProperty:
		return "UnknownProperty"
	case KindNotANavigation:
		return "NotANavigation"
	case KindPlanComposition:
		return "PlanComposition"
	case KindStoreExecution:
		return "StoreExecution"
	default:
		return "Unexpected"
	}
}

// Error is the typed failure returned by Engine.Execute
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindUnexpected {
		return "unexpected error while executing query"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func inputErrorf(format string, args ...interface{}) *Error {
	return newError(KindInputValidation, fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or KindUnexpected if err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
