package cerr

import (
	"context"
	"errors"
	"fmt"
)

type Error struct {
	Code Code
	Msg  string // returned to the client together with Code
	Err  error  // logged, never returned to the client
}

func NewError(code Code, msg string, underlying error) *Error {
	return &Error{Code: code, Msg: msg, Err: underlying}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// From converts any error into an *Error. Unclassified errors become Internal
// with a generic message so store details do not leak to clients.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}
	switch {
	case errors.Is(err, context.Canceled):
		return NewError(Canceled, "request canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(DeadlineExceeded, "deadline exceeded", err)
	}
	return NewError(Internal, "server error", err)
}

// CodeOf returns the code of err, OK for nil.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	return From(err).Code
}

func Invalid(msg string) *Error {
	return NewError(InvalidArgument, msg, nil)
}
