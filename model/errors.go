package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"xdao.co/nref/event"
	"xdao.co/nref/relay"
	"xdao.co/nref/resolver"
	"xdao.co/nref/storage"
)

type ErrorCode string

const (
	ErrDecode         ErrorCode = "DECODE_ERROR"
	ErrFetchExhausted ErrorCode = "FETCH_EXHAUSTED"
	ErrStoreIO        ErrorCode = "STORE_IO"
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrInternal       ErrorCode = "INTERNAL"
)

// CodedError is a stable error with a machine-readable code and a human message.
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// FromError classifies err. A *CodedError passes through unchanged.
func FromError(err error) *CodedError {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}
	var decode *resolver.DecodeError
	switch {
	case errors.As(err, &decode):
		return NewError(ErrDecode, err.Error())
	case errors.Is(err, relay.ErrExhausted):
		return NewError(ErrFetchExhausted, err.Error())
	case errors.Is(err, event.ErrInvalidID), errors.Is(err, storage.ErrIDMismatch):
		return NewError(ErrInvalidRequest, err.Error())
	case errors.Is(err, storage.ErrCorrupt), errors.Is(err, storage.ErrNotFound):
		return NewError(ErrStoreIO, err.Error())
	case errors.As(err, new(*fs.PathError)), errors.As(err, new(*os.LinkError)):
		return NewError(ErrStoreIO, err.Error())
	default:
		return NewError(ErrInternal, err.Error())
	}
}
