// Package apperrors defines the error taxonomy shared by the analyzer client:
// which failures reach the user and which degrade silently.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindValidation is blank or malformed input, caught before any network call.
	KindValidation Kind = "validation"
	// KindNetwork is a transport failure or non-2xx answer from the oracle or store.
	KindNetwork Kind = "network"
	// KindPartialItem is a single batch entry the oracle marked as failed.
	KindPartialItem Kind = "partial_item"
	// KindPersistence is a save/fetch/clear failure against the store.
	KindPersistence Kind = "persistence"
	// KindConnection is a push-channel transport failure.
	KindConnection Kind = "connection"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can test errors.Is(err, apperrors.Network).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	Validation  = &Error{Kind: KindValidation}
	Network     = &Error{Kind: KindNetwork}
	Persistence = &Error{Kind: KindPersistence}
)

func NewValidation(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// NewNetwork builds a network error. The user-facing message is the server's
// own error text when present, else "HTTP <status>", else the transport error.
func NewNetwork(op string, status int, serverMessage string, err error) *Error {
	msg := serverMessage
	if msg == "" && status != 0 {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &Error{Kind: KindNetwork, Op: op, Message: msg, Status: status, Err: err}
}

func NewPersistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

func NewConnection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// UserMessage is the text shown in a destructive notification.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
	}
	if err != nil && fallback == "" {
		return err.Error()
	}
	return fallback
}

func IsValidation(err error) bool { return errors.Is(err, Validation) }
func IsNetwork(err error) bool    { return errors.Is(err, Network) }
