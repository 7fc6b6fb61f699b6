package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess  Code = 0
	CodeInternal Code = 1
	CodeUsage    Code = 2

	CodeInputValidation     Code = 20
	CodeChainRead           Code = 21
	CodeSimulationRevert    Code = 22
	CodeSlippageExceeded    Code = 23
	CodeAuthorizationDenied Code = 24
	CodeAccountState        Code = 25
	CodePersistence         Code = 26

	CodeUnavailable Code = 30
	CodeSigner      Code = 31
	CodeTimeout     Code = 32
	CodeRateLimited Code = 33
	CodeBlocked     Code = 34
)

var codeTypes = map[Code]string{
	CodeInternal:            "internal_error",
	CodeUsage:               "usage_error",
	CodeInputValidation:     "input_validation",
	CodeChainRead:           "chain_read",
	CodeSimulationRevert:    "simulation_revert",
	CodeSlippageExceeded:    "slippage_exceeded",
	CodeAuthorizationDenied: "authorization_denied",
	CodeAccountState:        "account_state",
	CodePersistence:         "persistence",
	CodeUnavailable:         "unavailable",
	CodeSigner:              "signer_error",
	CodeTimeout:             "timeout",
	CodeRateLimited:         "rate_limited",
	CodeBlocked:             "command_blocked",
}

// Type returns the snake_case name used in rendered error envelopes.
func (c Code) Type() string {
	if v, ok := codeTypes[c]; ok {
		return v
	}
	return "internal_error"
}

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether the outermost typed error in err's chain carries code.
func Is(err error, code Code) bool {
	typed, ok := As(err)
	return ok && typed.Code == code
}

// CodeOf returns the code of the outermost typed error, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if typed, ok := As(err); ok {
		return typed.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}
