// SPDX-License-Identifier: MIT

package signer

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrInvalidRequest = errors.New("signer: invalid request")
	ErrTransport      = errors.New("signer: transport failure or timeout")
	ErrBackend        = errors.New("signer: backend rejected the request")
	ErrBadShape       = errors.New("signer: invalid response shape")
	ErrCookieSetup    = errors.New("signer: signed cookies could not be established")
)

// AcquireError is a rich error type that wraps the sentinel errors with
// context. Reason carries the user-facing failure reason the session layer
// matches its guidance messages against.
type AcquireError struct {
	Sentinel error
	Op       string // endpoint or step ("signed_cookies", "auth_url", ...)
	Status   int    // HTTP status, if any
	Reason   string
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *AcquireError) Error() string {
	msg := fmt.Sprintf("signer: %s: %s", e.Op, e.Reason)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AcquireError) Unwrap() error {
	return e.Sentinel
}

// FailureReason extracts the user-facing reason from an acquisition error.
func FailureReason(err error) string {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
