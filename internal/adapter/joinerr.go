// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package adapter

import (
	"fmt"

	"github.com/ManuGH/meetbot/internal/bot"
)

// JoinErrorKind classifies a failed join attempt for the retry loop.
type JoinErrorKind int

const (
	// JoinUnexpected failures retry a few times, then report debug artifacts.
	JoinUnexpected JoinErrorKind = iota
	// JoinTerminal failures end the join immediately with Reason.
	JoinTerminal
	// JoinExpected failures are routine (meeting not started, slow UI) and
	// retry quietly.
	JoinExpected
	// JoinAuthorizedUserAbsent retries until the authorized-user timeout.
	JoinAuthorizedUserAbsent
)

func (k JoinErrorKind) String() string {
	switch k {
	case JoinTerminal:
		return "terminal"
	case JoinExpected:
		return "expected"
	case JoinAuthorizedUserAbsent:
		return "authorized_user_absent"
	}
	return "unexpected"
}

// JoinError is returned by join attempts.
type JoinError struct {
	Kind   JoinErrorKind
	Reason bot.SubType
	Step   string
	Err    error
}

func (e *JoinError) Error() string {
	msg := fmt.Sprintf("join %s failure at %s", e.Kind, e.Step)
	if e.Reason != bot.SubTypeNone {
		msg += " (" + string(e.Reason) + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JoinError) Unwrap() error { return e.Err }

// Terminal builds a terminal join error.
func Terminal(reason bot.SubType, step string, err error) *JoinError {
	return &JoinError{Kind: JoinTerminal, Reason: reason, Step: step, Err: err}
}

// Expected builds an expected transient join error.
func Expected(step string, err error) *JoinError {
	return &JoinError{Kind: JoinExpected, Step: step, Err: err}
}

// Unexpected builds an unexpected join error.
func Unexpected(step string, err error) *JoinError {
	return &JoinError{Kind: JoinUnexpected, Step: step, Err: err}
}

// AuthorizedUserAbsent builds the error for a missing authorized user.
func AuthorizedUserAbsent(step string) *JoinError {
	return &JoinError{Kind: JoinAuthorizedUserAbsent, Step: step}
}
