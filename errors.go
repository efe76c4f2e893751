/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 */

package mqtt

import "fmt"

// Code is a stable, numeric identity for an error surfaced by the client
// core, independent of the human-readable message attached to it.
type Code int

// The error codes the core surfaces, per the external interfaces section
// of the specification this library implements.
const (
	CodeClientConnected Code = iota + 1
	CodeClientDisconnecting
	CodeClientNotConnected
	CodeClientTimeout
	CodeConnectInProgress
	CodeClientClosed
	CodeNoMessageIDsAvailable
	CodePersistenceFailure
	CodeBrokerUnavailable
	CodeSubscribeFailed
	CodeWriteTimeout
	CodeDisconnectedBufferFull
	CodeInvalidTopic
	CodeProtocolError
)

var codeNames = map[Code]string{
	CodeClientConnected:        "client already connected",
	CodeClientDisconnecting:    "client is disconnecting",
	CodeClientNotConnected:     "client not connected",
	CodeClientTimeout:          "client timed out",
	CodeConnectInProgress:      "connect already in progress",
	CodeClientClosed:           "client is closed",
	CodeNoMessageIDsAvailable:  "no message ids available",
	CodePersistenceFailure:     "persistence failure",
	CodeBrokerUnavailable:      "broker unavailable",
	CodeSubscribeFailed:        "subscribe failed",
	CodeWriteTimeout:           "write timeout",
	CodeDisconnectedBufferFull: "disconnected and offline buffer full",
	CodeInvalidTopic:           "invalid topic",
	CodeProtocolError:          "protocol error",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", int(c))
}

// Error is the typed error attached to a failed Token and, where
// applicable, passed to OnConnectionLost.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Code, whatever
// either one's Cause, so errors.Is(err, mqtt.NewError(code)) matches any
// *Error carrying that code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

// NewError constructs an *Error with no wrapped cause, used as an
// errors.Is comparison target, e.g. errors.Is(err, mqtt.NewError(mqtt.CodeClientNotConnected)).
func NewError(code Code) *Error {
	return &Error{Code: code}
}

// wrapError constructs an *Error carrying a root cause.
func wrapError(code Code, cause error) *Error {
	return &Error{Code: code, Cause: cause}
}
