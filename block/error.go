//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package block

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a block failure.
type ErrorKind string

const (
	// ErrConfig marks bad or missing settings.
	ErrConfig ErrorKind = "ConfigError"
	// ErrDependency marks a missing external capability or credential.
	ErrDependency ErrorKind = "DependencyError"
	// ErrRemote marks an upstream API failure.
	ErrRemote ErrorKind = "RemoteError"
	// ErrTimeout marks a deadline expiry.
	ErrTimeout ErrorKind = "TimeoutError"
	// ErrInternal marks everything else.
	ErrInternal ErrorKind = "InternalError"
)

// Error is the typed failure a block reports. Kind drives the error
// taxonomy surfaced in NodeRun rows and logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// WithDetail attaches one detail entry and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// AsMap renders the error in the shape persisted into NodeRun.error.
func (e *Error) AsMap() map[string]any {
	m := map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		m["details"] = e.Details
	}
	return m
}

// Configf builds a ConfigError.
func Configf(format string, args ...any) *Error {
	return &Error{Kind: ErrConfig, Message: fmt.Sprintf(format, args...)}
}

// Dependencyf builds a DependencyError.
func Dependencyf(format string, args ...any) *Error {
	return &Error{Kind: ErrDependency, Message: fmt.Sprintf(format, args...)}
}

// Remotef builds a RemoteError.
func Remotef(format string, args ...any) *Error {
	return &Error{Kind: ErrRemote, Message: fmt.Sprintf(format, args...)}
}

// Timeoutf builds a TimeoutError.
func Timeoutf(format string, args ...any) *Error {
	return &Error{Kind: ErrTimeout, Message: fmt.Sprintf(format, args...)}
}

// Internalf builds an InternalError.
func Internalf(format string, args ...any) *Error {
	return &Error{Kind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// FromError coerces any error into a block Error: typed errors pass
// through, deadline expiry becomes TimeoutError, the rest InternalError.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeoutf("%v", err)
	}
	return Internalf("%v", err)
}
