// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"errors"
	"fmt"
)

var (
	ErrTerminated       = errors.New("terminated")
	ErrStoreDispatching = errors.New("dispatch is not allowed while the store is being built")
	ErrNoEndpoint       = errors.New("no endpoint or fallback configured")
)

// ConnectionError reports an unreachable or rejected endpoint.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %s", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// BindingError reports a bad contract descriptor or a failed binding.
type BindingError struct {
	Contract string
	Err      error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("bind contract %s: %s", e.Contract, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }
