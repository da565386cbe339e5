package chains

// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

import (
	"dapp-bootstrap/core"
)

// Dispatcher is the view of the store a collaborator writes through.
type Dispatcher interface {
	Dispatch(sig core.Signal) error
	GetState() core.State
}
