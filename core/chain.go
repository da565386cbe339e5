// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Connection is a live node handle. It is owned by the bootstrap until the
// sequence ends and then shared read-only with the background workers.
type Connection interface {
	Endpoint() string
	// LegacyPolling marks transports that cannot push new heads.
	LegacyPolling() bool
	Close()
}

// Backend performs the external calls of the bootstrap sequence. Every call
// is a suspension point and must honour ctx.
type Backend interface {
	// Connect returns a nil Connection and a nil error when the user declines.
	Connect(ctx context.Context, opts ConnectOptions) (Connection, error)
	NetworkID(ctx context.Context, conn Connection) (uint64, error)
	FetchAccounts(ctx context.Context, conn Connection) ([]common.Address, error)
	FetchBalances(ctx context.Context, conn Connection, accounts []common.Address) (map[common.Address]*big.Int, error)
	BindContract(ctx context.Context, conn Connection, cfg ContractConfig, events []EventSubscription) (*ContractEntry, error)
}

// Watcher runs the long-lived background workers. Each call blocks until ctx
// is done or the worker fails.
type Watcher interface {
	PollBlocks(ctx context.Context, req StartBlockPolling) error
	ListenBlocks(ctx context.Context, req StartBlockListening) error
	PollAccounts(ctx context.Context, req StartAccountPolling) error
}

// Target receives the connection and the bound contracts of a bootstrap.
type Target interface {
	SetConnection(conn Connection)
	AddContract(entry *ContractEntry) error
	Contracts() []*ContractEntry
}

// Routed is implemented by collaborators that dispatch into the store. The
// assembler hands them the store before any task starts.
type Routed interface {
	SetDispatcher(d StoreAPI)
}
