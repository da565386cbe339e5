// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Kind string

const (
	KindInit                  = Kind("Init")
	KindInitializing          = Kind("Initializing")
	KindNetworkMismatch       = Kind("NetworkMismatch")
	KindFailed                = Kind("Failed")
	KindInitialized           = Kind("Initialized")
	KindStartBlockPolling     = Kind("StartBlockPolling")
	KindStartBlockListening   = Kind("StartBlockListening")
	KindStartAccountPolling   = Kind("StartAccountPolling")
	KindConnectionEstablished = Kind("ConnectionEstablished")
	KindConnectionDeclined    = Kind("ConnectionDeclined")
	KindConnectionFailed      = Kind("ConnectionFailed")
	KindNetworkIDFetched      = Kind("NetworkIDFetched")
	KindAccountsFetched       = Kind("AccountsFetched")
	KindAccountsFailed        = Kind("AccountsFailed")
	KindBalancesFetched       = Kind("BalancesFetched")
	KindBalanceFailed         = Kind("BalanceFailed")
	KindContractInitialized   = Kind("ContractInitialized")
	KindContractSyncing       = Kind("ContractSyncing")
	KindContractSynced        = Kind("ContractSynced")
	KindBlockReceived         = Kind("BlockReceived")
	KindCustom                = Kind("Custom")
)

// Signal is the closed set of values travelling through the store. Every
// variant is declared in this file; application code extends it only through
// Custom.
type Signal interface {
	Kind() Kind
	signal()
}

// Init is dispatched once by the store itself so reducers can fill in their
// initial namespace values.
type Init struct{}

// Initializing (re)starts the bootstrap. The latest one received wins.
type Initializing struct {
	Options *Options
	Target  Target
}

type NetworkMismatch struct {
	NetworkID uint64
}

type Failed struct {
	Err error
}

type Initialized struct{}

type StartBlockPolling struct {
	Target     Target
	Interval   time.Duration
	Conn       Connection
	SyncAlways bool
}

type StartBlockListening struct {
	Target     Target
	Conn       Connection
	SyncAlways bool
}

type StartAccountPolling struct {
	Interval time.Duration
	Conn     Connection
}

type ConnectionEstablished struct {
	Endpoint string
}

// ConnectionDeclined means the user refused to connect; not a failure.
type ConnectionDeclined struct{}

type ConnectionFailed struct {
	Err error
}

type NetworkIDFetched struct {
	NetworkID uint64
}

type AccountsFetched struct {
	Accounts []common.Address
}

type AccountsFailed struct {
	Err error
}

type BalancesFetched struct {
	Balances map[common.Address]*big.Int
}

type BalanceFailed struct {
	Err error
}

type ContractInitialized struct {
	Name   string
	Events []string
}

type ContractSyncing struct {
	Name string
}

type ContractSynced struct {
	Name  string
	Block uint64
}

type BlockReceived struct {
	Number uint64
	Hash   common.Hash
}

// Custom carries application defined signals for application namespaces.
type Custom struct {
	Name    string
	Payload interface{}
}

func (Init) Kind() Kind                  { return KindInit }
func (Initializing) Kind() Kind          { return KindInitializing }
func (NetworkMismatch) Kind() Kind       { return KindNetworkMismatch }
func (Failed) Kind() Kind                { return KindFailed }
func (Initialized) Kind() Kind           { return KindInitialized }
func (StartBlockPolling) Kind() Kind     { return KindStartBlockPolling }
func (StartBlockListening) Kind() Kind   { return KindStartBlockListening }
func (StartAccountPolling) Kind() Kind   { return KindStartAccountPolling }
func (ConnectionEstablished) Kind() Kind { return KindConnectionEstablished }
func (ConnectionDeclined) Kind() Kind    { return KindConnectionDeclined }
func (ConnectionFailed) Kind() Kind      { return KindConnectionFailed }
func (NetworkIDFetched) Kind() Kind      { return KindNetworkIDFetched }
func (AccountsFetched) Kind() Kind       { return KindAccountsFetched }
func (AccountsFailed) Kind() Kind        { return KindAccountsFailed }
func (BalancesFetched) Kind() Kind       { return KindBalancesFetched }
func (BalanceFailed) Kind() Kind         { return KindBalanceFailed }
func (ContractInitialized) Kind() Kind   { return KindContractInitialized }
func (ContractSyncing) Kind() Kind       { return KindContractSyncing }
func (ContractSynced) Kind() Kind        { return KindContractSynced }
func (BlockReceived) Kind() Kind         { return KindBlockReceived }
func (Custom) Kind() Kind                { return KindCustom }

func (Init) signal()                  {}
func (Initializing) signal()          {}
func (NetworkMismatch) signal()       {}
func (Failed) signal()                {}
func (Initialized) signal()           {}
func (StartBlockPolling) signal()     {}
func (StartBlockListening) signal()   {}
func (StartAccountPolling) signal()   {}
func (ConnectionEstablished) signal() {}
func (ConnectionDeclined) signal()    {}
func (ConnectionFailed) signal()      {}
func (NetworkIDFetched) signal()      {}
func (AccountsFetched) signal()       {}
func (AccountsFailed) signal()        {}
func (BalancesFetched) signal()       {}
func (BalanceFailed) signal()         {}
func (ContractInitialized) signal()   {}
func (ContractSyncing) signal()       {}
func (ContractSynced) signal()        {}
func (BlockReceived) signal()         {}
func (Custom) signal()                {}

// IsTerminal reports whether sig ends a bootstrap sequence.
func IsTerminal(sig Signal) bool {
	switch sig.(type) {
	case Initialized, Failed:
		return true
	default:
		return false
	}
}

// IsWorkerStart reports whether sig requests a background worker.
func IsWorkerStart(sig Signal) bool {
	switch sig.(type) {
	case StartBlockPolling, StartBlockListening, StartAccountPolling:
		return true
	default:
		return false
	}
}
