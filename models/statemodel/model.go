// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package statemodel

import (
	"math/big"

	"dapp-bootstrap/core"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Reserved namespace keys.
const (
	NamespaceConnection = "connection"
	NamespaceAccounts   = "accounts"
	NamespaceBalances   = "balances"
	NamespaceContracts  = "contracts"
	NamespaceStatus     = "status"
	NamespaceBlock      = "currentBlock"
)

const EtherDecimals = 18

type ConnectionStatus string

const (
	ConnectionIdle         = ConnectionStatus("")
	ConnectionInitializing = ConnectionStatus("initializing")
	ConnectionInitialized  = ConnectionStatus("initialized")
	ConnectionDeclined     = ConnectionStatus("declined")
	ConnectionFailed       = ConnectionStatus("failed")
)

type ConnectionState struct {
	Status          ConnectionStatus `mapstructure:"status"`
	Endpoint        string           `mapstructure:"endpoint"`
	NetworkID       uint64           `mapstructure:"networkId"`
	NetworkMismatch bool             `mapstructure:"networkMismatch"`
	Error           string           `mapstructure:"error"`
}

type AccountsState []common.Address

// BalancesState is keyed by checksummed hex address, values in wei.
type BalancesState map[string]*big.Int

type ContractState struct {
	Initialized bool     `mapstructure:"initialized"`
	Synced      bool     `mapstructure:"synced"`
	Events      []string `mapstructure:"events"`
	SyncedBlock uint64   `mapstructure:"syncedBlock"`
}

type ContractsState map[string]ContractState

type StatusState struct {
	Initialized bool   `mapstructure:"initialized"`
	Failed      bool   `mapstructure:"failed"`
	Error       string `mapstructure:"error"`
}

type BlockState struct {
	Number uint64      `mapstructure:"number"`
	Hash   common.Hash `mapstructure:"hash"`
}

func Connection(state core.State) ConnectionState {
	v, _ := core.Select[ConnectionState](state, NamespaceConnection)
	return v
}

func Accounts(state core.State) AccountsState {
	v, _ := core.Select[AccountsState](state, NamespaceAccounts)
	return v
}

func Balances(state core.State) BalancesState {
	v, _ := core.Select[BalancesState](state, NamespaceBalances)
	return v
}

func Contracts(state core.State) ContractsState {
	v, _ := core.Select[ContractsState](state, NamespaceContracts)
	return v
}

func Status(state core.State) StatusState {
	v, _ := core.Select[StatusState](state, NamespaceStatus)
	return v
}

func Block(state core.State) BlockState {
	v, _ := core.Select[BlockState](state, NamespaceBlock)
	return v
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
