// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package reducers

import (
	"math/big"

	"dapp-bootstrap/core"
	"dapp-bootstrap/models/statemodel"
)

// Defaults returns a fresh set of the reserved namespaces.
func Defaults() map[string]core.Reducer {
	return map[string]core.Reducer{
		statemodel.NamespaceConnection: Connection(),
		statemodel.NamespaceAccounts:   Accounts(),
		statemodel.NamespaceBalances:   Balances(),
		statemodel.NamespaceContracts:  Contracts(),
		statemodel.NamespaceStatus:     Status(),
		statemodel.NamespaceBlock:      Block(),
	}
}

func Connection() core.Reducer {
	return core.NewReducer(
		func() statemodel.ConnectionState { return statemodel.ConnectionState{} },
		func(s statemodel.ConnectionState, sig core.Signal) statemodel.ConnectionState {
			switch sig := sig.(type) {
			case core.Initializing:
				return statemodel.ConnectionState{Status: statemodel.ConnectionInitializing}
			case core.ConnectionEstablished:
				s.Status = statemodel.ConnectionInitialized
				s.Endpoint = sig.Endpoint
				s.Error = ""
			case core.ConnectionDeclined:
				s.Status = statemodel.ConnectionDeclined
			case core.ConnectionFailed:
				s.Status = statemodel.ConnectionFailed
				s.Error = errString(sig.Err)
			case core.NetworkIDFetched:
				s.NetworkID = sig.NetworkID
			case core.NetworkMismatch:
				s.NetworkMismatch = true
			}
			return s
		})
}

func Accounts() core.Reducer {
	return core.NewReducer(
		func() statemodel.AccountsState { return statemodel.AccountsState{} },
		func(s statemodel.AccountsState, sig core.Signal) statemodel.AccountsState {
			if sig, ok := sig.(core.AccountsFetched); ok {
				out := make(statemodel.AccountsState, len(sig.Accounts))
				copy(out, sig.Accounts)
				return out
			}
			return s
		})
}

func Balances() core.Reducer {
	return core.NewReducer(
		func() statemodel.BalancesState { return statemodel.BalancesState{} },
		func(s statemodel.BalancesState, sig core.Signal) statemodel.BalancesState {
			if sig, ok := sig.(core.BalancesFetched); ok {
				out := make(statemodel.BalancesState, len(s)+len(sig.Balances))
				for k, v := range s {
					out[k] = v
				}
				for addr, bal := range sig.Balances {
					out[addr.Hex()] = new(big.Int).Set(bal)
				}
				return out
			}
			return s
		})
}

func Contracts() core.Reducer {
	return core.NewReducer(
		func() statemodel.ContractsState { return statemodel.ContractsState{} },
		func(s statemodel.ContractsState, sig core.Signal) statemodel.ContractsState {
			switch sig := sig.(type) {
			case core.ContractInitialized:
				out := copyContracts(s)
				c := out[sig.Name]
				c.Initialized = true
				c.Synced = true
				c.Events = append([]string{}, sig.Events...)
				out[sig.Name] = c
				return out
			case core.ContractSyncing:
				if c, ok := s[sig.Name]; ok {
					out := copyContracts(s)
					c.Synced = false
					out[sig.Name] = c
					return out
				}
			case core.ContractSynced:
				if c, ok := s[sig.Name]; ok {
					out := copyContracts(s)
					c.Synced = true
					c.SyncedBlock = sig.Block
					out[sig.Name] = c
					return out
				}
			}
			return s
		})
}

func Status() core.Reducer {
	return core.NewReducer(
		func() statemodel.StatusState { return statemodel.StatusState{} },
		func(s statemodel.StatusState, sig core.Signal) statemodel.StatusState {
			switch sig := sig.(type) {
			case core.Initializing:
				return statemodel.StatusState{}
			case core.Initialized:
				return statemodel.StatusState{Initialized: true}
			case core.Failed:
				return statemodel.StatusState{Failed: true, Error: errString(sig.Err)}
			}
			return s
		})
}

func Block() core.Reducer {
	return core.NewReducer(
		func() statemodel.BlockState { return statemodel.BlockState{} },
		func(s statemodel.BlockState, sig core.Signal) statemodel.BlockState {
			if sig, ok := sig.(core.BlockReceived); ok {
				return statemodel.BlockState{Number: sig.Number, Hash: sig.Hash}
			}
			return s
		})
}

func copyContracts(s statemodel.ContractsState) statemodel.ContractsState {
	out := make(statemodel.ContractsState, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
