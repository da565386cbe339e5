// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"dapp-bootstrap/chains"
	"dapp-bootstrap/core"
	"dapp-bootstrap/shared/evm"

	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoAddress = errors.New("contract address is empty")
	ErrNoCode    = errors.New("no contract code at address")
)

// Backend talks to an ethereum node on behalf of the bootstrap and the
// background workers, and reports what it learns into the store.
type Backend struct {
	dispatcher chains.Dispatcher
	dial       evm.DialFunc
	lock       *sync.RWMutex
	log        log15.Logger
}

var (
	_ core.Backend = (*Backend)(nil)
	_ core.Watcher = (*Backend)(nil)
	_ core.Routed  = (*Backend)(nil)
)

// NewBackend returns a backend dialing with dial, or rpc.DialContext if nil.
func NewBackend(log log15.Logger, dial evm.DialFunc) *Backend {
	return &Backend{
		dial: dial,
		lock: &sync.RWMutex{},
		log:  log,
	}
}

func (b *Backend) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	endpoint := opts.Endpoint()
	if endpoint == "" {
		err := &core.ConnectionError{Err: core.ErrNoEndpoint}
		b.submit(core.ConnectionFailed{Err: err})
		return nil, err
	}

	if opts.Authorize != nil {
		ok, err := opts.Authorize(ctx)
		if err != nil {
			cerr := &core.ConnectionError{Endpoint: endpoint, Err: err}
			b.submit(core.ConnectionFailed{Err: cerr})
			return nil, cerr
		}
		if !ok {
			b.log.Info("User declined to connect", "endpoint", endpoint)
			b.submit(core.ConnectionDeclined{})
			return nil, nil
		}
	}

	conn, err := NewConnection(ctx, endpoint, b.dial, b.log)
	if err != nil {
		b.submit(core.ConnectionFailed{Err: err})
		return nil, err
	}
	b.submit(core.ConnectionEstablished{Endpoint: endpoint})
	return conn, nil
}

func (b *Backend) NetworkID(ctx context.Context, conn core.Connection) (uint64, error) {
	c, err := connOf(conn)
	if err != nil {
		return 0, err
	}
	id, err := c.client.GetEthClient().NetworkID(ctx)
	if err != nil {
		return 0, fmt.Errorf("network id: %w", err)
	}
	b.submit(core.NetworkIDFetched{NetworkID: id.Uint64()})
	return id.Uint64(), nil
}

func (b *Backend) FetchAccounts(ctx context.Context, conn core.Connection) ([]common.Address, error) {
	c, err := connOf(conn)
	if err != nil {
		return nil, err
	}
	accounts, err := c.client.Accounts(ctx)
	if err != nil {
		b.submit(core.AccountsFailed{Err: err})
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	b.submit(core.AccountsFetched{Accounts: accounts})
	return accounts, nil
}

func (b *Backend) FetchBalances(ctx context.Context, conn core.Connection, accounts []common.Address) (map[common.Address]*big.Int, error) {
	c, err := connOf(conn)
	if err != nil {
		return nil, err
	}
	balances := make(map[common.Address]*big.Int, len(accounts))
	for _, account := range accounts {
		bal, err := c.client.Balance(ctx, account)
		if err != nil {
			b.submit(core.BalanceFailed{Err: err})
			return nil, fmt.Errorf("fetch balance of %s: %w", account.Hex(), err)
		}
		balances[account] = bal
	}
	b.submit(core.BalancesFetched{Balances: balances})
	return balances, nil
}

func (b *Backend) BindContract(ctx context.Context, conn core.Connection, cfg core.ContractConfig, events []core.EventSubscription) (*core.ContractEntry, error) {
	c, err := connOf(conn)
	if err != nil {
		return nil, &core.BindingError{Contract: cfg.Name, Err: err}
	}
	if cfg.Address == (common.Address{}) {
		return nil, &core.BindingError{Contract: cfg.Name, Err: ErrNoAddress}
	}
	parsed, err := abi.JSON(strings.NewReader(cfg.ABI))
	if err != nil {
		return nil, &core.BindingError{Contract: cfg.Name, Err: fmt.Errorf("parse abi: %w", err)}
	}

	names := make([]string, 0, len(events))
	for _, evt := range events {
		if _, ok := parsed.Events[evt.Name]; !ok {
			return nil, &core.BindingError{Contract: cfg.Name, Err: fmt.Errorf("event %s not in abi", evt.Name)}
		}
		names = append(names, evt.Name)
	}

	eth := c.client.GetEthClient()
	code, err := eth.CodeAt(ctx, cfg.Address, nil)
	if err != nil {
		return nil, &core.BindingError{Contract: cfg.Name, Err: err}
	}
	if len(code) == 0 {
		return nil, &core.BindingError{Contract: cfg.Name, Err: ErrNoCode}
	}

	entry := &core.ContractEntry{
		Name:     cfg.Name,
		Address:  cfg.Address,
		ABI:      parsed,
		Contract: bind.NewBoundContract(cfg.Address, parsed, eth, eth, eth),
		Events:   events,
	}
	b.submit(core.ContractInitialized{Name: cfg.Name, Events: names})
	return entry, nil
}
