// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"dapp-bootstrap/core"
	"dapp-bootstrap/models/statemodel"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	BlockRetryLimit = 5
	HeadBufferSize  = 16
)

// PollBlocks asks for the latest block number every interval and processes
// each new head. Consecutive failures beyond BlockRetryLimit are fatal.
func (b *Backend) PollBlocks(ctx context.Context, req core.StartBlockPolling) error {
	c, err := connOf(req.Conn)
	if err != nil {
		return err
	}
	interval := req.Interval
	if interval <= 0 {
		interval = core.DefaultBlocksPeriod
	}
	b.log.Info("Polling blocks", "endpoint", c.url, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var latest uint64
	var seen bool
	retry := BlockRetryLimit
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		number, err := c.client.GetEthClient().BlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			retry--
			b.log.Error("Failed to fetch latest blockNumber", "err", err, "retry", retry)
			if retry == 0 {
				return fmt.Errorf("block polling retries exceeded: %s", c.url)
			}
			continue
		}
		retry = BlockRetryLimit

		if seen && number <= latest {
			continue
		}
		seen, latest = true, number
		if err := b.processBlock(ctx, c, req.Target, number, req.SyncAlways); err != nil {
			b.log.Error("Failed to process block", "block", number, "err", err)
		}
	}
}

// ListenBlocks subscribes to new heads. A broken subscription is fatal.
func (b *Backend) ListenBlocks(ctx context.Context, req core.StartBlockListening) error {
	c, err := connOf(req.Conn)
	if err != nil {
		return err
	}
	b.log.Info("Listening blocks", "endpoint", c.url)

	heads := make(chan *types.Header, HeadBufferSize)
	sub, err := c.client.GetEthClient().SubscribeNewHead(ctx, heads)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("new heads subscription: %w", err)
		case head := <-heads:
			number := head.Number.Uint64()
			if err := b.processBlock(ctx, c, req.Target, number, req.SyncAlways); err != nil {
				b.log.Error("Failed to process block", "block", number, "err", err)
			}
		}
	}
}

// PollAccounts refetches the account list every interval and refreshes
// balances when it changed.
func (b *Backend) PollAccounts(ctx context.Context, req core.StartAccountPolling) error {
	c, err := connOf(req.Conn)
	if err != nil {
		return err
	}
	if req.Interval <= 0 {
		return fmt.Errorf("invalid account polling interval %s", req.Interval)
	}
	b.log.Info("Polling accounts", "endpoint", c.url, "interval", req.Interval)

	ticker := time.NewTicker(req.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		accounts, err := c.client.Accounts(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("Failed to poll accounts", "err", err)
			continue
		}
		if sameAccounts(statemodel.Accounts(b.state()), accounts) {
			continue
		}
		b.log.Info("Accounts changed", "accounts", len(accounts))
		b.submit(core.AccountsFetched{Accounts: accounts})
		if _, err := b.FetchBalances(ctx, c, accounts); err != nil {
			b.log.Warn("Failed to refresh balances", "err", err)
		}
	}
}

// processBlock records the head, resyncs the contracts the block touched (all
// of them when syncAlways) and refreshes balances.
func (b *Backend) processBlock(ctx context.Context, c *Connection, target core.Target, number uint64, syncAlways bool) error {
	block, err := c.client.GetEthClient().BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return err
	}
	if number%100 == 0 {
		b.log.Debug("processBlock", "blockNum", number)
	}
	b.submit(core.BlockReceived{Number: number, Hash: block.Hash()})

	if target != nil {
		for _, entry := range touchedContracts(target.Contracts(), block, syncAlways) {
			b.submit(core.ContractSyncing{Name: entry.Name})
			b.submit(core.ContractSynced{Name: entry.Name, Block: number})
		}
	}

	accounts := statemodel.Accounts(b.state())
	if len(accounts) == 0 {
		return nil
	}
	_, err = b.FetchBalances(ctx, c, accounts)
	return err
}

func touchedContracts(entries []*core.ContractEntry, block *types.Block, syncAlways bool) []*core.ContractEntry {
	if syncAlways {
		return entries
	}
	touched := make(map[common.Address]bool)
	for _, tx := range block.Transactions() {
		if to := tx.To(); to != nil {
			touched[*to] = true
		}
	}
	out := make([]*core.ContractEntry, 0)
	for _, entry := range entries {
		if touched[entry.Address] {
			out = append(out, entry)
		}
	}
	return out
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
