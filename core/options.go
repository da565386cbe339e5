// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultFallbackURL  = "ws://127.0.0.1:8545"
	DefaultBlocksPeriod = 3 * time.Second
)

// Options is the initialization request. It is built once by the caller and
// never mutated afterwards.
type Options struct {
	Connection       ConnectOptions
	Contracts        []ContractConfig
	Events           map[string][]EventSubscription // keyed by contract name
	NetworkWhitelist []uint64                       // empty means no restriction
	Polls            Polls
	SyncAlways       bool
}

type ConnectOptions struct {
	URL         string // preferred endpoint
	FallbackURL string // used when URL is empty
	// Authorize asks the user for consent. A false answer yields no
	// connection. Nil means always connect.
	Authorize func(ctx context.Context) (bool, error)
}

type ContractConfig struct {
	Name    string
	Address common.Address
	ABI     string // json abi
}

type EventSubscription struct {
	Name      string
	FromBlock uint64
}

type Polls struct {
	Blocks   time.Duration
	Accounts time.Duration // zero disables account polling
}

// WithDefaults returns a copy of o with unset fields filled in.
func (o Options) WithDefaults() Options {
	if o.Connection.URL == "" && o.Connection.FallbackURL == "" {
		o.Connection.FallbackURL = DefaultFallbackURL
	}
	if o.Polls.Blocks <= 0 {
		o.Polls.Blocks = DefaultBlocksPeriod
	}
	if o.Events == nil {
		o.Events = map[string][]EventSubscription{}
	}
	return o
}

// Endpoint is the url a backend should dial.
func (c ConnectOptions) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	return c.FallbackURL
}

// Whitelisted reports whether id passes the network whitelist.
func (o *Options) Whitelisted(id uint64) bool {
	if len(o.NetworkWhitelist) == 0 {
		return true
	}
	for _, allowed := range o.NetworkWhitelist {
		if allowed == id {
			return true
		}
	}
	return false
}

// EventsFor returns the subscriptions configured for a contract, never nil.
func (o *Options) EventsFor(contract string) []EventSubscription {
	if evts, ok := o.Events[contract]; ok && evts != nil {
		return evts
	}
	return []EventSubscription{}
}
