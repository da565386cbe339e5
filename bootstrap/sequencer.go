// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"dapp-bootstrap/core"

	"github.com/ChainSafe/log15"
)

var ErrNoOptions = errors.New("initializing signal without options")

// Sequencer brings connection, accounts and contracts up for the latest
// Initializing signal and then requests the background workers.
type Sequencer struct {
	backend        core.Backend
	modernProvider func() bool
	log            log15.Logger
}

type Option func(*Sequencer)

// WithModernProvider sets the runtime check for a modern injected provider.
// Without it none is assumed present.
func WithModernProvider(detect func() bool) Option {
	return func(s *Sequencer) {
		s.modernProvider = detect
	}
}

func NewSequencer(backend core.Backend, log log15.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		backend:        backend,
		modernProvider: func() bool { return false },
		log:            log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Task reacts to the most recent Initializing signal; an earlier run still
// in flight is cancelled at its next suspension point.
func (s *Sequencer) Task() core.Task {
	return func(ctx context.Context, env *core.Env) error {
		return env.TakeLatest(ctx, core.Is(core.KindInitializing), func(scope *core.Scope, sig core.Signal) error {
			return s.initialize(scope, sig.(core.Initializing))
		})
	}
}

func (s *Sequencer) initialize(scope *core.Scope, req core.Initializing) error {
	ctx := scope.Context()
	s.log.Info("Initializing")

	conn, err := s.prepare(scope, req)
	if err != nil {
		if ctx.Err() != nil {
			s.log.Debug("Initialization superseded", "err", err)
			return nil
		}
		s.log.Error("Error initializing", "err", err)
		return scope.Put(core.Failed{Err: err})
	}

	if conn != nil {
		// Errors past this point are not reported as Failed.
		if err := s.startWorkers(scope, req, conn); err != nil {
			return err
		}
	}

	if err := scope.Put(core.Initialized{}); err != nil {
		return err
	}
	s.log.Info("Initialized", "connected", conn != nil)
	return nil
}

// prepare runs the guarded steps: connect, network id, accounts, balances,
// whitelist check and contract binding. A nil connection without error means
// the user declined.
func (s *Sequencer) prepare(scope *core.Scope, req core.Initializing) (core.Connection, error) {
	ctx := scope.Context()
	opts := req.Options
	if opts == nil {
		return nil, ErrNoOptions
	}

	conn, err := s.backend.Connect(ctx, opts.Connection)
	if err != nil {
		return nil, err
	}
	err = scope.Do(func() error {
		if req.Target != nil {
			req.Target.SetConnection(conn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if conn == nil {
		s.log.Info("No connection, skipping remaining steps")
		return nil, nil
	}

	networkID, err := s.backend.NetworkID(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	accounts, err := s.backend.FetchAccounts(ctx, conn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.backend.FetchBalances(ctx, conn, accounts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !opts.Whitelisted(networkID) {
		s.log.Warn("Network mismatch", "networkId", networkID, "whitelist", opts.NetworkWhitelist)
		if err := scope.Put(core.NetworkMismatch{NetworkID: networkID}); err != nil {
			return nil, err
		}
	}

	for _, cfg := range opts.Contracts {
		events := opts.EventsFor(cfg.Name)
		entry, err := s.backend.BindContract(ctx, conn, cfg, events)
		if err != nil {
			return nil, err
		}
		err = scope.Do(func() error {
			if req.Target == nil {
				return nil
			}
			return req.Target.AddContract(entry)
		})
		if err != nil {
			return nil, err
		}
	}

	return conn, nil
}

// startWorkers requests exactly one block observer and, when configured, the
// account poller.
func (s *Sequencer) startWorkers(scope *core.Scope, req core.Initializing, conn core.Connection) error {
	opts := req.Options
	if conn.LegacyPolling() && !s.modernProvider() {
		s.log.Debug("Requesting block polling", "interval", opts.Polls.Blocks)
		err := scope.Put(core.StartBlockPolling{
			Target:     req.Target,
			Interval:   opts.Polls.Blocks,
			Conn:       conn,
			SyncAlways: opts.SyncAlways,
		})
		if err != nil {
			return fmt.Errorf("request block polling: %w", err)
		}
	} else {
		s.log.Debug("Requesting block listening")
		err := scope.Put(core.StartBlockListening{
			Target:     req.Target,
			Conn:       conn,
			SyncAlways: opts.SyncAlways,
		})
		if err != nil {
			return fmt.Errorf("request block listening: %w", err)
		}
	}

	if opts.Polls.Accounts > 0 {
		err := scope.Put(core.StartAccountPolling{
			Interval: opts.Polls.Accounts,
			Conn:     conn,
		})
		if err != nil {
			return fmt.Errorf("request account polling: %w", err)
		}
	}
	return nil
}
