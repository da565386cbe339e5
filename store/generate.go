// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package store

import (
	"context"
	"errors"
	"fmt"

	"dapp-bootstrap/bootstrap"
	"dapp-bootstrap/core"
	"dapp-bootstrap/models/statemodel"
	"dapp-bootstrap/reducers"
	"dapp-bootstrap/workers"

	log "github.com/ChainSafe/log15"
)

var ErrNoBackend = errors.New("config has no backend")

// Config describes one runtime container.
type Config struct {
	Options core.Options
	Backend core.Backend
	// Watcher runs the background workers; nil disables them.
	Watcher core.Watcher

	Reducers     map[string]core.Reducer // caller entries win over reserved keys
	Tasks        []core.Task             // started after the internal tasks
	Middlewares  []core.Middleware       // run after the internal middleware
	InitialState core.State              // deep merged over the derived state

	DisableDevTools bool
	DevTools        core.Enhancer

	SequencerOptions []bootstrap.Option
	Logger           log.Logger
}

// Container is the runtime: the store, the contract registry and the running
// background tasks. Build it once with Generate and pass it around.
type Container struct {
	*core.Store
	Registry *core.Registry
	options  core.Options
	runner   *core.Runner
	log      log.Logger
}

// Generate assembles the store and starts every background task, the
// bootstrap sequencer first.
func Generate(cfg Config) (*Container, error) {
	if cfg.Backend == nil {
		return nil, ErrNoBackend
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Root()
	}
	logger = logger.New("module", "store")

	opts := cfg.Options.WithDefaults()

	preloaded := mergeState(
		map[string]interface{}{statemodel.NamespaceContracts: ContractsInitialState(&opts)},
		cfg.InitialState,
	)

	allReducers := reducers.Defaults()
	for key, r := range cfg.Reducers {
		if _, reserved := allReducers[key]; reserved {
			logger.Warn("Application reducer shadows reserved namespace", "namespace", key)
		}
		allReducers[key] = r
	}

	registry := core.NewRegistry(logger.New("module", "registry"))
	seq := bootstrap.NewSequencer(cfg.Backend, logger.New("module", "bootstrap"), cfg.SequencerOptions...)
	tasks := []core.Task{seq.Task()}
	if cfg.Watcher != nil {
		tasks = append(tasks, workers.Blocks(cfg.Watcher), workers.Accounts(cfg.Watcher))
	}
	tasks = append(tasks, cfg.Tasks...)

	runner := core.NewRunner(logger.New("module", "runner"))
	middlewares := append([]core.Middleware{runner.Middleware(), core.LogMiddleware(logger)}, cfg.Middlewares...)

	create := core.Creator(logger)
	if !cfg.DisableDevTools && cfg.DevTools != nil {
		create = cfg.DevTools(create)
	}
	s := create(allReducers, core.State(preloaded), middlewares...)

	for _, collaborator := range []interface{}{cfg.Backend, cfg.Watcher} {
		if r, ok := collaborator.(core.Routed); ok {
			r.SetDispatcher(s)
		}
	}

	if err := runner.Run(context.Background(), tasks...); err != nil {
		return nil, fmt.Errorf("start tasks: %w", err)
	}

	return &Container{
		Store:    s,
		Registry: registry,
		options:  opts,
		runner:   runner,
		log:      logger,
	}, nil
}

func (c *Container) Options() core.Options {
	return c.options
}

// Initialize dispatches the initializing signal for the container's options.
func (c *Container) Initialize() error {
	opts := c.options
	return c.Dispatch(core.Initializing{Options: &opts, Target: c.Registry})
}

// WaitInitialized blocks until the current bootstrap reached its terminal
// signal and returns the failure, if any.
func (c *Container) WaitInitialized(ctx context.Context) error {
	done := make(chan error, 1)
	check := func(state core.State) {
		status := statemodel.Status(state)
		switch {
		case status.Initialized:
			select {
			case done <- nil:
			default:
			}
		case status.Failed:
			select {
			case done <- fmt.Errorf("initialization failed: %s", status.Error):
			default:
			}
		}
	}
	unsubscribe := c.Subscribe(check)
	defer unsubscribe()
	check(c.GetState())

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the background tasks stop and returns the fatal error
// that stopped them, if any.
func (c *Container) Wait() error {
	return c.runner.Wait()
}

func (c *Container) Stop() {
	c.runner.Stop()
	if conn := c.Registry.Connection(); conn != nil {
		conn.Close()
	}
}
