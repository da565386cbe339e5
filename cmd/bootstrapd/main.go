// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"dapp-bootstrap/chains/evm"
	"dapp-bootstrap/config"
	"dapp-bootstrap/core"
	"dapp-bootstrap/metrics"
	"dapp-bootstrap/models/statemodel"
	"dapp-bootstrap/store"

	log "github.com/ChainSafe/log15"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

var app = cli.NewApp()

var cliFlags = []cli.Flag{
	config.ConfigFileFlag,
	config.VerbosityFlag,
	config.MetricsAddrFlag,
	config.DevtoolsFlag,
}

// init initializes CLI
func init() {
	app.Action = run
	app.Name = "bootstrapd"
	app.Usage = "connects to a node, loads accounts and contracts, then follows new blocks"
	app.Version = "1.0.0"
	app.EnableBashCompletion = true
	app.Flags = append(app.Flags, cliFlags...)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func startLogger(ctx *cli.Context) error {
	logger := log.Root()
	var lvl log.Lvl

	if lvlToInt, err := strconv.Atoi(ctx.String(config.VerbosityFlag.Name)); err == nil {
		lvl = log.Lvl(lvlToInt)
	} else if lvl, err = log.LvlFromString(ctx.String(config.VerbosityFlag.Name)); err != nil {
		return err
	}

	logger.SetHandler(log.LvlFilterHandler(
		lvl,
		log.StreamHandler(os.Stdout, log.LogfmtFormat())))

	return nil
}

func run(ctx *cli.Context) error {
	err := startLogger(ctx)
	if err != nil {
		return err
	}

	cfg, err := config.GetConfig(ctx)
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	logger := log.Root().New("app", app.Name)

	var middlewares []core.Middleware
	if addr := ctx.String(config.MetricsAddrFlag.Name); addr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.NewMetricManager(reg)
		if err != nil {
			return err
		}
		middlewares = append(middlewares, m.Middleware())
		go serveMetrics(addr, reg, logger)
	}

	backend := evm.NewBackend(logger.New("chain", "evm"), nil)
	c, err := store.Generate(store.Config{
		Options:         opts,
		Backend:         backend,
		Watcher:         backend,
		Middlewares:     middlewares,
		DisableDevTools: !ctx.Bool(config.DevtoolsFlag.Name),
		DevTools:        core.TraceEnhancer(logger.New("module", "devtools")),
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer c.Stop()

	if err := c.Initialize(); err != nil {
		return err
	}

	sysSig := make(chan os.Signal, 1)
	signal.Notify(sysSig, syscall.SIGINT, syscall.SIGTERM)

	initErr := make(chan error, 1)
	go func() {
		initErr <- c.WaitInitialized(context.Background())
	}()
	runErr := make(chan error, 1)
	go func() {
		runErr <- c.Wait()
	}()

	for {
		select {
		case err := <-initErr:
			if err != nil {
				return err
			}
			reportState(c.GetState(), logger)
		case err := <-runErr:
			return err
		case <-sysSig:
			logger.Info("Interrupt received, shutting down")
			return nil
		}
	}
}

func reportState(state core.State, logger log.Logger) {
	conn := statemodel.Connection(state)
	logger.Info("Bootstrap done", "status", conn.Status, "networkId", conn.NetworkID, "mismatch", conn.NetworkMismatch)
	balances := statemodel.Balances(state)
	for _, account := range statemodel.Accounts(state) {
		logger.Info("Account", "address", account.Hex(), "ether", statemodel.FormatEther(balances[account.Hex()]))
	}
	for name, contract := range statemodel.Contracts(state) {
		logger.Info("Contract", "name", name, "initialized", contract.Initialized, "events", contract.Events)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", "err", err)
	}
}
