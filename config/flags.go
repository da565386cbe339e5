// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package config

import (
	log "github.com/ChainSafe/log15"
	"github.com/urfave/cli/v2"
)

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "toml configuration file",
		Value: DefaultConfigPath,
	}

	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Supports levels crit (silent) to trce (trace)",
		Value: log.LvlInfo.String(),
	}

	MetricsAddrFlag = &cli.StringFlag{
		Name:  "metrics",
		Usage: "listen address of the prometheus endpoint, empty disables it",
		Value: "",
	}

	DevtoolsFlag = &cli.BoolFlag{
		Name:  "devtools",
		Usage: "trace every state change",
	}
)
