// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dapp-bootstrap/core"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

const DefaultConfigPath = "./config.toml"

type Config struct {
	Endpoint         string           `toml:"endpoint"`
	Fallback         string           `toml:"fallback"`
	NetworkWhitelist []uint64         `toml:"network_whitelist"`
	SyncAlways       bool             `toml:"sync_always"`
	Polls            PollsConfig      `toml:"polls"`
	Contracts        []ContractConfig `toml:"contracts"`

	dir string
}

type PollsConfig struct {
	Blocks   string `toml:"blocks"`   // e.g. "3s"
	Accounts string `toml:"accounts"` // empty disables account polling
}

type ContractConfig struct {
	Name    string   `toml:"name"`
	Address string   `toml:"address"`
	AbiPath string   `toml:"abi"` // relative to the config file
	Events  []string `toml:"events"`
}

func GetConfig(ctx *cli.Context) (*Config, error) {
	path := ctx.String(ConfigFileFlag.Name)
	if path == "" {
		path = DefaultConfigPath
	}
	return LoadConfig(path)
}

func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for _, contract := range c.Contracts {
		if contract.Name == "" {
			return errors.New("contract without name")
		}
		if seen[contract.Name] {
			return fmt.Errorf("duplicate contract %s", contract.Name)
		}
		seen[contract.Name] = true
		if !common.IsHexAddress(contract.Address) {
			return fmt.Errorf("contract %s: invalid address %q", contract.Name, contract.Address)
		}
		if contract.AbiPath == "" {
			return fmt.Errorf("contract %s: no abi", contract.Name)
		}
	}
	return nil
}

// Options builds the initialization request, reading every abi file.
func (c *Config) Options() (core.Options, error) {
	opts := core.Options{
		Connection: core.ConnectOptions{
			URL:         c.Endpoint,
			FallbackURL: c.Fallback,
		},
		Events:           make(map[string][]core.EventSubscription),
		NetworkWhitelist: c.NetworkWhitelist,
		SyncAlways:       c.SyncAlways,
	}

	var err error
	if opts.Polls.Blocks, err = parseDuration(c.Polls.Blocks); err != nil {
		return core.Options{}, fmt.Errorf("polls.blocks: %w", err)
	}
	if opts.Polls.Accounts, err = parseDuration(c.Polls.Accounts); err != nil {
		return core.Options{}, fmt.Errorf("polls.accounts: %w", err)
	}

	for _, contract := range c.Contracts {
		abiPath := contract.AbiPath
		if !filepath.IsAbs(abiPath) {
			abiPath = filepath.Join(c.dir, abiPath)
		}
		abiJson, err := os.ReadFile(abiPath)
		if err != nil {
			return core.Options{}, fmt.Errorf("contract %s: %w", contract.Name, err)
		}
		opts.Contracts = append(opts.Contracts, core.ContractConfig{
			Name:    contract.Name,
			Address: common.HexToAddress(contract.Address),
			ABI:     string(abiJson),
		})
		if len(contract.Events) > 0 {
			subs := make([]core.EventSubscription, 0, len(contract.Events))
			for _, name := range contract.Events {
				subs = append(subs, core.EventSubscription{Name: name})
			}
			opts.Events[contract.Name] = subs
		}
	}
	return opts.WithDefaults(), nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}
