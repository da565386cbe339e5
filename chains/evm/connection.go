// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package evm

import (
	"context"
	"fmt"
	"strings"

	"dapp-bootstrap/core"
	"dapp-bootstrap/shared/evm"

	"github.com/ChainSafe/log15"
)

type Connection struct {
	url    string
	client *evm.Client
	legacy bool
	log    log15.Logger
}

func NewConnection(ctx context.Context, url string, dial evm.DialFunc, log log15.Logger) (*Connection, error) {
	log.Info("NewConnection", "endpoint", url)
	client, err := evm.NewClient(ctx, url, dial)
	if err != nil {
		return nil, &core.ConnectionError{Endpoint: url, Err: err}
	}
	return &Connection{
		url:    url,
		client: client,
		legacy: isPollingTransport(url),
		log:    log,
	}, nil
}

func (c *Connection) Endpoint() string {
	return c.url
}

// LegacyPolling is true for plain http endpoints, which cannot push heads.
func (c *Connection) LegacyPolling() bool {
	return c.legacy
}

func (c *Connection) GetClient() *evm.Client {
	return c.client
}

func (c *Connection) Close() {
	c.client.Close()
}

func isPollingTransport(url string) bool {
	u := strings.ToLower(url)
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func connOf(conn core.Connection) (*Connection, error) {
	c, ok := conn.(*Connection)
	if !ok || c == nil {
		return nil, fmt.Errorf("unsupported connection type %T", conn)
	}
	return c, nil
}
