package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

type DialFunc func(ctx context.Context, endpoint string) (*rpc.Client, error)

type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

func NewClient(ctx context.Context, endpoint string, dial DialFunc) (*Client, error) {
	if dial == nil {
		dial = rpc.DialContext
	}
	rpcClient, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

func (c *Client) GetEthClient() *ethclient.Client {
	return c.ethClient
}

func (c *Client) GetRpcClient() *rpc.Client {
	return c.rpcClient
}

// Accounts lists the accounts the node manages for the user.
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpcClient.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, account, nil)
}

func (c *Client) Close() {
	c.rpcClient.Close()
}
