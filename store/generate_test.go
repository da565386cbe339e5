package store_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"dapp-bootstrap/core"
	"dapp-bootstrap/models/statemodel"
	"dapp-bootstrap/store"

	"github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func testLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

type fakeConn struct {
	lock   sync.Mutex
	closed bool
}

func (c *fakeConn) Endpoint() string    { return "ws://node" }
func (c *fakeConn) LegacyPolling() bool { return false }
func (c *fakeConn) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

type fakeBackend struct {
	conn       *fakeConn
	connectErr error
	dispatcher core.StoreAPI
}

func (b *fakeBackend) SetDispatcher(d core.StoreAPI) { b.dispatcher = d }

func (b *fakeBackend) Connect(ctx context.Context, opts core.ConnectOptions) (core.Connection, error) {
	if b.connectErr != nil {
		return nil, b.connectErr
	}
	return b.conn, nil
}

func (b *fakeBackend) NetworkID(ctx context.Context, conn core.Connection) (uint64, error) {
	return 5777, nil
}

func (b *fakeBackend) FetchAccounts(ctx context.Context, conn core.Connection) ([]common.Address, error) {
	accounts := []common.Address{alice}
	return accounts, b.dispatcher.Dispatch(core.AccountsFetched{Accounts: accounts})
}

func (b *fakeBackend) FetchBalances(ctx context.Context, conn core.Connection, accounts []common.Address) (map[common.Address]*big.Int, error) {
	return map[common.Address]*big.Int{}, nil
}

func (b *fakeBackend) BindContract(ctx context.Context, conn core.Connection, cfg core.ContractConfig, events []core.EventSubscription) (*core.ContractEntry, error) {
	return &core.ContractEntry{Name: cfg.Name, Address: cfg.Address, Events: events}, nil
}

// blockingWatcher records which workers are running.
type blockingWatcher struct {
	lock    sync.Mutex
	running map[string]int
}

func newBlockingWatcher() *blockingWatcher {
	return &blockingWatcher{running: make(map[string]int)}
}

func (w *blockingWatcher) run(ctx context.Context, name string) error {
	w.lock.Lock()
	w.running[name]++
	w.lock.Unlock()
	<-ctx.Done()
	w.lock.Lock()
	w.running[name]--
	w.lock.Unlock()
	return ctx.Err()
}

func (w *blockingWatcher) count(name string) int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.running[name]
}

func (w *blockingWatcher) PollBlocks(ctx context.Context, req core.StartBlockPolling) error {
	return w.run(ctx, "poll")
}

func (w *blockingWatcher) ListenBlocks(ctx context.Context, req core.StartBlockListening) error {
	return w.run(ctx, "listen")
}

func (w *blockingWatcher) PollAccounts(ctx context.Context, req core.StartAccountPolling) error {
	return w.run(ctx, "accounts")
}

func baseConfig(backend *fakeBackend) store.Config {
	return store.Config{
		Options: core.Options{
			Connection: core.ConnectOptions{URL: "ws://node"},
			Contracts: []core.ContractConfig{
				{Name: "Token", Address: common.HexToAddress("0x01")},
			},
			Events: map[string][]core.EventSubscription{"Token": {{Name: "Transfer"}}},
		},
		Backend: backend,
		Logger:  testLogger(),
	}
}

func generate(t *testing.T, cfg store.Config) *store.Container {
	c, err := store.Generate(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func waitInitialized(t *testing.T, c *store.Container) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.WaitInitialized(ctx)
}

func TestGenerateRequiresBackend(t *testing.T) {
	_, err := store.Generate(store.Config{})
	assert.Equal(t, store.ErrNoBackend, err)
}

func TestGenerateDefaults(t *testing.T) {
	c := generate(t, store.Config{Backend: &fakeBackend{}, Logger: testLogger()})

	opts := c.Options()
	assert.Equal(t, core.DefaultFallbackURL, opts.Connection.Endpoint())
	assert.Equal(t, core.DefaultBlocksPeriod, opts.Polls.Blocks)

	state := c.GetState()
	for _, key := range []string{
		statemodel.NamespaceConnection,
		statemodel.NamespaceAccounts,
		statemodel.NamespaceBalances,
		statemodel.NamespaceContracts,
		statemodel.NamespaceStatus,
		statemodel.NamespaceBlock,
	} {
		assert.Contains(t, state, key)
	}
}

func TestPreloadedContractsState(t *testing.T) {
	c := generate(t, baseConfig(&fakeBackend{conn: &fakeConn{}}))

	contracts := statemodel.Contracts(c.GetState())
	assert.Equal(t, statemodel.ContractsState{
		"Token": {Initialized: false, Synced: false, Events: []string{"Transfer"}},
	}, contracts)
}

func TestInitialStateDeepMerge(t *testing.T) {
	cfg := baseConfig(&fakeBackend{conn: &fakeConn{}})
	cfg.Reducers = map[string]core.Reducer{
		"settings": func(state interface{}, sig core.Signal) interface{} { return state },
	}
	cfg.InitialState = core.State{
		statemodel.NamespaceContracts: map[string]interface{}{
			"Token": map[string]interface{}{"synced": true},
		},
		"settings": "dark",
	}
	c := generate(t, cfg)

	state := c.GetState()
	assert.Equal(t, statemodel.ContractState{Synced: true, Events: []string{"Transfer"}}, statemodel.Contracts(state)["Token"])
	assert.Equal(t, "dark", state["settings"])
}

func TestInitialStateDeepMergeTypedRecords(t *testing.T) {
	cfg := baseConfig(&fakeBackend{conn: &fakeConn{}})
	cfg.Options.Contracts = append(cfg.Options.Contracts, core.ContractConfig{Name: "Vault", Address: common.HexToAddress("0x02")})
	cfg.InitialState = core.State{
		statemodel.NamespaceContracts: statemodel.ContractsState{
			"Vault": {Synced: true, SyncedBlock: 9},
			"Other": {Synced: true},
		},
	}
	c := generate(t, cfg)

	contracts := statemodel.Contracts(c.GetState())
	require.Len(t, contracts, 3)
	assert.Equal(t, statemodel.ContractState{Events: []string{"Transfer"}}, contracts["Token"])
	assert.True(t, contracts["Vault"].Synced)
	assert.Equal(t, uint64(9), contracts["Vault"].SyncedBlock)
	assert.True(t, contracts["Other"].Synced)
}

func TestCallerReducerShadowsReserved(t *testing.T) {
	cfg := baseConfig(&fakeBackend{conn: &fakeConn{}})
	cfg.Reducers = map[string]core.Reducer{
		statemodel.NamespaceBlock: func(state interface{}, sig core.Signal) interface{} { return "mine" },
	}
	c := generate(t, cfg)
	assert.Equal(t, "mine", c.GetState()[statemodel.NamespaceBlock])
}

func TestInitializeReachesInitialized(t *testing.T) {
	backend := &fakeBackend{conn: &fakeConn{}}
	c := generate(t, baseConfig(backend))
	require.NotNil(t, backend.dispatcher)

	require.NoError(t, c.Initialize())
	require.NoError(t, waitInitialized(t, c))

	state := c.GetState()
	assert.True(t, statemodel.Status(state).Initialized)
	assert.Equal(t, statemodel.AccountsState{alice}, statemodel.Accounts(state))
	require.NotNil(t, c.Registry.Connection())
	entry, ok := c.Registry.Contract("Token")
	require.True(t, ok)
	assert.Equal(t, []core.EventSubscription{{Name: "Transfer"}}, entry.Events)

	c.Stop()
	assert.True(t, backend.conn.isClosed())
	assert.NoError(t, c.Wait())
}

func TestInitializeFailure(t *testing.T) {
	c := generate(t, baseConfig(&fakeBackend{connectErr: errors.New("refused")}))

	require.NoError(t, c.Initialize())
	err := waitInitialized(t, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
	assert.True(t, statemodel.Status(c.GetState()).Failed)
}

func TestWorkersStartAfterBootstrap(t *testing.T) {
	watcher := newBlockingWatcher()
	cfg := baseConfig(&fakeBackend{conn: &fakeConn{}})
	cfg.Watcher = watcher
	cfg.Options.Polls.Accounts = time.Second
	c := generate(t, cfg)

	require.NoError(t, c.Initialize())
	require.NoError(t, waitInitialized(t, c))
	require.Eventually(t, func() bool {
		return watcher.count("listen") == 1 && watcher.count("accounts") == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, watcher.count("poll"))

	c.Stop()
	require.NoError(t, c.Wait())
	assert.Equal(t, 0, watcher.count("listen"))
}

func TestCallerTasksAndMiddlewares(t *testing.T) {
	var lock sync.Mutex
	var seen []core.Kind
	record := func(api core.StoreAPI) func(next core.Dispatch) core.Dispatch {
		return func(next core.Dispatch) core.Dispatch {
			return func(sig core.Signal) error {
				lock.Lock()
				seen = append(seen, sig.Kind())
				lock.Unlock()
				return next(sig)
			}
		}
	}
	announce := func(ctx context.Context, env *core.Env) error {
		if _, err := env.Take(ctx, core.Is(core.KindInitialized)); err != nil {
			return err
		}
		return env.Put(core.Custom{Name: "app/ready"})
	}

	cfg := baseConfig(&fakeBackend{conn: &fakeConn{}})
	cfg.Middlewares = []core.Middleware{record}
	cfg.Tasks = []core.Task{announce}
	c := generate(t, cfg)

	require.NoError(t, c.Initialize())
	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == core.KindCustom
	}, time.Second, 2*time.Millisecond)

	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, core.KindInitializing, seen[0])
	assert.Contains(t, seen, core.KindInitialized)
}

func TestDevToolsEnhancer(t *testing.T) {
	applied := 0
	devtools := func(next core.StoreCreator) core.StoreCreator {
		applied++
		return next
	}

	cfg := baseConfig(&fakeBackend{conn: &fakeConn{}})
	cfg.DevTools = devtools
	generate(t, cfg)
	assert.Equal(t, 1, applied)

	cfg.DisableDevTools = true
	generate(t, cfg)
	assert.Equal(t, 1, applied)

	cfg.DisableDevTools = false
	cfg.DevTools = core.TraceEnhancer(testLogger())
	c := generate(t, cfg)
	require.NoError(t, c.Initialize())
	assert.NoError(t, waitInitialized(t, c))
}

func TestContractsInitialState(t *testing.T) {
	opts := &core.Options{
		Contracts: []core.ContractConfig{{Name: "Token"}, {Name: "Vault"}},
		Events:    map[string][]core.EventSubscription{"Vault": {{Name: "Deposit"}, {Name: "Withdraw"}}},
	}
	assert.Equal(t, map[string]interface{}{
		"Token": map[string]interface{}{"initialized": false, "synced": false, "events": []interface{}{}},
		"Vault": map[string]interface{}{"initialized": false, "synced": false, "events": []interface{}{"Deposit", "Withdraw"}},
	}, store.ContractsInitialState(opts))
}
