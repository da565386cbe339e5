// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package evm

import (
	"dapp-bootstrap/chains"
	"dapp-bootstrap/core"
)

func (b *Backend) SetDispatcher(d core.StoreAPI) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.dispatcher = d
}

func (b *Backend) getDispatcher() chains.Dispatcher {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.dispatcher
}

// submit dispatches sig into the store, logging instead of failing.
func (b *Backend) submit(sig core.Signal) bool {
	d := b.getDispatcher()
	if d == nil {
		b.log.Warn("no dispatcher, signal dropped", "kind", sig.Kind())
		return false
	}
	if err := d.Dispatch(sig); err != nil {
		b.log.Error("failed to dispatch", "kind", sig.Kind(), "err", err)
		return false
	}
	return true
}

func (b *Backend) state() core.State {
	d := b.getDispatcher()
	if d == nil {
		return core.State{}
	}
	return d.GetState()
}
