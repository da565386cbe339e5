// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package core

import (
	"fmt"
	"sync"

	log "github.com/ChainSafe/log15"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// ContractEntry binds a contract config to a callable handle.
type ContractEntry struct {
	Name     string
	Address  common.Address
	ABI      abi.ABI
	Contract *bind.BoundContract
	Events   []EventSubscription
}

// Registry holds the connection and the bound contracts of the container.
type Registry struct {
	conn      Connection
	contracts map[string]*ContractEntry
	order     []string
	lock      *sync.RWMutex
	log       log.Logger
}

func NewRegistry(log log.Logger) *Registry {
	return &Registry{
		contracts: make(map[string]*ContractEntry),
		lock:      &sync.RWMutex{},
		log:       log,
	}
}

func (r *Registry) SetConnection(conn Connection) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.conn = conn
}

// Connection returns nil until a bootstrap connected.
func (r *Registry) Connection() Connection {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.conn
}

// AddContract registers entry. A second entry under the same name replaces
// the first and keeps its position.
func (r *Registry) AddContract(entry *ContractEntry) error {
	if entry == nil || entry.Name == "" {
		return &BindingError{Contract: "", Err: fmt.Errorf("contract entry without name")}
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exist := r.contracts[entry.Name]; exist {
		r.log.Warn("Replacing contract binding", "name", entry.Name, "address", entry.Address)
	} else {
		r.order = append(r.order, entry.Name)
	}
	r.log.Debug("Registering contract", "name", entry.Name, "address", entry.Address)
	r.contracts[entry.Name] = entry
	return nil
}

func (r *Registry) Contract(name string) (*ContractEntry, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	c, ok := r.contracts[name]
	return c, ok
}

// Contracts lists the entries in registration order.
func (r *Registry) Contracts() []*ContractEntry {
	r.lock.RLock()
	defer r.lock.RUnlock()
	out := make([]*ContractEntry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.contracts[name])
	}
	return out
}

func (r *Registry) DeleteContract(name string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exist := r.contracts[name]; !exist {
		return
	}
	delete(r.contracts, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
