// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package store

import (
	"reflect"

	"dapp-bootstrap/core"

	"github.com/mitchellh/mapstructure"
)

// ContractsInitialState maps every configured contract to an empty contract
// record: not initialized, not synced, with its configured event names.
func ContractsInitialState(opts *core.Options) map[string]interface{} {
	out := make(map[string]interface{}, len(opts.Contracts))
	for _, cfg := range opts.Contracts {
		subs := opts.EventsFor(cfg.Name)
		events := make([]interface{}, 0, len(subs))
		for _, evt := range subs {
			events = append(events, evt.Name)
		}
		out[cfg.Name] = map[string]interface{}{
			"initialized": false,
			"synced":      false,
			"events":      events,
		}
	}
	return out
}

// mergeState deep merges override into base. Nested maps merge key by key,
// any other override value replaces the base value.
func mergeState(base, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if bm, ok := asMap(out[k]); ok {
			if om, ok := asMap(v); ok {
				out[k] = mergeState(bm, om)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// asMap returns v as an untyped tree level. Typed maps such as
// statemodel.ContractsState are decoded so they merge key by key too.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		return m, true
	case core.State:
		return m, true
	}
	if reflect.ValueOf(v).Kind() != reflect.Map {
		return nil, false
	}
	out := make(map[string]interface{})
	if err := mapstructure.Decode(v, &out); err != nil {
		return nil, false
	}
	return out, true
}
