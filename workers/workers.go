// Copyright 2020 Stafi Protocol
// SPDX-License-Identifier: LGPL-3.0-only

package workers

import (
	"context"

	"dapp-bootstrap/core"
)

// Blocks runs the block observer requested by the latest StartBlockPolling
// or StartBlockListening. Starting one stops the other, so at most one block
// observer is active.
func Blocks(w core.Watcher) core.Task {
	return func(ctx context.Context, env *core.Env) error {
		return env.TakeLatest(ctx, core.Is(core.KindStartBlockPolling, core.KindStartBlockListening), func(scope *core.Scope, sig core.Signal) error {
			switch req := sig.(type) {
			case core.StartBlockPolling:
				return w.PollBlocks(scope.Context(), req)
			case core.StartBlockListening:
				return w.ListenBlocks(scope.Context(), req)
			default:
				return nil
			}
		})
	}
}

// Accounts runs the account poller requested by the latest StartAccountPolling.
func Accounts(w core.Watcher) core.Task {
	return func(ctx context.Context, env *core.Env) error {
		return env.TakeLatest(ctx, core.Is(core.KindStartAccountPolling), func(scope *core.Scope, sig core.Signal) error {
			return w.PollAccounts(scope.Context(), sig.(core.StartAccountPolling))
		})
	}
}
