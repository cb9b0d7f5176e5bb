// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Serve runs the reader of t alongside fn and closes t once fn returns.
//
// Cancelling ctx cancels fn, but the reader keeps the link open until fn has
// returned, so final commands sent on a detached context still reach the bus
// and see their replies. A reader failure cancels fn.
func Serve(ctx context.Context, t Transport, fn func(ctx context.Context) error) error {
	readerCtx, stopReader := context.WithCancel(context.WithoutCancel(ctx))
	defer stopReader()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return t.Run(readerCtx)
	})
	g.Go(func() error {
		defer t.Close()
		defer stopReader()
		return fn(gctx)
	})

	return g.Wait()
}
