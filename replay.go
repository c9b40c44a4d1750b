package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"gotibia/motion"
	"gotibia/proto"
	"gotibia/wire"
	"gotibia/world"
)

// replayAll replays every capture in paths, up to gs.ReplayParallel at a
// time, each into its own client. onReady sees each client before its
// replay starts.
func replayAll(ctx context.Context, paths []string, types world.ThingTypes, onReady func(*client)) error {
	order, err := byteOrder()
	if err != nil {
		return err
	}
	var key *wire.XTEAKey
	if gs.PcapXTEAKey != "" {
		k, err := parseXTEAKey(gs.PcapXTEAKey)
		if err != nil {
			return fmt.Errorf("settings PcapXTEAKey: %w", err)
		}
		key = &k
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	wg := sizedwaitgroup.New(gs.ReplayParallel)
	for _, path := range paths {
		if err := wg.AddWithContext(ctx); err != nil {
			break
		}
		go func(path string) {
			defer wg.Done()
			caps := newCaps()
			clock := motion.NewManualClock(time.Time{})
			c := newClient(clientOptions{
				name:  filepath.Base(path),
				caps:  caps,
				order: order,
				types: types,
				clock: clock,
			})
			c.framer.Checksum = caps.Enabled(proto.GameProtocolChecksum)
			if key != nil {
				if err := c.framer.SetKey(*key); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
					mu.Unlock()
					return
				}
			}
			if onReady != nil {
				onReady(c)
			}
			start := time.Now()
			err := replayPCAP(ctx, path, c, clock)
			saveStats(c.stats)
			if err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			logInfo("replay of %s done in %s", path, time.Since(start).Round(time.Millisecond))
			logInfo("%s", c.stats.summary())
		}(path)
	}
	wg.Wait()
	return errors.Join(errs...)
}
