// Command memstress hammers a shared pool with concurrent alloc/free/resize
// cycles and list churn, verifying per-block byte patterns as it goes. It
// exits non-zero on any corruption or invariant violation, which makes it
// usable as a soak test in CI.
//
// Usage:
//
//	memstress -capacity 1048576 -workers 8 -ops 10000 -list 2000 -v
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/memkit/list"
	"github.com/joshuapare/memkit/pool"
)

type config struct {
	capacity int
	workers  int
	ops      int
	minSize  int
	maxSize  int
	listOps  int
	seed     int64
	verbose  bool
}

func main() {
	cfg := parseFlags()

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(cfg); err != nil {
		slog.Error("stress run failed", "err", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flag.IntVar(&cfg.capacity, "capacity", 1<<20, "arena capacity in bytes")
	flag.IntVar(&cfg.workers, "workers", 8, "concurrent workers")
	flag.IntVar(&cfg.ops, "ops", 10000, "alloc/free cycles per worker")
	flag.IntVar(&cfg.minSize, "min", 16, "minimum block size")
	flag.IntVar(&cfg.maxSize, "max", 512, "maximum block size")
	flag.IntVar(&cfg.listOps, "list", 2000, "list insert/delete operations per list worker")
	flag.Int64Var(&cfg.seed, "seed", time.Now().UnixNano(), "base RNG seed")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging")
	flag.Parse()

	if cfg.maxSize < cfg.minSize {
		cfg.maxSize = cfg.minSize
	}
	return cfg
}

func run(cfg config) error {
	slog.Info("starting stress run",
		"capacity", cfg.capacity,
		"workers", cfg.workers,
		"ops", cfg.ops,
		"seed", cfg.seed)

	p := pool.New(cfg.capacity)
	defer p.Deinit()

	start := time.Now()

	var g errgroup.Group
	for w := 0; w < cfg.workers; w++ {
		w := w
		g.Go(func() error {
			return allocWorker(p, cfg, w)
		})
	}
	g.Go(func() error {
		return listWorker(p, cfg)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := checkQuiescent(p); err != nil {
		return err
	}

	stats := p.Stats()
	slog.Info("stress run complete",
		"elapsed", time.Since(start),
		"allocs", stats.AllocCalls,
		"frees", stats.FreeCalls,
		"resizes", stats.ResizeCalls,
		"failed_allocs", stats.FailedAllocs,
		"splits", stats.Splits,
		"coalesce_fwd", stats.CoalesceForward,
		"coalesce_bwd", stats.CoalesceBackward,
		"moved_resizes", stats.MovedResizes)
	return nil
}

// allocWorker runs alloc/fill/verify/free cycles with a worker-unique byte
// pattern. A nil allocation under contention is counted, not fatal.
func allocWorker(p *pool.Pool, cfg config, id int) error {
	pattern := byte(0x80 | id)
	rng := rand.New(rand.NewSource(cfg.seed + int64(id)))
	failed := 0

	for c := 0; c < cfg.ops; c++ {
		size := cfg.minSize + rng.Intn(cfg.maxSize-cfg.minSize+1)
		buf := p.Alloc(size)
		if buf == nil {
			failed++
			continue
		}
		for i := range buf {
			buf[i] = pattern
		}

		if c%4 == 0 {
			if next := p.Resize(buf, size/2+1); next != nil {
				buf = next
			}
		}

		for i := range buf {
			if buf[i] != pattern {
				return fmt.Errorf("worker %d: corrupt byte at %d in cycle %d", id, i, c)
			}
		}
		p.Free(buf)
	}

	slog.Debug("alloc worker done", "worker", id, "failed_allocs", failed)
	return nil
}

// listWorker churns a pool-backed list alongside the raw allocation workers.
func listWorker(p *pool.Pool, cfg config) error {
	l := list.New(p)
	defer l.Cleanup()

	rng := rand.New(rand.NewSource(cfg.seed ^ 0x5f5f))
	live := 0

	for c := 0; c < cfg.listOps; c++ {
		v := uint16(rng.Intn(1 << 16))
		if live > 0 && rng.Intn(3) == 0 {
			if err := l.Delete(v); err == nil {
				live--
			}
			continue
		}
		switch err := l.Insert(v); err {
		case nil:
			live++
		case list.ErrOutOfMemory:
			// Pool contention; drop some nodes and move on.
			l.Cleanup()
			live = 0
		default:
			return fmt.Errorf("list insert: %w", err)
		}
	}

	if got := l.Count(); got != live {
		return fmt.Errorf("list count mismatch: have %d want %d", got, live)
	}
	return nil
}

// checkQuiescent verifies the partition invariant once every worker is done:
// the descriptors must tile the arena exactly, and with all blocks freed the
// pool must be back to a single free span.
func checkQuiescent(p *pool.Pool) error {
	blocks := p.Blocks()
	next := 0
	for i, b := range blocks {
		if b.Offset != next {
			return fmt.Errorf("partition violated: block %d at %d, expected %d", i, b.Offset, next)
		}
		if i > 0 && b.Free && blocks[i-1].Free {
			return fmt.Errorf("adjacent free blocks at %d", b.Offset)
		}
		next = b.Offset + b.Size
	}
	if next != p.Capacity() {
		return fmt.Errorf("blocks cover %d bytes, capacity is %d", next, p.Capacity())
	}
	if free := p.FreeBytes(); free != p.Capacity() {
		return fmt.Errorf("leak: %d of %d bytes still allocated", p.Capacity()-free, p.Capacity())
	}
	slog.Debug("quiescent state verified", "blocks", len(blocks))
	return nil
}
