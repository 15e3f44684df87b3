// Package parallel splits CPU kernel loops across goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Maximum number of goroutines running at once.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	return NewConfig(runtime.NumCPU())
}

// NewConfig returns a Config using numWorkers goroutines.
func NewConfig(numWorkers int) Config {
	return Config{
		Enabled:      numWorkers > 1,
		NumWorkers:   max(numWorkers, 1),
		MinChunkSize: 4096, // Elementwise kernels are memory bound below this.
	}
}

// ForRange calls f on consecutive [start, end) chunks covering [0, n).
// Falls back to a single sequential call if parallelism is disabled or n is too small.
func ForRange(n int, cfg Config, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < 2*cfg.MinChunkSize {
		f(0, n)
		return
	}

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			f(start, end)
			return nil
		})
	}
	_ = g.Wait()
}

// For executes f(i) for i in [0, n) with optional parallelism.
func For(n int, cfg Config, f func(i int)) {
	ForRange(n, cfg, func(start, end int) {
		for i := start; i < end; i++ {
			f(i)
		}
	})
}
