package parallel

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}

	var counter int64
	n := 1000
	seen := make([]int32, n)
	For(n, cfg, func(i int) {
		atomic.AddInt64(&counter, 1)
		atomic.AddInt32(&seen[i], 1)
	})

	assert.Equal(t, int64(n), counter)
	for i, c := range seen {
		require.Equal(t, int32(1), c, "index %d visited %d times", i, c)
	}
}

func TestForRange_Chunks(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 10}

	var mu sync.Mutex
	var chunks [][2]int
	ForRange(100, cfg, func(start, end int) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, [2]int{start, end})
	})

	total := 0
	for _, c := range chunks {
		assert.Less(t, c[0], c[1])
		total += c[1] - c[0]
	}
	assert.Equal(t, 100, total)
	assert.LessOrEqual(t, len(chunks), 3)
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	calls := 0
	ForRange(100, cfg, func(start, end int) {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
	})
	assert.Equal(t, 1, calls)
}

func TestFor_SmallN(t *testing.T) {
	cfg := DefaultConfig()

	calls := 0
	ForRange(cfg.MinChunkSize-1, cfg, func(_, _ int) { calls++ })
	assert.Equal(t, 1, calls)

	ForRange(0, cfg, func(_, _ int) { t.Fatal("called for n=0") })
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 1 << 16

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, cfg, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			})
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfgSeq := cfg
		cfgSeq.Enabled = false
		for i := 0; i < b.N; i++ {
			var sum int64
			For(n, cfgSeq, func(i int) {
				atomic.AddInt64(&sum, int64(i))
			})
		}
	})
}
