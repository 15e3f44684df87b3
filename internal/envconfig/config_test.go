package envconfig

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackend(t *testing.T) {
	t.Setenv("BORN_BACKEND", "")
	assert.Equal(t, "", Backend())

	t.Setenv("BORN_BACKEND", ` "webgpu" `)
	assert.Equal(t, "webgpu", Backend())
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":      false,
		"1":     true,
		"true":  true,
		"0":     false,
		"false": false,
		"yes":   true, // unparsable counts as set
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("BORN_DEBUG", value)
			assert.Equal(t, want, Debug())
		})
	}
}

func TestBytes(t *testing.T) {
	cases := map[string]uint64{
		"":       0,
		"1024":   1024,
		"1KiB":   1024,
		"64MB":   64_000_000,
		"512MiB": 512 << 20,
		"bogus":  0,
	}
	for value, want := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("BORN_CPU_MAX_BYTES", value)
			assert.Equal(t, want, CPUMaxBytes())
		})
	}
}

func TestUint(t *testing.T) {
	t.Setenv("BORN_WEBGPU_BATCH", "")
	assert.Equal(t, uint(32), WebGPUBatch())

	t.Setenv("BORN_WEBGPU_BATCH", "8")
	assert.Equal(t, uint(8), WebGPUBatch())

	t.Setenv("BORN_WEBGPU_BATCH", "-1")
	assert.Equal(t, uint(32), WebGPUBatch())
}

func TestNumThreads(t *testing.T) {
	t.Setenv("BORN_NUM_THREADS", "")
	assert.Equal(t, runtime.NumCPU(), NumThreads())

	t.Setenv("BORN_NUM_THREADS", "3")
	assert.Equal(t, 3, NumThreads())
}

func TestValues(t *testing.T) {
	t.Setenv("BORN_DEBUG", "1")
	t.Setenv("BORN_CPU_MAX_BYTES", "1KiB")
	vals := Values()
	assert.Equal(t, "true", vals["BORN_DEBUG"])
	assert.Equal(t, "1.0 KiB", vals["BORN_CPU_MAX_BYTES"])
	assert.Len(t, vals, len(AsMap()))
}
