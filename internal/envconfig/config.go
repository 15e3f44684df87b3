// Package envconfig reads the BORN_* environment variables configuring the engine and
// its backends.
//
// Every getter reads the environment on each call, so tests can use t.Setenv.
package envconfig

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

var (
	// Backend is the name of the preferred backend. Empty selects the highest priority
	// backend that initializes.
	Backend = String("BORN_BACKEND")

	// Debug enables the per-kernel buffer leak check.
	Debug = Bool("BORN_DEBUG")

	// CPUMaxBytes limits the bytes the CPU backend may hold, e.g. "512MiB". 0 means no limit.
	CPUMaxBytes = Bytes("BORN_CPU_MAX_BYTES", 0)

	// WebGPUBatch is the number of kernel dispatches the WebGPU backend records before
	// submitting a command buffer.
	WebGPUBatch = Uint("BORN_WEBGPU_BATCH", 32)
)

// NumThreads is the number of goroutines CPU kernels split work across. Configurable via
// BORN_NUM_THREADS, defaults to the number of CPUs.
func NumThreads() int {
	return int(Uint("BORN_NUM_THREADS", uint(runtime.NumCPU()))())
}

// Var returns an environment variable stripped of surrounding quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String returns a getter for the variable k.
func String(k string) func() string {
	return func() string {
		return Var(k)
	}
}

// BoolWithDefault returns a getter for the boolean variable k. A set but unparsable
// value counts as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a getter for the boolean variable k, false by default.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a getter for the unsigned integer variable key.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				klog.Warningf("invalid environment variable %s=%q, using default %d", key, s, defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Bytes returns a getter for a byte size variable, accepting humanized values such as
// "64MB" or "1.5GiB".
func Bytes(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := humanize.ParseBytes(s); err != nil {
				klog.Warningf("invalid environment variable %s=%q, using default %s", key, s, humanize.IBytes(defaultValue))
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// EnvVar describes one configuration variable and its current value.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every configuration variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"BORN_BACKEND":       {"BORN_BACKEND", Backend(), "Preferred backend (default: highest priority available)"},
		"BORN_DEBUG":         {"BORN_DEBUG", Debug(), "Check every kernel for leaked buffers"},
		"BORN_CPU_MAX_BYTES": {"BORN_CPU_MAX_BYTES", humanize.IBytes(CPUMaxBytes()), "Memory limit of the CPU backend (0: unlimited)"},
		"BORN_NUM_THREADS":   {"BORN_NUM_THREADS", NumThreads(), "Goroutines used by CPU kernels"},
		"BORN_WEBGPU_BATCH":  {"BORN_WEBGPU_BATCH", WebGPUBatch(), "Dispatches per WebGPU command buffer"},
	}
}

// Values returns AsMap's values rendered as strings.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		switch x := v.Value.(type) {
		case string:
			vals[k] = x
		case bool:
			vals[k] = strconv.FormatBool(x)
		case int:
			vals[k] = strconv.Itoa(x)
		case uint:
			vals[k] = strconv.FormatUint(uint64(x), 10)
		default:
			klog.Warningf("envconfig: unexpected value type %T for %s", x, k)
		}
	}
	return vals
}
