package vm

import (
	"io"
	"os"

	"github.com/wippyai/hostbridge/abi"
)

// Config sizes the embedded heap and routes its output.
type Config struct {
	// Stdout receives print and println output. Defaults to os.Stdout.
	Stdout io.Writer

	// InitialPages and MaxPages bound the linear memory in 64 KiB pages.
	// Capacity for MaxPages is reserved up front so the memory never moves.
	InitialPages uint32
	MaxPages     uint32

	// GCThreshold is the number of bytes allocated between automatic
	// collections.
	GCThreshold uint32
}

// Defaults for zero Config fields.
const (
	DefaultInitialPages = 16
	DefaultMaxPages     = 1024
	DefaultGCThreshold  = 1 << 20
)

func (c Config) withDefaults() Config {
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.InitialPages == 0 {
		c.InitialPages = DefaultInitialPages
	}
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
	// the first page is reserved for symbol cells
	if c.InitialPages < 2 {
		c.InitialPages = 2
	}
	if c.MaxPages < c.InitialPages {
		c.MaxPages = c.InitialPages
	}
	if c.MaxPages > 65536 {
		c.MaxPages = 65536
	}
	if c.GCThreshold == 0 {
		c.GCThreshold = DefaultGCThreshold
	}
	return c
}

// MaxBytes is the largest size the linear memory can grow to.
func (c Config) MaxBytes() uint64 {
	return uint64(c.withDefaults().MaxPages) * abi.PageSize
}
