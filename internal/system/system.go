package system

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/mem"
)

// ErrInsufficientMemory means an array will not fit in available memory.
var ErrInsufficientMemory = errors.New("not enough available memory")

// CheckMemory compares need bytes against the memory the OS reports as
// available. It returns the available amount, and ErrInsufficientMemory when
// need exceeds it.
func CheckMemory(need uint64) (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("reading memory statistics: %w", err)
	}
	if need > vm.Available {
		return vm.Available, fmt.Errorf("%w: need %s, have %s", ErrInsufficientMemory,
			humanize.IBytes(need), humanize.IBytes(vm.Available))
	}
	return vm.Available, nil
}

// FormatBytes renders n the way log lines report image sizes.
func FormatBytes(n uint64) string {
	return humanize.IBytes(n)
}
