package trafficvision

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrAffinityUnsupported is returned when CPU pinning is not available on
// the running platform
var ErrAffinityUnsupported = errors.New("cpu affinity not supported on " + runtime.GOOS)

// CPUCoreMask calculates the core mask by passing in the CPU core numbers as a
// slice, eg: []int{4,5,6,7}
func CPUCoreMask(cores []int) (uintptr, error) {

	var mask uintptr
	bits := int(8 * sizeofMask)

	for _, core := range cores {

		if core < 0 || core >= bits {
			return 0, fmt.Errorf("cpu core %d out of range [0,%d)", core, bits)
		}

		mask |= 1 << core
	}

	return mask, nil
}

// PinCores restricts the process to the given CPU cores.  An empty list
// leaves the affinity unchanged.
func PinCores(cores []int) error {

	if len(cores) == 0 {
		return nil
	}

	mask, err := CPUCoreMask(cores)

	if err != nil {
		return err
	}

	return SetCPUAffinity(mask)
}
