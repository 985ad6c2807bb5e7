//go:build !linux

package trafficvision

import "unsafe"

const sizeofMask = unsafe.Sizeof(uintptr(0))

// SetCPUAffinity is not supported on this platform
func SetCPUAffinity(mask uintptr) error {
	return ErrAffinityUnsupported
}

// GetCPUAffinity is not supported on this platform
func GetCPUAffinity() (uintptr, error) {
	return 0, ErrAffinityUnsupported
}
