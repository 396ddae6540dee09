package can

import (
	"fmt"
	"runtime"
)

// Returned when no sensible CAN defaults exist for the local platform
var ErrUnsupportedSystem = fmt.Errorf("unsupported system : %v", runtime.GOOS)

// DefaultChannel returns the conventional CAN channel for this platform.
func DefaultChannel() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "can0", nil
	case "windows":
		return "PCAN_USBBUS1", nil
	default:
		return "", ErrUnsupportedSystem
	}
}

// DefaultInterface returns the conventional CAN driver for this platform.
func DefaultInterface() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "socketcan", nil
	case "windows":
		return "pcan", nil
	default:
		return "", ErrUnsupportedSystem
	}
}
