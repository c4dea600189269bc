package audio

import "fmt"

// SelectDevice resolves the configured device index to a DeviceInfo.
// A negative index means the system default device (nil return).
func SelectDevice(ctx Context, index int) (*DeviceInfo, error) {
	if index < 0 {
		return nil, nil
	}

	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}

	for i := range devices {
		if devices[i].Index == index {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("capture device index %d not found (%d devices)", index, len(devices))
}
