package synclog

import "errors"

// ErrDeviceNotFound is returned for operations on an unregistered device.
var ErrDeviceNotFound = errors.New("device not found")
