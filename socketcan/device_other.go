//go:build !linux

package socketcan

import "errors"

func configureDevice(string, uint32) error {
	return errors.New("socketcan: device configuration is only supported on linux")
}
