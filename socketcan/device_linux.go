//go:build linux

package socketcan

import (
	"fmt"

	"go.einride.tech/can/pkg/candevice"
)

func configureDevice(name string, bitrate uint32) error {
	dev, err := candevice.New(name)
	if err != nil {
		return fmt.Errorf("open device %s: %w", name, err)
	}

	isUp, err := dev.IsUp()
	if err != nil {
		return fmt.Errorf("device %s state: %w", name, err)
	}

	if isUp {
		if err := dev.SetDown(); err != nil {
			return fmt.Errorf("set device %s down: %w", name, err)
		}
	}

	if err := dev.SetBitrate(bitrate); err != nil {
		return fmt.Errorf("set device %s bitrate: %w", name, err)
	}

	if err := dev.SetUp(); err != nil {
		return fmt.Errorf("set device %s up: %w", name, err)
	}

	return nil
}
