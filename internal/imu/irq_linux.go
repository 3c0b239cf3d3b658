//go:build linux

package imu

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// DataReadyLine watches the sensor's interrupt pin through the GPIO
// character device. The edge handler does no bus work and takes no locks;
// it only fires the executor wake so the sampler reads ahead of its period.
type DataReadyLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// WatchDataReady requests the line with a rising-edge handler that calls
// wake. chipPath is e.g. /dev/gpiochip0.
func WatchDataReady(chipPath string, offset int, wake func()) (*DataReadyLine, error) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, fmt.Errorf("imu: open %s: %w", chipPath, err)
	}
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithConsumer("lookpoint-fw-imu"),
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { wake() }),
	)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("imu: request %s:%d: %w", chipPath, offset, err)
	}
	return &DataReadyLine{chip: chip, line: line}, nil
}

func (d *DataReadyLine) Close() error {
	if d == nil {
		return nil
	}
	err := d.line.Close()
	_ = d.chip.Close()
	return err
}
