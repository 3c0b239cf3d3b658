//go:build !linux

package imu

import "fmt"

type DataReadyLine struct{}

func WatchDataReady(chipPath string, offset int, wake func()) (*DataReadyLine, error) {
	return nil, fmt.Errorf("imu: gpio data-ready not supported on this platform")
}

func (d *DataReadyLine) Close() error { return nil }
