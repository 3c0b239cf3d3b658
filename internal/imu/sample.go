package imu

import "time"

// Sample is one raw IMU reading handed to the fusion engine.
//
// Valid is false while the sampler is holding a stale value across bus
// faults; downstream consumers must treat such samples as last-known-good,
// not fresh data.
type Sample struct {
	At time.Time

	// Accel in G.
	Ax, Ay, Az float64
	// Gyro in deg/s.
	Gx, Gy, Gz float64

	Valid bool
}
