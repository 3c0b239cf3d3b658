// Package fusion maintains the running orientation estimate.
//
// Pure computation: the filter consumes raw samples and timestamps carried on
// them, never a clock of its own, so replaying a sample sequence from the
// same initial state reproduces the output bit for bit.
package fusion

import (
	"math"
	"time"

	"lookpoint-fw/internal/imu"
)

type Config struct {
	// Tau is the complementary blend time constant in seconds. Larger
	// values trust the gyro longer before the accel estimate pulls the
	// attitude back.
	Tau float64
	// DriftLimitDeg is the tolerated angle between predicted and measured
	// gravity before an update counts as divergent.
	DriftLimitDeg float64
	// DriftWindow is the number of consecutive divergent updates before
	// the filter state is reset to the accel-only attitude.
	DriftWindow int
}

// OrientationSample is one fused orientation estimate. Immutable once
// produced; consumed exactly once by the telemetry notifier or discarded.
type OrientationSample struct {
	At time.Time

	// Unit quaternion, w x y z.
	Q [4]float64

	RollDeg  float64
	PitchDeg float64
	YawDeg   float64

	Valid bool
}

// Filter is a quaternion complementary filter. Working in the quaternion
// domain keeps the state free of Euler singularities; only the exported
// angles need a clamp near +/-90 degrees pitch.
type Filter struct {
	cfg Config

	q      [4]float64
	have   bool
	lastAt time.Time

	driftCount int
}

func NewFilter(cfg Config) *Filter {
	if cfg.Tau <= 0 {
		cfg.Tau = 0.5
	}
	if cfg.DriftLimitDeg <= 0 {
		cfg.DriftLimitDeg = 25
	}
	if cfg.DriftWindow <= 0 {
		cfg.DriftWindow = 50
	}
	return &Filter{cfg: cfg}
}

// Reset discards all filter state. The next valid sample re-initializes the
// attitude from the accelerometer alone.
func (f *Filter) Reset() {
	f.q = [4]float64{}
	f.have = false
	f.lastAt = time.Time{}
	f.driftCount = 0
}

// Update advances the filter with one raw sample and returns the new
// orientation estimate.
//
// An invalid sample (sampler holding last-known-good across bus faults)
// freezes the state and propagates Valid=false so the notifier can apply its
// staleness policy.
func (f *Filter) Update(s imu.Sample) OrientationSample {
	if !s.Valid {
		return f.emit(s.At, false)
	}

	dt := 0.0
	if f.have && !f.lastAt.IsZero() {
		dt = s.At.Sub(f.lastAt).Seconds()
	}
	f.lastAt = s.At
	if dt <= 0 || dt > 0.5 {
		// Unknown or absurd interval (startup, scheduler stall): the gyro
		// integral is meaningless, fall back to the accel attitude.
		dt = 0
	}

	an := math.Sqrt(s.Ax*s.Ax + s.Ay*s.Ay + s.Az*s.Az)
	accelUsable := an > 0.5 && an < 1.5 // near 1g; freefall or shock otherwise

	if !f.have || dt == 0 {
		if !accelUsable {
			return f.emit(s.At, f.have)
		}
		f.q = attitudeFromAccel(s.Ax, s.Ay, s.Az)
		f.have = true
		f.driftCount = 0
		return f.emit(s.At, true)
	}

	// Gyro propagation: q' = q + 0.5*dt * q (x) (0, w).
	wx := s.Gx * math.Pi / 180
	wy := s.Gy * math.Pi / 180
	wz := s.Gz * math.Pi / 180

	if accelUsable {
		// Complementary correction in the vector domain: steer the rates
		// toward the measured gravity direction.
		ax, ay, az := s.Ax/an, s.Ay/an, s.Az/an
		vx, vy, vz := f.predictedGravity()

		// Error is the cross product measured x predicted.
		ex := ay*vz - az*vy
		ey := az*vx - ax*vz
		ez := ax*vy - ay*vx

		gain := 2.0 / f.cfg.Tau
		wx += gain * ex
		wy += gain * ey
		wz += gain * ez

		f.trackDrift(ax, ay, az, vx, vy, vz)
	}

	qw, qx, qy, qz := f.q[0], f.q[1], f.q[2], f.q[3]
	f.q[0] = qw + 0.5*dt*(-qx*wx-qy*wy-qz*wz)
	f.q[1] = qx + 0.5*dt*(qw*wx+qy*wz-qz*wy)
	f.q[2] = qy + 0.5*dt*(qw*wy-qx*wz+qz*wx)
	f.q[3] = qz + 0.5*dt*(qw*wz+qx*wy-qy*wx)

	if !f.normalize() {
		// Degenerate quaternion is a numeric failure, not a data problem.
		// Rebuild from the accelerometer if we can, otherwise start over.
		if accelUsable {
			f.q = attitudeFromAccel(s.Ax, s.Ay, s.Az)
		} else {
			f.Reset()
			return f.emit(s.At, false)
		}
	}

	return f.emit(s.At, true)
}

func (f *Filter) trackDrift(ax, ay, az, vx, vy, vz float64) {
	dot := ax*vx + ay*vy + az*vz
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	errDeg := math.Acos(dot) * 180 / math.Pi
	if errDeg > f.cfg.DriftLimitDeg {
		f.driftCount++
		if f.driftCount >= f.cfg.DriftWindow {
			f.q = attitudeFromAccel(ax, ay, az)
			f.driftCount = 0
		}
		return
	}
	f.driftCount = 0
}

// predictedGravity returns the body-frame direction the filter currently
// expects gravity from, i.e. the third row of the rotation matrix of q.
func (f *Filter) predictedGravity() (x, y, z float64) {
	qw, qx, qy, qz := f.q[0], f.q[1], f.q[2], f.q[3]
	x = 2 * (qx*qz - qw*qy)
	y = 2 * (qw*qx + qy*qz)
	z = qw*qw - qx*qx - qy*qy + qz*qz
	return x, y, z
}

func (f *Filter) normalize() bool {
	n := math.Sqrt(f.q[0]*f.q[0] + f.q[1]*f.q[1] + f.q[2]*f.q[2] + f.q[3]*f.q[3])
	if n < 1e-6 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	f.q[0] /= n
	f.q[1] /= n
	f.q[2] /= n
	f.q[3] /= n
	return true
}

func (f *Filter) emit(at time.Time, valid bool) OrientationSample {
	out := OrientationSample{At: at, Q: f.q, Valid: valid && f.have}
	out.RollDeg, out.PitchDeg, out.YawDeg = eulerFromQuat(f.q)
	return out
}

// attitudeFromAccel builds the roll/pitch-only attitude whose predicted
// gravity matches the measured accel vector; yaw is zero since there is no
// heading reference.
func attitudeFromAccel(ax, ay, az float64) [4]float64 {
	roll := math.Atan2(ay, az)
	pitch := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)

	// Yaw = 0: q = q_pitch (x) q_roll in ZYX convention.
	return [4]float64{
		cp * cr,
		cp * sr,
		sp * cr,
		-sp * sr,
	}
}

func eulerFromQuat(q [4]float64) (rollDeg, pitchDeg, yawDeg float64) {
	qw, qx, qy, qz := q[0], q[1], q[2], q[3]

	roll := math.Atan2(2*(qw*qx+qy*qz), 1-2*(qx*qx+qy*qy))

	// Clamp keeps asin defined when numeric noise pushes the argument past
	// +/-1 at the vertical (gimbal) poses.
	sinp := 2 * (qw*qy - qz*qx)
	if sinp > 1 {
		sinp = 1
	} else if sinp < -1 {
		sinp = -1
	}
	pitch := math.Asin(sinp)

	yaw := math.Atan2(2*(qw*qz+qx*qy), 1-2*(qy*qy+qz*qz))

	const rad2deg = 180 / math.Pi
	return roll * rad2deg, pitch * rad2deg, yaw * rad2deg
}
