// Package sim generates deterministic inputs for running the firmware
// without hardware: a synthetic head-motion source for the sampler and a
// scripted host driving the simulated wireless controller.
package sim

import (
	"math"
	"time"

	"lookpoint-fw/internal/imu"
)

// Motion is a deterministic head-motion profile: a nod/shake Lissajous in
// roll and pitch. Deterministic in wall time, so two runs over the same
// clock produce the same samples.
type Motion struct {
	Period time.Duration
	AmpDeg float64
}

// Sample returns the measurement an ideal sensor would report at now.
func (m Motion) Sample(now time.Time) imu.Sample {
	period := m.Period
	if period <= 0 {
		period = 8 * time.Second
	}
	amp := m.AmpDeg
	if amp <= 0 {
		amp = 30
	}

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase

	// Roll sweeps the full amplitude; pitch runs at double rate and half
	// amplitude so the path never repeats within one period.
	rollDeg := amp * math.Sin(w)
	pitchDeg := 0.5 * amp * math.Sin(2*w)

	roll := rollDeg * math.Pi / 180
	pitch := pitchDeg * math.Pi / 180

	// Gravity in the body frame for this attitude.
	ax := -math.Sin(pitch)
	ay := math.Cos(pitch) * math.Sin(roll)
	az := math.Cos(pitch) * math.Cos(roll)

	// Body rates are the analytic derivatives in deg/s.
	rate := 2 * math.Pi / period.Seconds()
	gx := amp * rate * math.Cos(w)
	gy := 0.5 * amp * 2 * rate * math.Cos(2*w)

	return imu.Sample{
		At: now,
		Ax: ax, Ay: ay, Az: az,
		Gx: gx, Gy: gy, Gz: 0,
		Valid: true,
	}
}

// Reader adapts Motion to the sampler's bus interface. Reads never fail.
type Reader struct {
	Motion Motion

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (r *Reader) Read() (imu.Sample, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	return r.Motion.Sample(now), nil
}
