package fusion

import (
	"math"
	"testing"
	"time"

	"lookpoint-fw/internal/imu"
)

func sampleAt(t0 time.Time, ms int, ax, ay, az, gx, gy, gz float64) imu.Sample {
	return imu.Sample{
		At: t0.Add(time.Duration(ms) * time.Millisecond),
		Ax: ax, Ay: ay, Az: az,
		Gx: gx, Gy: gy, Gz: gz,
		Valid: true,
	}
}

func TestUpdate_InitializesFromAccelLevel(t *testing.T) {
	f := NewFilter(Config{})
	t0 := time.Unix(0, 0)

	out := f.Update(sampleAt(t0, 0, 0, 0, 1, 0, 0, 0))
	if !out.Valid {
		t.Fatalf("expected valid output")
	}
	if math.Abs(out.RollDeg) > 0.01 || math.Abs(out.PitchDeg) > 0.01 {
		t.Fatalf("roll=%v pitch=%v want ~0", out.RollDeg, out.PitchDeg)
	}
}

func TestUpdate_InitializesFromAccelRolled(t *testing.T) {
	f := NewFilter(Config{})
	t0 := time.Unix(0, 0)

	// Gravity fully along +Y: 90 degrees roll.
	out := f.Update(sampleAt(t0, 0, 0, 1, 0, 0, 0, 0))
	if math.Abs(out.RollDeg-90) > 0.01 {
		t.Fatalf("roll=%v want ~90", out.RollDeg)
	}
}

func TestUpdate_PitchNearVerticalStaysFinite(t *testing.T) {
	f := NewFilter(Config{})
	t0 := time.Unix(0, 0)

	// Gravity fully along -X: nose straight up.
	out := f.Update(sampleAt(t0, 0, -1, 0, 0, 0, 0, 0))
	if math.IsNaN(out.PitchDeg) || math.IsNaN(out.RollDeg) || math.IsNaN(out.YawDeg) {
		t.Fatalf("NaN in euler output: %+v", out)
	}
	if math.Abs(out.PitchDeg-90) > 0.01 {
		t.Fatalf("pitch=%v want ~90", out.PitchDeg)
	}
}

func TestUpdate_GyroIntegrationRolls(t *testing.T) {
	// Long tau: trust the gyro, keep the accel correction tiny.
	f := NewFilter(Config{Tau: 1000})
	t0 := time.Unix(0, 0)

	f.Update(sampleAt(t0, 0, 0, 0, 1, 0, 0, 0))
	// 100 Hz, 90 deg/s about X for one second; the accel tracks the motion so
	// the gravity reference stays consistent with the gyro.
	var out OrientationSample
	for i := 1; i <= 100; i++ {
		roll := 90.0 * float64(i) / 100 * math.Pi / 180
		out = f.Update(sampleAt(t0, 10*i, 0, math.Sin(roll), math.Cos(roll), 90, 0, 0))
	}
	if math.Abs(out.RollDeg-90) > 3 {
		t.Fatalf("roll=%v want ~90 after integrating 90 deg/s for 1s", out.RollDeg)
	}
}

func TestUpdate_DeterministicReplay(t *testing.T) {
	t0 := time.Unix(0, 0)
	var seq []imu.Sample
	for i := 0; i < 500; i++ {
		// Deterministic pseudo-motion, no RNG.
		ax := 0.02 * math.Sin(float64(i)/7)
		ay := 0.05 * math.Cos(float64(i)/11)
		az := 1 - 0.01*math.Sin(float64(i)/5)
		gx := 20 * math.Sin(float64(i)/13)
		gy := -15 * math.Cos(float64(i)/17)
		gz := 5 * math.Sin(float64(i)/19)
		seq = append(seq, sampleAt(t0, 10*i, ax, ay, az, gx, gy, gz))
	}

	run := func() []OrientationSample {
		f := NewFilter(Config{Tau: 0.5})
		out := make([]OrientationSample, 0, len(seq))
		for _, s := range seq {
			out = append(out, f.Update(s))
		}
		return out
	}

	a := run()
	b := run()
	for i := range a {
		if a[i].Q != b[i].Q || a[i].RollDeg != b[i].RollDeg || a[i].PitchDeg != b[i].PitchDeg || a[i].YawDeg != b[i].YawDeg {
			t.Fatalf("replay diverged at sample %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestUpdate_InvalidSampleFreezesState(t *testing.T) {
	f := NewFilter(Config{})
	t0 := time.Unix(0, 0)

	f.Update(sampleAt(t0, 0, 0, 1, 0, 0, 0, 0)) // 90 deg roll
	before := f.q

	out := f.Update(imu.Sample{At: t0.Add(10 * time.Millisecond), Valid: false})
	if out.Valid {
		t.Fatalf("expected invalid output for invalid input")
	}
	if f.q != before {
		t.Fatalf("state changed on invalid sample")
	}
	if math.Abs(out.RollDeg-90) > 0.01 {
		t.Fatalf("roll=%v want last-known 90", out.RollDeg)
	}
}

func TestUpdate_DriftResetSnapsToAccel(t *testing.T) {
	f := NewFilter(Config{Tau: 1e9, DriftLimitDeg: 10, DriftWindow: 5})
	t0 := time.Unix(0, 0)

	f.Update(sampleAt(t0, 0, 0, 0, 1, 0, 0, 0))
	// Gyro claims a fast roll the accel never confirms. With the huge tau the
	// correction cannot counter it, so the estimate diverges until the drift
	// guard trips and snaps the state back to the accel attitude. Without the
	// guard the roll would sweep through 800 degrees over this run.
	maxRoll := 0.0
	for i := 1; i <= 200; i++ {
		out := f.Update(sampleAt(t0, 10*i, 0, 0, 1, 400, 0, 0))
		if r := math.Abs(out.RollDeg); r > maxRoll {
			maxRoll = r
		}
	}
	if maxRoll > 60 {
		t.Fatalf("max roll=%v, drift guard failed to bound divergence", maxRoll)
	}
}

func TestUpdate_FreefallSkipsCorrection(t *testing.T) {
	f := NewFilter(Config{})
	t0 := time.Unix(0, 0)

	f.Update(sampleAt(t0, 0, 0, 0, 1, 0, 0, 0))
	// Near-zero accel: no usable gravity reference, gyro-only propagation.
	out := f.Update(sampleAt(t0, 10, 0.01, 0, 0.01, 0, 0, 0))
	if !out.Valid {
		t.Fatalf("expected valid output during freefall")
	}
	if math.Abs(out.RollDeg) > 1 {
		t.Fatalf("roll=%v want ~0 (no correction applied)", out.RollDeg)
	}
}

func TestReset_ClearsState(t *testing.T) {
	f := NewFilter(Config{})
	t0 := time.Unix(0, 0)
	f.Update(sampleAt(t0, 0, 0, 1, 0, 0, 0, 0))
	f.Reset()
	out := f.Update(imu.Sample{At: t0.Add(time.Second), Valid: false})
	if out.Valid {
		t.Fatalf("expected invalid output after reset with no samples")
	}
}
