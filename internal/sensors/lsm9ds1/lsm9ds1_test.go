package lsm9ds1

import (
	"errors"
	"testing"
	"time"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func quietSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func TestNew_WhoAmIMismatch(t *testing.T) {
	quietSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0xEA}}}
	_, err := newWithIO(f)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestNew_WritesExpectedInitRegisters(t *testing.T) {
	quietSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	_, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	var sawReset, sawInc, sawGyro, sawAccel bool
	for _, w := range f.writes {
		if w.reg == regCtrl8 && w.val == bitReset {
			sawReset = true
		}
		if w.reg == regCtrl8 && w.val == bitAddrInc {
			sawInc = true
		}
		if w.reg == regCtrl1G && w.val == ctrl1GVal {
			sawGyro = true
		}
		if w.reg == regCtrl6XL && w.val == ctrl6XLVal {
			sawAccel = true
		}
	}
	if !sawReset {
		t.Fatalf("expected reset write to CTRL_REG8")
	}
	if !sawInc {
		t.Fatalf("expected addr-inc write to CTRL_REG8")
	}
	if !sawGyro || !sawAccel {
		t.Fatalf("expected gyro+accel config writes")
	}
}

func TestRead_ScalesAndByteOrder(t *testing.T) {
	quietSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}

	// Little-endian: 0x4000 = 16384.
	// accel 16384 * 0.122 mg = ~2.0g; gyro 16384 * 8.75 mdps = ~143.4 dps.
	f.regs[regOutXLG] = []byte{
		0x00, 0x40, // gx
		0x00, 0x00, // gy
		0x00, 0xC0, // gz = -16384
	}
	f.regs[regOutXLXL] = []byte{
		0x00, 0x40, // ax
		0x00, 0x00, // ay
		0x00, 0xC0, // az = -16384
	}

	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	s, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if s.Ax < 1.99 || s.Ax > 2.01 {
		t.Fatalf("Ax=%v want ~2.0", s.Ax)
	}
	if s.Az > -1.99 || s.Az < -2.01 {
		t.Fatalf("Az=%v want ~-2.0", s.Az)
	}
	if s.Gx < 143.3 || s.Gx > 143.5 {
		t.Fatalf("Gx=%v want ~143.4", s.Gx)
	}
	if s.Gz > -143.3 || s.Gz < -143.5 {
		t.Fatalf("Gz=%v want ~-143.4", s.Gz)
	}
	if !s.Valid {
		t.Fatalf("expected valid sample")
	}
}

func TestRead_BusErrorPropagates(t *testing.T) {
	quietSleep(t)

	f := &fakeI2C{
		regs:       map[byte][]byte{regWhoAmI: {whoAmIVal}},
		readErrFor: map[byte]error{},
	}
	f.regs[regOutXLG] = make([]byte, 6)
	f.regs[regOutXLXL] = make([]byte, 6)

	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	f.readErrFor[regOutXLXL] = errors.New("bus stuck")
	if _, err := d.Read(); err == nil {
		t.Fatalf("expected error")
	}
}
