package lsm9ds1

import (
	"fmt"
	"time"

	"lookpoint-fw/internal/i2c"
	"lookpoint-fw/internal/imu"
)

var sleep = time.Sleep

// Minimal LSM9DS1 accel/gyro driver.
//
// Only the AG die is used; the magnetometer sits at a separate address and
// the fusion filter has no heading reference anyway.
// - WHO_AM_I at 0x0F should return 0x68.
// - Output registers are little-endian and auto-increment with IF_ADD_INC.

const (
	addrDefault = 0x6B

	regWhoAmI = 0x0F
	whoAmIVal = 0x68

	regCtrl1G  = 0x10
	regCtrl6XL = 0x20
	regCtrl8   = 0x22
	regInt1    = 0x0C

	bitReset   = 0x01
	bitAddrInc = 0x04
	bitDrdyG   = 0x02

	// ODR 119 Hz for both dies; gyro FS 245 dps, accel FS 4g.
	ctrl1GVal  = 0x60
	ctrl6XLVal = 0x70

	regOutXLG  = 0x18 // gyro x,y,z low/high, 6 bytes
	regOutXLXL = 0x28 // accel x,y,z low/high, 6 bytes
)

type Device struct {
	dev regIO

	scaleAccel float64
	scaleGyro  float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("lsm9ds1: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("lsm9ds1: dev is nil")
	}
	d := &Device{dev: dev}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("lsm9ds1: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("lsm9ds1: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.dev.WriteReg(regCtrl8, bitReset); err != nil {
		return fmt.Errorf("lsm9ds1: reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.dev.WriteReg(regCtrl8, bitAddrInc); err != nil {
		return fmt.Errorf("lsm9ds1: addr-inc config failed: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl1G, ctrl1GVal); err != nil {
		return fmt.Errorf("lsm9ds1: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regCtrl6XL, ctrl6XLVal); err != nil {
		return fmt.Errorf("lsm9ds1: accel config failed: %w", err)
	}
	// Route gyro data-ready to INT1 for the optional GPIO wake line.
	_ = d.dev.WriteReg(regInt1, bitDrdyG)

	// Datasheet sensitivities, not FS/32768: 0.122 mg/LSB at 4g,
	// 8.75 mdps/LSB at 245 dps.
	d.scaleAccel = 0.000122
	d.scaleGyro = 0.00875
	return nil
}

func (d *Device) Read() (imu.Sample, error) {
	if d == nil {
		return imu.Sample{}, fmt.Errorf("lsm9ds1: device is nil")
	}

	var gbuf, abuf [6]byte
	if err := d.dev.ReadReg(regOutXLG, gbuf[:]); err != nil {
		return imu.Sample{}, fmt.Errorf("lsm9ds1: read gyro failed: %w", err)
	}
	if err := d.dev.ReadReg(regOutXLXL, abuf[:]); err != nil {
		return imu.Sample{}, fmt.Errorf("lsm9ds1: read accel failed: %w", err)
	}

	gx := int16(gbuf[0]) | int16(gbuf[1])<<8
	gy := int16(gbuf[2]) | int16(gbuf[3])<<8
	gz := int16(gbuf[4]) | int16(gbuf[5])<<8
	ax := int16(abuf[0]) | int16(abuf[1])<<8
	ay := int16(abuf[2]) | int16(abuf[3])<<8
	az := int16(abuf[4]) | int16(abuf[5])<<8

	return imu.Sample{
		At:    time.Now(),
		Ax:    float64(ax) * d.scaleAccel,
		Ay:    float64(ay) * d.scaleAccel,
		Az:    float64(az) * d.scaleAccel,
		Gx:    float64(gx) * d.scaleGyro,
		Gy:    float64(gy) * d.scaleGyro,
		Gz:    float64(gz) * d.scaleGyro,
		Valid: true,
	}, nil
}
