// Package deviceinfo holds the static identity the device reports to hosts.
package deviceinfo

import (
	"unicode/utf8"

	"github.com/denisbrodbeck/machineid"
	"github.com/rs/zerolog"
)

const (
	Manufacturer     = "Lookpoint"
	Model            = "Tracker"
	HardwareRevision = "rev2"
	FirmwareRevision = "1.4.0"

	// MaxNameBytes is the advertising payload room left for the device name.
	MaxNameBytes = 19

	DefaultName = "Lookpoint Tracker"
)

// Serial derives a stable per-device serial number. Falls back to "unknown"
// rather than failing boot: the serial is diagnostic, not functional.
func Serial(log zerolog.Logger) string {
	id, err := machineid.ProtectedID("lookpoint-fw")
	if err != nil {
		log.Warn().Err(err).Msg("machine id unavailable")
		return "unknown"
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

// TruncateName fits name into MaxNameBytes without splitting a UTF-8
// sequence. A truncated name is logged; hosts display whatever fits.
func TruncateName(log zerolog.Logger, name string) string {
	if name == "" {
		return DefaultName
	}
	if len(name) <= MaxNameBytes {
		return name
	}
	cut := MaxNameBytes
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	out := name[:cut]
	log.Warn().Str("name", name).Str("advertised", out).Msg("device name truncated")
	return out
}
