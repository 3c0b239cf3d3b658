// Package fault classifies runtime failures so callers can decide between
// absorbing an error locally and escalating to a controlled restart.
package fault

import (
	"errors"
	"fmt"
)

type Class int

const (
	// Transient covers recoverable hardware hiccups (sensor bus errors).
	// Absorbed and retried at the component boundary.
	Transient Class = iota
	// Link covers connection loss and radio errors. Recovered by
	// re-advertising.
	Link
	// Security covers rejected pairing attempts. Rate limited, never fatal.
	Security
	// ResourceExhaustion covers depletion of the random source backing key
	// material. Fatal: pairing security depends on unpredictable keys.
	ResourceExhaustion
	// LogicInvariant covers states that indicate a bug (credit underflow,
	// impossible transition). Fatal.
	LogicInvariant
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Link:
		return "link"
	case Security:
		return "security"
	case ResourceExhaustion:
		return "resource_exhaustion"
	case LogicInvariant:
		return "logic_invariant"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Fatal reports whether a fault of this class must stop the executor and
// trigger a controlled reset.
func (c Class) Fatal() bool {
	return c == ResourceExhaustion || c == LogicInvariant
}

type Fault struct {
	Class Class
	Err   error
}

func New(class Class, format string, args ...any) *Fault {
	return &Fault{Class: class, Err: fmt.Errorf(format, args...)}
}

func Wrap(class Class, err error) *Fault {
	if err == nil {
		return nil
	}
	return &Fault{Class: class, Err: err}
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %v", f.Class, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// ClassOf extracts the fault class from an error chain. Unclassified errors
// report as Transient: absorbing an unknown error beats resetting on one.
func ClassOf(err error) Class {
	var f *Fault
	if errors.As(err, &f) {
		return f.Class
	}
	return Transient
}

// IsFatal reports whether err carries a fault class that requires a reset.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return ClassOf(err).Fatal()
}
