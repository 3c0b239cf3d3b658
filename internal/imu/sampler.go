package imu

import (
	"time"

	"github.com/rs/zerolog"

	"lookpoint-fw/internal/sched"
)

// Reader is one bounded bus transaction against the sensor.
type Reader interface {
	Read() (Sample, error)
}

type SamplerConfig struct {
	// Period between reads. Default 10ms (100 Hz).
	Period time.Duration
	// HoldCycles is how many consecutive bus errors re-publish the last
	// known good sample before the stream is marked faulted. Default 50.
	HoldCycles int
}

// Sampler is the periodic sensor task. One bus read per tick; a failed read
// never blocks the tick and never stops the task. Errors are absorbed here:
// the stream degrades to held samples, then to invalid ones, and recovers on
// the first successful read.
type Sampler struct {
	log zerolog.Logger
	cfg SamplerConfig
	rd  Reader
	out *sched.Slot[Sample]

	last     Sample
	haveLast bool
	errRun   int
	faulted  bool
}

func NewSampler(log zerolog.Logger, cfg SamplerConfig, rd Reader, out *sched.Slot[Sample]) *Sampler {
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Millisecond
	}
	if cfg.HoldCycles <= 0 {
		cfg.HoldCycles = 50
	}
	return &Sampler{log: log, cfg: cfg, rd: rd, out: out}
}

func (s *Sampler) Name() string { return "imu-sampler" }

// Period returns the configured sampling interval for task registration.
func (s *Sampler) Period() time.Duration { return s.cfg.Period }

// Faulted reports whether the stream is currently past its hold window.
func (s *Sampler) Faulted() bool { return s.faulted }

func (s *Sampler) Run(now time.Time) error {
	smp, err := s.rd.Read()
	if err != nil {
		s.errRun++
		if s.errRun == 1 {
			s.log.Warn().Err(err).Msg("sensor read failed, holding last sample")
		}
		if !s.haveLast || s.errRun > s.cfg.HoldCycles {
			if !s.faulted {
				s.faulted = true
				s.log.Error().Err(err).Int("consecutive", s.errRun).Msg("sensor stream faulted")
			}
			s.out.Put(Sample{At: now})
			return nil
		}
		// Hold window: the last good reading stands in, with a fresh
		// timestamp so downstream staleness accounting keeps moving.
		held := s.last
		held.At = now
		s.out.Put(held)
		return nil
	}

	if s.faulted {
		s.log.Info().Msg("sensor stream recovered")
	}
	s.errRun = 0
	s.faulted = false
	s.last = smp
	s.haveLast = true
	s.out.Put(smp)
	return nil
}
