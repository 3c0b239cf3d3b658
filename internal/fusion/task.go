package fusion

import (
	"time"

	"lookpoint-fw/internal/imu"
	"lookpoint-fw/internal/sched"
)

// Engine is the scheduler task around the pure filter: raw sample in, fused
// orientation out. All clock knowledge stays in the sample timestamps, so
// the engine is as replayable as the filter itself.
type Engine struct {
	f   *Filter
	in  *sched.Slot[imu.Sample]
	out *sched.Slot[OrientationSample]
}

func NewEngine(cfg Config, in *sched.Slot[imu.Sample], out *sched.Slot[OrientationSample]) *Engine {
	return &Engine{f: NewFilter(cfg), in: in, out: out}
}

func (e *Engine) Name() string { return "fusion-engine" }

func (e *Engine) Run(now time.Time) error {
	s, ok := e.in.Take()
	if !ok {
		return nil
	}
	e.out.Put(e.f.Update(s))
	return nil
}
