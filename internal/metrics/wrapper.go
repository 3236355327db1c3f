package metrics

// Recorder is a narrow interface other packages depend on instead of the
// concrete *Metrics type, so the scheduler doesn't need a direct
// Prometheus import to report a dropped job.
type Recorder interface {
	IncJobsDropped()
}

// NewRecorder adapts m to the Recorder interface.
func NewRecorder(m *Metrics) Recorder {
	return &recorder{m: m}
}

type recorder struct{ m *Metrics }

func (r *recorder) IncJobsDropped() { r.m.SchedulerJobsDropped.Inc() }
