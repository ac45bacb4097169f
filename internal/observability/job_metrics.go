package observability

import "time"

const (
	JobResultDone   = "done"
	JobResultRetry  = "retry"
	JobResultFailed = "failed"
)

// JobStarted marks one more job executing and returns the func that records
// its outcome. Safe on a nil Prom.
func (p *Prom) JobStarted(jobType string) func(result string) {
	if p == nil {
		return func(string) {}
	}

	start := time.Now()
	p.JobsInFlight.Inc()

	return func(result string) {
		p.JobsInFlight.Dec()
		p.JobDuration.WithLabelValues(jobType, result).Observe(time.Since(start).Seconds())
		p.JobResults.WithLabelValues(jobType, result).Inc()
	}
}
