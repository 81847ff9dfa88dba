package engine

import "sitework/internal/domain"

// startIntervals appends a new open interval unless the log already ends in
// one. The returned bool reports whether the log changed.
func startIntervals(log []*domain.TimeInterval, now string) ([]*domain.TimeInterval, bool) {
	if lastInterval(log).Open() {
		return log, false
	}
	return append(log, &domain.TimeInterval{
		StartTime: now,
		Status:    domain.IntervalActive,
	}), true
}

// stopIntervals closes the trailing open interval, if any. Stopping an
// already closed log is a no-op.
func stopIntervals(log []*domain.TimeInterval, now string) ([]*domain.TimeInterval, bool) {
	last := lastInterval(log)
	if !last.Open() {
		return log, false
	}
	end := now
	last.EndTime = &end
	last.Status = domain.IntervalClosed
	return log, true
}

func lastInterval(log []*domain.TimeInterval) *domain.TimeInterval {
	if len(log) == 0 {
		return nil
	}
	return log[len(log)-1]
}
