package spider

import "time"

// FailureTracker remembers candidates that recently exhausted their retries so the
// next resolution skips them. The whole set is forgotten after the reset interval.
// Not safe for concurrent use; Manager guards it with its mutex.
type FailureTracker struct {
	failed      map[string]struct{}
	lastResetAt time.Time
	interval    time.Duration
}

func NewFailureTracker(interval time.Duration, now time.Time) *FailureTracker {
	return &FailureTracker{
		failed:      make(map[string]struct{}),
		lastResetAt: now,
		interval:    interval,
	}
}

// ShouldReset reports whether more than the reset interval has passed since the last reset.
func (f *FailureTracker) ShouldReset(now time.Time) bool {
	return now.Sub(f.lastResetAt) > f.interval
}

// Reset clears the set and stamps now as the last reset time.
func (f *FailureTracker) Reset(now time.Time) {
	clear(f.failed)
	f.lastResetAt = now
}

func (f *FailureTracker) MarkFailed(url string) { f.failed[url] = struct{}{} }

func (f *FailureTracker) MarkSucceeded(url string) { delete(f.failed, url) }

func (f *FailureTracker) IsFailed(url string) bool {
	_, ok := f.failed[url]
	return ok
}

func (f *FailureTracker) Len() int { return len(f.failed) }

// Filter returns candidates minus failed members, keeping order. When every
// candidate is failed it returns the full list so a resolution always has work to do.
func (f *FailureTracker) Filter(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !f.IsFailed(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return append(out, candidates...)
	}
	return out
}
